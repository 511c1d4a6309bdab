package sounds

import (
	"bytes"

	"github.com/jonas747/ogg"
)

// validateOgg checks that data starts with a decodable Ogg packet.
func validateOgg(data []byte) error {
	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(bytes.NewReader(data)))
	_, _, err := decoder.Decode()
	return err
}
