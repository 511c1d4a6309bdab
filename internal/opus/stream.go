package opus

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/discordgo"
)

var ErrVoiceConnClosed = errors.New("voice connection send timeout")

// SendTimeout bounds how long a single frame may wait for the voice
// connection.
const SendTimeout = 10 * time.Second

// FrameReader reads length-prefixed Opus frames from an io.Reader.
type FrameReader struct {
	r io.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame returns the next raw Opus frame, or io.EOF when there are none.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	var size uint16
	if err := binary.Read(f.r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(f.r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// StreamToVoice sends every frame from source to the voice connection until
// the source ends, ctx is cancelled, or a frame cannot be delivered.
// A clean end of input returns nil.
func StreamToVoice(ctx context.Context, source *FrameReader, opusSend chan<- []byte) error {
	timer := time.NewTimer(SendTimeout)
	defer timer.Stop()

	for {
		frame, err := source.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		timer.Reset(SendTimeout)
		select {
		case opusSend <- frame:
		case <-timer.C:
			return ErrVoiceConnClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// VoiceSender returns the send channel of a Discord voice connection.
func VoiceSender(vc *discordgo.VoiceConnection) chan<- []byte {
	return vc.OpusSend
}
