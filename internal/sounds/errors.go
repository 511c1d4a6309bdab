package sounds

import (
	"errors"
	"fmt"
)

// MissingError reports a sound ID that resolves to nothing playable.
type MissingError struct {
	ID string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("sound %s not found", e.ID)
}

var _ error = (*MissingError)(nil)

// UploadError is a rejected upload. Its message is safe to show the user.
type UploadError struct {
	Filename string
	Reason   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("cannot add %s: %s", e.Filename, e.Reason)
}

var _ error = (*UploadError)(nil)

// ErrUploadsDisabled is returned when no blob storage is configured.
var ErrUploadsDisabled = errors.New("sound uploads are disabled")

// ErrBuiltin is returned when deleting a packaged sound.
var ErrBuiltin = errors.New("built-in sounds cannot be deleted")

// ErrUnreadableList is returned when the stored list of uploaded sounds
// cannot be decoded. Writes are refused so the list is not overwritten.
var ErrUnreadableList = errors.New("the uploaded sound list is unreadable")
