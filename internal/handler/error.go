package handler

import "fmt"

// UserError is an error type that is used to represent
// an error that should be displayed to the user.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

var _ error = (*UserError)(nil)

// OptionError reports a missing or malformed command option.
type OptionError struct {
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("option %s: %s", e.Option, e.Reason)
}

var _ error = (*OptionError)(nil)
