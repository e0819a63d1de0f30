package validate

import "errors"

// Error is a validation failure whose message is safe to show to clients.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsError reports whether err is or wraps a validation Error.
func IsError(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}
