package session

import (
	"errors"

	"github.com/pixil98/ubichill/internal/auth"
	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/validate"
)

// UserError is a failure whose message is safe to send back to the client.
// Reason is a short label used for metrics.
type UserError struct {
	Reason  string
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func NewUserError(reason, msg string) *UserError {
	return &UserError{Reason: reason, Message: msg}
}

var (
	ErrAuthRequired   = NewUserError("auth", "auth required")
	ErrNotJoined      = NewUserError("not_joined", "join first")
	ErrAlreadyJoined  = NewUserError("conflict", "already joined")
	ErrEntityNotFound = NewUserError("not_found", "entity not found")
	ErrEntityLocked   = NewUserError("locked", "entity is locked by another participant")
	ErrMalformed      = NewUserError("malformed", "malformed message")

	errInternal = NewUserError("internal", "internal error")
)

// clientError maps err onto what the client is told. Anything that is not
// a known user facing failure becomes a generic internal error.
func clientError(err error) *UserError {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}

	var ve *validate.Error
	if errors.As(err, &ve) {
		return NewUserError("validation", ve.Message)
	}

	switch {
	case errors.Is(err, instance.ErrFull):
		return NewUserError("full", instance.ErrFull.Error())
	case errors.Is(err, instance.ErrNotFound):
		return NewUserError("not_found", instance.ErrNotFound.Error())
	case errors.Is(err, instance.ErrTemplateNotFound):
		return NewUserError("not_found", instance.ErrTemplateNotFound.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		return NewUserError("auth", auth.ErrInvalidToken.Error())
	}

	return errInternal
}
