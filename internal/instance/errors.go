package instance

import "errors"

var (
	ErrNotFound         = errors.New("instance not found")
	ErrNotLeader        = errors.New("only the leader can close the instance")
	ErrTemplateNotFound = errors.New("world not found")
	ErrFull             = errors.New("instance is full")
)
