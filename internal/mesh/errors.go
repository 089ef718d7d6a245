package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrLinkExists        = errors.New("link already exists")
	ErrSelfLink          = errors.New("cannot link to yourself")
	ErrNotLinked         = errors.New("no link to peer")
	ErrNoActiveLinks     = errors.New("no active links")
	ErrEmptyMessage      = errors.New("empty message")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrControllerStopped = errors.New("controller stopped")
)

// LinkError describes a failure tied to one remote participant.
type LinkError struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *LinkError) Error() string {
	if e.Peer != "" && e.Details != "" {
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Peer, e.Err, e.Details)
	}
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *LinkError {
	return &LinkError{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *LinkError {
	return &LinkError{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *LinkError {
	return &LinkError{Op: op, Err: err, Details: details}
}
