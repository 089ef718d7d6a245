package webrtc

import (
	"errors"
	"fmt"
)

var (
	ErrChannelNotOpen   = errors.New("channel not open")
	ErrBufferFull       = errors.New("send buffer full")
	ErrConnectionFailed = errors.New("connection failed")
	ErrUnexpectedSignal = errors.New("unexpected signal type")
	ErrTransportClosed  = errors.New("transport closed")
	ErrSignalBacklog    = errors.New("too many pending signals")
)

type TransportError struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *TransportError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *TransportError {
	return &TransportError{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *TransportError {
	return &TransportError{Op: op, Err: err, Details: details}
}
