package server

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrorKind discriminates the failures the server can report.
type ErrorKind int

const (
	// BindFailure is fatal: the listener could not be created.
	BindFailure ErrorKind = iota + 1
	// ReceiveFailure covers accept errors and unreadable requests.
	ReceiveFailure
	// SendFailure means the response could not be written back to the peer.
	SendFailure
)

func (k ErrorKind) String() string {
	switch k {
	case BindFailure:
		return "BindFailure"
	case ReceiveFailure:
		return "ReceiveFailure"
	case SendFailure:
		return "SendFailure"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is returned for bind, receive and send failures.
type Error struct {
	Kind ErrorKind
	// Address is only set for BindFailure.
	Address netip.AddrPort
	Err     error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case BindFailure:
		msg = fmt.Sprintf("failed to bind HTTP server to %s", e.Address)
	case ReceiveFailure:
		msg = "failed to receive from client"
	case SendFailure:
		msg = "failed to send to client"
	default:
		msg = "server error"
	}
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err wraps a server *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var serr *Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Kind == kind
}

func bindError(addr netip.AddrPort, err error) error {
	return &Error{Kind: BindFailure, Address: addr, Err: err}
}

func receiveError(err error) error {
	return &Error{Kind: ReceiveFailure, Err: err}
}

func sendError(err error) error {
	return &Error{Kind: SendFailure, Err: err}
}
