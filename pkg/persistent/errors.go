package persistent

import "errors"

// Socket lifecycle and addressing errors.
var (
	// ErrClosed indicates the socket has been closed.
	ErrClosed = errors.New("socket closed")

	// ErrNotBound indicates an operation that needs a bound transport
	// before Host or Join was called.
	ErrNotBound = errors.New("socket not bound")

	// ErrAlreadyBound indicates a second Host on a live socket.
	ErrAlreadyBound = errors.New("socket already bound")

	// ErrPeerUnknown indicates a Send to a peer that is not currently
	// connected.
	ErrPeerUnknown = errors.New("peer not connected")
)

// BindError reports a failed UDP bind from Host or Join. It is fatal:
// the socket did not come up and no protocol state was created.
type BindError struct {
	Err error
}

func (e *BindError) Error() string { return e.Err.Error() }

func (e *BindError) Unwrap() error { return e.Err }
