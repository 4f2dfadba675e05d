package roq

import "errors"

// Sentinel errors, one per spec.md §7 error kind. Codec and framing
// errors (ErrValueTooLarge, ErrShortInput, ErrMalformedFrame) are
// recoverable by dropping the affected frame/stream. WrongStreamType
// and UnknownFlow reject a stream or datagram without harming the
// element. InvalidConfig is setup-time only. StreamClosed and Blocked
// are expected transport signals, not failures. Fatal is the only
// kind that should propagate past the element boundary.
var (
	ErrValueTooLarge   = errors.New("roq: value too large")
	ErrShortInput      = errors.New("roq: short input")
	ErrMalformedFrame  = errors.New("roq: malformed frame")
	ErrWrongStreamType = errors.New("roq: wrong uni stream type")
	ErrUnknownFlow     = errors.New("roq: unknown flow id")
	ErrInvalidConfig   = errors.New("roq: invalid config")
	ErrStreamClosed    = errors.New("roq: stream closed by peer")
	ErrBlocked         = errors.New("roq: output blocked")
	ErrFatal           = errors.New("roq: fatal transport error")
)
