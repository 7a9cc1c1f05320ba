package chat

import "errors"

// Error taxonomy surfaced by the messaging core. Handlers map these onto HTTP
// statuses; everything else is an internal failure.
//
// ErrForbidden doubles as "not found" for channel-scoped operations: a
// non-member gets the same outcome whether the channel exists or not, so the
// API never leaks channel existence.
var (
	ErrForbidden   = errors.New("not a member of this channel")
	ErrNotFound    = errors.New("channel not found")
	ErrBadRequest  = errors.New("invalid request")
	ErrConflict    = errors.New("conflicting resource already exists")
	ErrUpstream    = errors.New("generation backend failure")
	ErrUnavailable = errors.New("store unreachable")
)
