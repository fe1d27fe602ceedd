package server

import "errors"

// Closed set of failure kinds produced by the tunnel core. Handlers map these
// to HTTP status codes; nothing else crosses the package boundary.
var (
	ErrTunnelNotFound      = errors.New("tunnel not found")
	ErrTunnelGone          = errors.New("tunnel gone")
	ErrDispatchFailed      = errors.New("dispatch failed")
	ErrTimeout             = errors.New("request timeout")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrProtocol            = errors.New("protocol error")
	ErrCancelled           = errors.New("request cancelled")
	ErrSubdomainsExhausted = errors.New("subdomains exhausted")
	ErrTunnelLimit         = errors.New("tunnel limit reached")
	ErrDuplicateRequestID  = errors.New("duplicate request id")
	ErrPendingLimit        = errors.New("pending request limit reached")
)
