package session

import "errors"

// Channel is the write side of one streaming connection. It is owned by the
// transport layer; the registry holds a non-owning reference and never
// closes the underlying connection itself.
type Channel interface {
	// Send writes one protocol message frame to the client.
	Send(data []byte) error

	// Ping writes a no-op keep-alive frame. Intermediaries reclaim idle
	// connections; pings keep them open.
	Ping() error
}

// ErrUnknownSession is returned when routing to a session id that was never
// opened in this process.
var ErrUnknownSession = errors.New("no transport found for sessionId")

// ErrClosedSession is returned when routing to a session id whose transport
// has been torn down. Unlike ErrUnknownSession, the client can conclude the
// stream is gone and must reopen rather than retry.
var ErrClosedSession = errors.New("session closed")
