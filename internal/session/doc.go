// Package session tracks the gateway's active streaming connections.
//
// Each streaming client gets one registry entry keyed by an opaque UUID. The
// id is the only correlation between the long-lived streaming half of the
// protocol and the short-lived request/response half: a client opens a
// stream, learns its session id, and posts follow-up messages carrying that
// id. The registry routes those messages back to the right stream.
//
// Every session carries a liveness ticker that periodically writes a ping
// frame to its channel. A failed ping closes the session, so the registry
// heals itself when a transport dies without a clean close signal.
package session
