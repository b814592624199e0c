// Package auth owns the Google OAuth credential lifecycle for the gateway:
// authorization-code exchange, persistence, proactive background refresh and
// revocation.
//
// The Manager is a state machine over {unauthenticated, authenticated,
// refreshing}. It never retries provider errors itself; the fixed-interval
// refresh poll simply tries again on its next cycle. Timers run through a
// clockwork.Clock so the scheduling behavior is testable with a fake clock.
package auth
