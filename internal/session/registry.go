package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/calgate/calgate/internal/logging"
)

// DefaultPingInterval is how often each session writes a keep-alive frame.
const DefaultPingInterval = 10 * time.Second

// maxTombstones caps how many closed-session ids are remembered. Beyond the
// cap the oldest ids are forgotten and routing to them reports unknown
// instead of closed; the map cannot grow without bound under reconnect
// churn.
const maxTombstones = 1024

// Session is one registered streaming connection.
type Session struct {
	ID string

	channel Channel
	ticker  clockwork.Ticker
	done    chan struct{}
	closed  sync.Once

	// writeMu serializes ping and message writes to the channel so frames
	// are never interleaved.
	writeMu sync.Mutex
}

// Done returns a channel that is closed when the session is closed. The
// transport blocks on it to keep the underlying connection open for the
// session's lifetime.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Synchronize runs fn under the session's write lock so transport-level
// frames written outside Route never interleave with pings or routed
// messages.
func (s *Session) Synchronize(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

// Registry is the process-wide map from session id to Session. It is safe
// for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// tombstones records ids of sessions that once existed, so routing to a
	// closed session is distinguishable from routing to one that never was.
	// Bounded to maxTombstones, evicting oldest-first.
	tombstones     map[string]struct{}
	tombstoneOrder []string

	clock        clockwork.Clock
	pingInterval time.Duration
	logger       *slog.Logger
}

// NewRegistry creates a Registry using the wall clock and the default ping
// interval.
func NewRegistry(logger *slog.Logger) *Registry {
	return NewRegistryWithClock(logger, clockwork.NewRealClock(), DefaultPingInterval)
}

// NewRegistryWithClock creates a Registry with an explicit clock and ping
// interval, for tests.
func NewRegistryWithClock(logger *slog.Logger, clock clockwork.Clock, pingInterval time.Duration) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		tombstones:   make(map[string]struct{}),
		clock:        clock,
		pingInterval: pingInterval,
		logger:       logging.WithComponent(logger, "session"),
	}
}

// Open allocates a fresh session for ch, starts its liveness loop and
// returns it. Each call is independent; concurrent opens are safe.
func (r *Registry) Open(ch Channel) *Session {
	s := &Session{
		ID:      uuid.New().String(),
		channel: ch,
		ticker:  r.clock.NewTicker(r.pingInterval),
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	total := len(r.sessions)
	r.mu.Unlock()

	go r.livenessLoop(s)

	r.logger.Info("session opened", logging.SessionID(s.ID), "total_sessions", total)
	return s
}

// Lookup reports whether id identifies an open session, with the same
// unknown-versus-closed distinction as Route. Callers use it to reject a
// request before doing any work on its behalf.
func (r *Registry) Lookup(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return nil
	}
	if _, wasKnown := r.tombstones[id]; wasKnown {
		return ErrClosedSession
	}
	return ErrUnknownSession
}

// Route delivers msg to the session identified by id. It fails with
// ErrUnknownSession when the id was never opened and ErrClosedSession when
// the session existed but its transport is gone.
func (r *Registry) Route(id string, msg []byte) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		_, wasKnown := r.tombstones[id]
		r.mu.Unlock()
		if wasKnown {
			return ErrClosedSession
		}
		return ErrUnknownSession
	}
	r.mu.Unlock()

	s.writeMu.Lock()
	err := s.channel.Send(msg)
	s.writeMu.Unlock()
	if err != nil {
		// The transport died without a close signal; reclaim the entry.
		r.Close(id)
		return fmt.Errorf("%w: %s", ErrClosedSession, err)
	}
	return nil
}

// Close removes the session and cancels its liveness timer. It is
// idempotent: closing an already-closed or unknown id is a no-op, because
// the liveness loop discovering a dead channel and the transport signaling
// closure legitimately race.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.addTombstoneLocked(id)
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}

	s.closed.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	r.logger.Info("session closed", logging.SessionID(id), "total_sessions", total)
}

// addTombstoneLocked records id as closed, evicting the oldest entries
// beyond maxTombstones. Caller holds r.mu.
func (r *Registry) addTombstoneLocked(id string) {
	if _, ok := r.tombstones[id]; ok {
		return
	}
	r.tombstones[id] = struct{}{}
	r.tombstoneOrder = append(r.tombstoneOrder, id)
	for len(r.tombstoneOrder) > maxTombstones {
		delete(r.tombstones, r.tombstoneOrder[0])
		r.tombstoneOrder = r.tombstoneOrder[1:]
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown closes every active session. Used at process shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Close(id)
	}
}

// livenessLoop pings the session's channel until the session is closed or a
// ping fails.
func (r *Registry) livenessLoop(s *Session) {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.Chan():
			s.writeMu.Lock()
			err := s.channel.Ping()
			s.writeMu.Unlock()
			if err != nil {
				r.logger.Debug("liveness ping failed, closing session",
					logging.SessionID(s.ID), logging.Err(err))
				r.Close(s.ID)
				return
			}
		}
	}
}
