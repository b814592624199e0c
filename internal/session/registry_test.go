package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records writes and can be made to fail.
type fakeChannel struct {
	mu      sync.Mutex
	sent    [][]byte
	pings   int
	sendErr error
	pingErr error
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingErr != nil {
		return c.pingErr
	}
	c.pings++
	return nil
}

func (c *fakeChannel) sentMessages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *fakeChannel) failPings(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

func newTestRegistry(t *testing.T) (*Registry, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	r := NewRegistryWithClock(nil, clock, DefaultPingInterval)
	t.Cleanup(r.Shutdown)
	return r, clock
}

func TestOpenAssignsDistinctIDs(t *testing.T) {
	r, _ := newTestRegistry(t)

	a := r.Open(&fakeChannel{})
	b := r.Open(&fakeChannel{})

	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Len())
}

func TestRouteDeliversToRightSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	chA := &fakeChannel{}
	chB := &fakeChannel{}
	a := r.Open(chA)
	b := r.Open(chB)

	require.NoError(t, r.Route(a.ID, []byte("for-a")))
	require.NoError(t, r.Route(b.ID, []byte("for-b")))

	require.Len(t, chA.sentMessages(), 1)
	assert.Equal(t, "for-a", string(chA.sentMessages()[0]))
	require.Len(t, chB.sentMessages(), 1)
	assert.Equal(t, "for-b", string(chB.sentMessages()[0]))
}

func TestRouteUnknownSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.Route("never-opened", []byte("msg"))
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRouteClosedSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	s := r.Open(&fakeChannel{})
	r.Close(s.ID)

	err := r.Route(s.ID, []byte("msg"))
	assert.ErrorIs(t, err, ErrClosedSession,
		"closed must be distinguishable from never-existed so the client reopens the stream")
}

func TestRouteDeadChannelSelfCloses(t *testing.T) {
	r, _ := newTestRegistry(t)

	ch := &fakeChannel{sendErr: errors.New("broken pipe")}
	s := r.Open(ch)

	err := r.Route(s.ID, []byte("msg"))
	assert.ErrorIs(t, err, ErrClosedSession)
	assert.Equal(t, 0, r.Len(), "failed send reclaims the entry")
}

func TestCloseIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)

	s := r.Open(&fakeChannel{})
	r.Close(s.ID)
	assert.NotPanics(t, func() { r.Close(s.ID) })
	assert.NotPanics(t, func() { r.Close("never-opened") })
	assert.Equal(t, 0, r.Len())
}

func TestLivenessPing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistryWithClock(nil, clock, DefaultPingInterval)
	t.Cleanup(r.Shutdown)

	ch := &fakeChannel{}
	r.Open(ch)

	clock.BlockUntil(1)
	clock.Advance(DefaultPingInterval)

	require.Eventually(t, func() bool {
		return ch.pingCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLivenessFailureClosesSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistryWithClock(nil, clock, DefaultPingInterval)
	t.Cleanup(r.Shutdown)

	ch := &fakeChannel{}
	s := r.Open(ch)
	ch.failPings(errors.New("write on closed stream"))

	clock.BlockUntil(1)
	clock.Advance(DefaultPingInterval)

	require.Eventually(t, func() bool {
		return r.Len() == 0
	}, time.Second, 5*time.Millisecond, "failed ping must reclaim the session")

	// The external transport signaling closure afterwards must converge.
	assert.NotPanics(t, func() { r.Close(s.ID) })
	assert.ErrorIs(t, r.Route(s.ID, []byte("msg")), ErrClosedSession)
}

func TestConcurrentOpens(t *testing.T) {
	r, _ := newTestRegistry(t)

	const n = 32
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- r.Open(&fakeChannel{}).ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n, "every concurrent open gets a distinct id")
	assert.Equal(t, n, r.Len())
}

func TestShutdownClosesAll(t *testing.T) {
	r, _ := newTestRegistry(t)

	a := r.Open(&fakeChannel{})
	b := r.Open(&fakeChannel{})

	r.Shutdown()

	assert.Equal(t, 0, r.Len())
	assert.ErrorIs(t, r.Route(a.ID, nil), ErrClosedSession)
	assert.ErrorIs(t, r.Route(b.ID, nil), ErrClosedSession)
}

func TestRouteOrderingWithinSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	ch := &fakeChannel{}
	s := r.Open(ch)

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, r.Route(s.ID, []byte(msg)))
	}

	got := ch.sentMessages()
	require.Len(t, got, 3)
	assert.Equal(t, "one", string(got[0]))
	assert.Equal(t, "two", string(got[1]))
	assert.Equal(t, "three", string(got[2]))
}

func TestLookupDistinguishesStates(t *testing.T) {
	r, _ := newTestRegistry(t)

	s := r.Open(&fakeChannel{})
	require.NoError(t, r.Lookup(s.ID))

	r.Close(s.ID)
	assert.ErrorIs(t, r.Lookup(s.ID), ErrClosedSession)

	assert.ErrorIs(t, r.Lookup("never-opened"), ErrUnknownSession)
}

func TestTombstonesAreBounded(t *testing.T) {
	r, _ := newTestRegistry(t)

	first := r.Open(&fakeChannel{})
	r.Close(first.ID)

	// Churn enough sessions to push the first id out of the tombstone set.
	for i := 0; i < maxTombstones; i++ {
		s := r.Open(&fakeChannel{})
		r.Close(s.ID)
	}

	assert.ErrorIs(t, r.Lookup(first.ID), ErrUnknownSession,
		"evicted tombstones degrade to unknown")
	assert.LessOrEqual(t, len(r.tombstones), maxTombstones)
	assert.Len(t, r.tombstoneOrder, len(r.tombstones))
}

func TestSynchronizeSerializesWithRoute(t *testing.T) {
	r, _ := newTestRegistry(t)
	ch := &fakeChannel{}
	s := r.Open(ch)

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = s.Synchronize(func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	routed := make(chan struct{})
	go func() {
		require.NoError(t, r.Route(s.ID, []byte("hello")))
		close(routed)
	}()

	// The routed write must wait for the synchronized section to finish.
	select {
	case <-routed:
		t.Fatal("route completed while the write lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-routed:
	case <-time.After(time.Second):
		t.Fatal("route never completed after the lock was released")
	}
	assert.Len(t, ch.sentMessages(), 1)
}

func TestSynchronizeReturnsFnError(t *testing.T) {
	r, _ := newTestRegistry(t)
	s := r.Open(&fakeChannel{})

	wantErr := errors.New("stream gone")
	assert.ErrorIs(t, s.Synchronize(func() error { return wantErr }), wantErr)
}
