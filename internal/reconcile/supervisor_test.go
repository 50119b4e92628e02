package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupervisor(store *fakeStore, interval time.Duration) *Supervisor {
	r := New(store, func(host string) AgentClient { return okClient() }, zerolog.Nop())
	return NewSupervisor(r, interval, 500*time.Millisecond, zerolog.Nop())
}

func listCalls(store *fakeStore) int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.listCalls
}

func TestStartTwiceRunsOneWorker(t *testing.T) {
	store := newFakeStore()
	s := newSupervisor(store, time.Hour)

	s.Start()
	s.Start()
	defer s.Stop()

	// With an hour-long interval only the immediate first pass per worker
	// can run; a second worker would have doubled it.
	require.Eventually(t, func() bool { return listCalls(store) >= 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, listCalls(store))
	assert.True(t, s.Status().Running)
}

func TestStopTerminatesWorker(t *testing.T) {
	store := newFakeStore()
	s := newSupervisor(store, 10*time.Millisecond)

	s.Start()
	require.Eventually(t, func() bool { return listCalls(store) >= 1 },
		time.Second, 5*time.Millisecond)
	s.Stop()

	assert.False(t, s.Status().Running)
	calls := listCalls(store)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, listCalls(store), "no passes after Stop returned")

	// Stopping twice is harmless.
	s.Stop()
}

func TestInFlightPassBlocksDirectTicks(t *testing.T) {
	store := newFakeStore()
	gate := make(chan struct{})
	store.listGate = gate
	s := newSupervisor(store, time.Hour)

	s.Start()
	defer func() {
		close(gate)
		s.Stop()
	}()
	require.Eventually(t, func() bool { return listCalls(store) == 1 },
		time.Second, 5*time.Millisecond)

	// A manual tick while the first pass is still blocked inside the store
	// must be skipped, not queued behind it.
	done := make(chan struct{})
	go func() {
		s.tick()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("overlapping tick did not skip")
	}
	assert.Equal(t, 1, listCalls(store))
}

func TestPassErrorRecordedAndClearedBySuccess(t *testing.T) {
	store := newFakeStore()
	store.mu.Lock()
	store.listErr = errors.New("database gone")
	store.mu.Unlock()
	s := newSupervisor(store, 10*time.Millisecond)

	s.Start()
	defer s.Stop()
	require.Eventually(t, func() bool {
		st := s.Status()
		return st.LastError != nil && st.LastError.Message != ""
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, s.Status().LastError.Message, "database gone")
	assert.Nil(t, s.Status().LastPass)

	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()
	require.Eventually(t, func() bool {
		st := s.Status()
		return st.LastError == nil && st.LastPass != nil
	}, time.Second, 5*time.Millisecond)
}
