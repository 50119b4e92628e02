package reconcile

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tkremote/internal/model"
)

type pendingDelta struct {
	seconds int
	op      string
}

type commit struct {
	targetID  int64
	raw       string
	timeSpent int
	day       time.Time
}

type fakeStore struct {
	mu sync.Mutex

	targets   []model.Target
	listErr   error
	listCalls int
	listGate  chan struct{} // when set, ListTargets blocks until closed

	pending map[int64]pendingDelta
	cleared map[int64]int
	touched map[int64]int
	commits []commit

	quotas          map[int64]*model.WeeklyQuota
	quotaSynced     map[int64]int
	unsyncedWindows map[int64]bool
	windows         map[int64][7]model.DayWindow
	windowsSynced   map[int64]int
}

func newFakeStore(targets ...model.Target) *fakeStore {
	return &fakeStore{
		targets:         targets,
		pending:         make(map[int64]pendingDelta),
		cleared:         make(map[int64]int),
		touched:         make(map[int64]int),
		quotas:          make(map[int64]*model.WeeklyQuota),
		quotaSynced:     make(map[int64]int),
		unsyncedWindows: make(map[int64]bool),
		windows:         make(map[int64][7]model.DayWindow),
		windowsSynced:   make(map[int64]int),
	}
}

func (s *fakeStore) ListTargets() ([]model.Target, error) {
	s.mu.Lock()
	s.listCalls++
	gate := s.listGate
	err := s.listErr
	targets := append([]model.Target(nil), s.targets...)
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return targets, err
}

func (s *fakeStore) PendingAdjustment(id int64) (int, string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.pending[id]
	return d.seconds, d.op, ok, nil
}

func (s *fakeStore) ClearPendingAdjustment(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	s.cleared[id]++
	return nil
}

func (s *fakeStore) TouchTargetChecked(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[id]++
	return nil
}

func (s *fakeStore) CommitStatus(id int64, raw string, timeSpent int, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, commit{id, raw, timeSpent, day})
	return nil
}

func (s *fakeStore) GetWeeklyQuota(id int64) (*model.WeeklyQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quotas[id], nil
}

func (s *fakeStore) MarkQuotaSynced(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotaSynced[id]++
	if q := s.quotas[id]; q != nil {
		q.Synced = true
	}
	return nil
}

func (s *fakeStore) HasUnsyncedWindows(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsyncedWindows[id], nil
}

func (s *fakeStore) GetDayWindows(id int64) ([7]model.DayWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windows[id], nil
}

func (s *fakeStore) MarkWindowsSynced(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowsSynced[id]++
	s.unsyncedWindows[id] = false
	return nil
}

type fakeClient struct {
	adjustOK    bool
	adjustCalls int

	statusValid   bool
	statusMsg     string
	statusErr     error
	statusPanics  bool
	report        map[string]any
	statusQueries int

	quotaOK    bool
	quotaCalls int

	windowsOK        bool
	windowsSucceeded int
	windowsCalls     int
}

func (c *fakeClient) FetchStatus(user string) (bool, string, map[string]any, error) {
	c.statusQueries++
	if c.statusPanics {
		panic("broken client")
	}
	if c.statusErr != nil {
		return false, "", nil, c.statusErr
	}
	if !c.statusValid {
		return false, c.statusMsg, nil, nil
	}
	return true, "raw", c.report, nil
}

func (c *fakeClient) AdjustTime(user, op string, seconds int) (bool, string) {
	c.adjustCalls++
	if !c.adjustOK {
		return false, "machine offline"
	}
	return true, "done"
}

func (c *fakeClient) PushWeeklyQuota(user string, seconds [7]int) (bool, string) {
	c.quotaCalls++
	if !c.quotaOK {
		return false, "push failed"
	}
	return true, "pushed"
}

func (c *fakeClient) PushDailyWindows(user string, windows [7]model.DayWindow) (bool, int, string) {
	c.windowsCalls++
	return c.windowsOK, c.windowsSucceeded, "detail"
}

func newReconciler(store *fakeStore, clients map[string]*fakeClient) *Reconciler {
	return New(store, func(host string) AgentClient {
		return clients[host]
	}, zerolog.Nop())
}

func target(id int64, user, host string) model.Target {
	return model.Target{ID: id, Username: user, Address: host, Valid: true}
}

func okClient() *fakeClient {
	return &fakeClient{
		adjustOK:    true,
		statusValid: true,
		report:      map[string]any{"TIME_SPENT_DAY": 3600},
		quotaOK:     true,
	}
}

func TestPendingAdjustmentClearedExactlyOnceOnSuccess(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"))
	store.pending[1] = pendingDelta{900, "+"}
	client := okClient()
	r := newReconciler(store, map[string]*fakeClient{"pc1": client})

	require.NoError(t, r.Run())
	assert.Equal(t, 1, client.adjustCalls)
	assert.Equal(t, 1, store.cleared[1])

	// A second pass must not re-apply the already-cleared delta.
	require.NoError(t, r.Run())
	assert.Equal(t, 1, client.adjustCalls)
	assert.Equal(t, 1, store.cleared[1])
}

func TestPendingAdjustmentKeptOnFailure(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"))
	store.pending[1] = pendingDelta{900, "+"}
	client := okClient()
	client.adjustOK = false
	r := newReconciler(store, map[string]*fakeClient{"pc1": client})

	require.NoError(t, r.Run())
	assert.Zero(t, store.cleared[1])
	_, _, stillPending, _ := store.PendingAdjustment(1)
	assert.True(t, stillPending)

	// Status refresh still ran despite the failed adjustment.
	assert.Equal(t, 1, client.statusQueries)
}

func TestTransientStatusFailureOnlyTouchesTimestamp(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"))
	client := okClient()
	client.statusErr = errors.New("connection refused")
	r := newReconciler(store, map[string]*fakeClient{"pc1": client})

	require.NoError(t, r.Run())
	assert.Equal(t, 1, store.touched[1])
	assert.Empty(t, store.commits, "a transient failure must not mutate the snapshot")
}

func TestUnmanagedReportKeepsExistingValidity(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"))
	client := okClient()
	client.statusValid = false
	client.statusMsg = "user not found"
	r := newReconciler(store, map[string]*fakeClient{"pc1": client})

	require.NoError(t, r.Run())
	assert.Equal(t, 1, store.touched[1])
	assert.Empty(t, store.commits)
}

func TestSuccessfulStatusCommitsUsageOverwrite(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"))
	client := okClient()
	r := newReconciler(store, map[string]*fakeClient{"pc1": client})

	require.NoError(t, r.Run())
	require.NoError(t, r.Run())

	// Two passes, two commits, same day: the store upserts so there is
	// still at most one record per (target, day).
	require.Len(t, store.commits, 2)
	for _, c := range store.commits {
		assert.Equal(t, int64(1), c.targetID)
		assert.Equal(t, 3600, c.timeSpent)
		assert.Equal(t, Today(), c.day)
		assert.Contains(t, c.raw, "TIME_SPENT_DAY")
	}
}

func TestOneTargetFailureDoesNotAbortOthers(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"), target(2, "teen", "pc2"))
	broken := okClient()
	broken.statusPanics = true
	healthy := okClient()
	r := newReconciler(store, map[string]*fakeClient{"pc1": broken, "pc2": healthy})

	require.NoError(t, r.Run(), "a per-target panic must not escape the pass")
	require.Len(t, store.commits, 1)
	assert.Equal(t, int64(2), store.commits[0].targetID)
}

func TestUnsyncedQuotaPushedThenMarkedSynced(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"))
	store.quotas[1] = &model.WeeklyQuota{TargetID: 1, Seconds: [7]int{7200}, Synced: false}
	client := okClient()
	r := newReconciler(store, map[string]*fakeClient{"pc1": client})

	require.NoError(t, r.Run())
	assert.Equal(t, 1, client.quotaCalls)
	assert.Equal(t, 1, store.quotaSynced[1])

	// Synced now: the next pass must not push again.
	require.NoError(t, r.Run())
	assert.Equal(t, 1, client.quotaCalls)
}

func TestFailedQuotaPushStaysUnsynced(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"))
	store.quotas[1] = &model.WeeklyQuota{TargetID: 1, Seconds: [7]int{7200}, Synced: false}
	client := okClient()
	client.quotaOK = false
	r := newReconciler(store, map[string]*fakeClient{"pc1": client})

	require.NoError(t, r.Run())
	assert.Zero(t, store.quotaSynced[1])

	require.NoError(t, r.Run())
	assert.Equal(t, 2, client.quotaCalls, "unsynced quota is retried every pass")
}

func TestAllZeroQuotaConvergesWithoutPush(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"))
	store.quotas[1] = &model.WeeklyQuota{TargetID: 1, Synced: false}
	client := okClient()
	r := newReconciler(store, map[string]*fakeClient{"pc1": client})

	require.NoError(t, r.Run())
	assert.Zero(t, client.quotaCalls, "nothing to push for an all-zero quota")
	assert.Equal(t, 1, store.quotaSynced[1])
}

func TestWindowsMarkedSyncedOnlyOnFullSuccess(t *testing.T) {
	store := newFakeStore(target(1, "kid", "pc1"))
	store.unsyncedWindows[1] = true
	client := okClient()
	client.windowsOK = true
	client.windowsSucceeded = 3 // partial
	r := newReconciler(store, map[string]*fakeClient{"pc1": client})

	require.NoError(t, r.Run())
	assert.Zero(t, store.windowsSynced[1], "a partial push must stay unsynced")

	client.windowsSucceeded = 7
	require.NoError(t, r.Run())
	assert.Equal(t, 1, store.windowsSynced[1])

	// Fully synced: no further pushes.
	require.NoError(t, r.Run())
	assert.Equal(t, 2, client.windowsCalls)
}
