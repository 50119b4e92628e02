package reconcile

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tkremote/internal/agent"
	"tkremote/internal/model"
)

// Store is the slice of the persistence layer the reconciler needs. The
// reconciler holds no state across ticks beyond what the store persists.
type Store interface {
	ListTargets() ([]model.Target, error)
	PendingAdjustment(id int64) (seconds int, op string, ok bool, err error)
	ClearPendingAdjustment(id int64) error
	TouchTargetChecked(id int64) error
	CommitStatus(id int64, rawConfig string, timeSpent int, day time.Time) error
	GetWeeklyQuota(id int64) (*model.WeeklyQuota, error)
	MarkQuotaSynced(id int64) error
	HasUnsyncedWindows(id int64) (bool, error)
	GetDayWindows(id int64) ([7]model.DayWindow, error)
	MarkWindowsSynced(id int64) error
}

// AgentClient is one target's remote command surface for a single pass.
type AgentClient interface {
	FetchStatus(user string) (valid bool, message string, report map[string]any, err error)
	AdjustTime(user, op string, seconds int) (ok bool, message string)
	PushWeeklyQuota(user string, seconds [7]int) (ok bool, message string)
	PushDailyWindows(user string, windows [7]model.DayWindow) (ok bool, succeeded int, message string)
}

// ClientFactory builds a fresh client for one target address. Clients are
// never shared between targets or reused across passes.
type ClientFactory func(host string) AgentClient

type Reconciler struct {
	store     Store
	newClient ClientFactory
	log       zerolog.Logger
}

func New(store Store, factory ClientFactory, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, newClient: factory, log: log}
}

// Run performs one reconciliation pass: every managed target gets its
// pending mutations applied and its status refreshed, strictly one target
// after another. A target's failure is logged and never aborts the rest of
// the pass.
func (r *Reconciler) Run() error {
	targets, err := r.store.ListTargets()
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	r.log.Debug().Int("targets", len(targets)).Msg("reconciliation pass started")

	for _, t := range targets {
		if err := r.reconcileOne(t); err != nil {
			r.log.Error().Err(err).
				Str("user", t.Username).Str("host", t.Address).
				Msg("target reconciliation failed")
		}
	}
	return nil
}

func (r *Reconciler) reconcileOne(t model.Target) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic reconciling %s@%s: %v", t.Username, t.Address, rec)
		}
	}()

	log := r.log.With().Str("user", t.Username).Str("host", t.Address).Logger()
	client := r.newClient(t.Address)

	r.applyPendingAdjustment(client, t, log)
	r.pushSchedule(client, t, log)
	return r.refreshStatus(client, t, log)
}

// applyPendingAdjustment applies a queued time delta, reading it fresh
// from the store since the UI may have queued one at any moment. The delta
// is cleared exactly once on success and left untouched on failure so the
// next pass retries it.
func (r *Reconciler) applyPendingAdjustment(client AgentClient, t model.Target, log zerolog.Logger) {
	seconds, op, ok, err := r.store.PendingAdjustment(t.ID)
	if err != nil {
		log.Error().Err(err).Msg("reading pending adjustment failed")
		return
	}
	if !ok {
		return
	}

	applied, message := client.AdjustTime(t.Username, op, seconds)
	if !applied {
		log.Warn().Str("delta", fmt.Sprintf("%s%d", op, seconds)).Str("reason", message).
			Msg("pending adjustment not applied, keeping it queued")
		return
	}
	if err := r.store.ClearPendingAdjustment(t.ID); err != nil {
		log.Error().Err(err).Msg("clearing applied adjustment failed")
		return
	}
	log.Info().Str("delta", fmt.Sprintf("%s%d", op, seconds)).Msg("applied pending time adjustment")
}

// pushSchedule converges unsynced weekly quotas and access windows. Sync
// flags are cleared only on a full success; a partial window push stays
// unsynced and is re-pushed whole next pass, which is safe because the
// hour encoding is idempotent.
func (r *Reconciler) pushSchedule(client AgentClient, t model.Target, log zerolog.Logger) {
	quota, err := r.store.GetWeeklyQuota(t.ID)
	if err != nil {
		log.Error().Err(err).Msg("reading weekly quota failed")
	} else if quota != nil && !quota.Synced {
		if allZero(quota.Seconds) {
			// Nothing the agent could accept; the quota is converged by
			// definition.
			if err := r.store.MarkQuotaSynced(t.ID); err != nil {
				log.Error().Err(err).Msg("marking empty quota synced failed")
			}
		} else if ok, message := client.PushWeeklyQuota(t.Username, quota.Seconds); ok {
			if err := r.store.MarkQuotaSynced(t.ID); err != nil {
				log.Error().Err(err).Msg("marking quota synced failed")
			} else {
				log.Info().Msg("weekly quota pushed")
			}
		} else {
			log.Warn().Str("reason", message).Msg("weekly quota push failed, will retry")
		}
	}

	unsynced, err := r.store.HasUnsyncedWindows(t.ID)
	if err != nil {
		log.Error().Err(err).Msg("checking window sync state failed")
		return
	}
	if !unsynced {
		return
	}
	windows, err := r.store.GetDayWindows(t.ID)
	if err != nil {
		log.Error().Err(err).Msg("reading day windows failed")
		return
	}
	ok, succeeded, message := client.PushDailyWindows(t.Username, windows)
	if ok && succeeded == 7 {
		if err := r.store.MarkWindowsSynced(t.ID); err != nil {
			log.Error().Err(err).Msg("marking windows synced failed")
		} else {
			log.Info().Msg("access windows pushed")
		}
		return
	}
	log.Warn().Int("succeeded", succeeded).Str("detail", message).
		Msg("access window push incomplete, will retry")
}

// refreshStatus runs after the mutation steps regardless of their outcome.
// Transient failures update only the checked timestamp so an offline
// machine never loses its validity; only a successful query mutates the
// snapshot and today's usage record.
func (r *Reconciler) refreshStatus(client AgentClient, t model.Target, log zerolog.Logger) error {
	valid, message, report, err := client.FetchStatus(t.Username)
	if err != nil {
		log.Warn().Err(err).Msg("status refresh failed, keeping previous validity")
		return r.store.TouchTargetChecked(t.ID)
	}
	if !valid {
		// Authoritative "not managed". The validity flag is only flipped
		// false by the initial validation at the UI boundary; here the
		// previous state is kept so a recovering target is not lost.
		log.Warn().Str("reason", message).Msg("target reported unmanaged")
		return r.store.TouchTargetChecked(t.ID)
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report snapshot: %w", err)
	}
	timeSpent := agent.IntValue(report, agent.KeyTimeSpentDay, 0)
	if err := r.store.CommitStatus(t.ID, string(raw), timeSpent, Today()); err != nil {
		return fmt.Errorf("commit status: %w", err)
	}
	log.Debug().Int("time_spent", timeSpent).Msg("status refreshed")
	return nil
}

// Today is the calendar day used for usage records.
func Today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func allZero(seconds [7]int) bool {
	for _, s := range seconds {
		if s != 0 {
			return false
		}
	}
	return true
}
