package reconcile

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PassError captures the most recent unhandled failure of a pass. A later
// successful pass clears it.
type PassError struct {
	Message string    `json:"message"`
	Stack   string    `json:"stack,omitempty"`
	Time    time.Time `json:"time"`
}

// Status is the supervisor's externally visible state.
type Status struct {
	Running   bool       `json:"running"`
	LastPass  *time.Time `json:"last_pass,omitempty"`
	LastError *PassError `json:"last_error,omitempty"`
}

// Supervisor owns the background reconciliation worker: its lifecycle, the
// at-most-one-active-pass invariant and the retained last error. No other
// component touches the worker.
type Supervisor struct {
	reconciler  *Reconciler
	interval    time.Duration
	stopTimeout time.Duration
	log         zerolog.Logger

	mu      sync.Mutex // guards running, stop, done, lastPass, lastErr
	running bool
	stop    chan struct{}
	done    chan struct{}

	passMu   sync.Mutex // reentrancy guard, try-acquired per tick
	lastPass time.Time
	lastErr  *PassError
}

func NewSupervisor(r *Reconciler, interval, stopTimeout time.Duration, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		reconciler:  r,
		interval:    interval,
		stopTimeout: stopTimeout,
		log:         log,
	}
}

// Start launches the worker. Calling Start on a running supervisor is a
// no-op.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Info().Msg("worker already running, not starting again")
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	s.log.Info().Dur("interval", s.interval).Msg("background worker started")
}

// Stop requests termination and waits a bounded time for the worker to
// exit; it returns either way. Cancellation is cooperative, so latency is
// bounded by the sleep granularity, not instantaneous.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.log.Info().Msg("background worker stopped")
	case <-time.After(s.stopTimeout):
		s.log.Warn().Msg("background worker did not stop in time")
	}
}

// Restart is Stop then Start with a brief pause between.
func (s *Supervisor) Restart() {
	s.log.Info().Msg("restarting background worker")
	s.Stop()
	time.Sleep(time.Second)
	s.Start()
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running, LastError: s.lastErr}
	if !s.lastPass.IsZero() {
		lp := s.lastPass
		st.LastPass = &lp
	}
	return st
}

func (s *Supervisor) loop(stop, done chan struct{}) {
	defer close(done)
	for {
		s.tick()
		// Interruptible sleep so Stop is honored between passes.
		select {
		case <-stop:
			return
		case <-time.After(s.interval):
		}
	}
}

// tick runs one pass unless a previous one is still in flight, in which
// case this tick is skipped entirely rather than queued.
func (s *Supervisor) tick() {
	if !s.passMu.TryLock() {
		s.log.Info().Msg("previous pass still running, skipping tick")
		return
	}
	defer s.passMu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			s.recordError(fmt.Sprintf("panic in reconciliation pass: %v", rec), string(debug.Stack()))
		}
	}()

	if err := s.reconciler.Run(); err != nil {
		s.recordError(err.Error(), "")
		return
	}

	s.mu.Lock()
	s.lastPass = time.Now()
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Supervisor) recordError(message, stack string) {
	s.log.Error().Str("error", message).Msg("reconciliation pass failed")
	s.mu.Lock()
	s.lastErr = &PassError{Message: message, Stack: stack, Time: time.Now()}
	s.mu.Unlock()
}
