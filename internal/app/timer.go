package app

import (
	"context"
	"sync/atomic"
	"time"

	"superexam-session-service/internal/domain"
)

// Untimed is returned by Remaining for sessions without a timer.
const Untimed time.Duration = -1

// DefaultTickInterval is the polling cadence of a TimerDriver.
const DefaultTickInterval = time.Second

// Remaining is the time left on a timed session at now, clamped at zero. It performs no I/O
// and never mutates the session.
func Remaining(session domain.Session, now time.Time) time.Duration {
	deadline, ok := session.Deadline()
	if !ok {
		return Untimed
	}
	left := deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether a timed session has run out at now.
func Expired(session domain.Session, now time.Time) bool {
	return Remaining(session, now) == 0
}

// TimerDriver is the polling loop that watches a timed session and submits it once when the
// clock reaches zero. One driver belongs to one client view of one session.
type TimerDriver struct {
	Session  domain.Session
	Interval time.Duration
	Now      func() time.Time
	// Submit is called at most once, on the first zero reading.
	Submit func(ctx context.Context) (domain.Result, error)
	// Completed, if set, is probed on each tick so completion through another path stops the loop.
	Completed func(ctx context.Context) (bool, error)
	// OnTick receives every reading, including the final zero.
	OnTick func(remaining time.Duration)

	fired atomic.Bool
}

// TimerOutcome describes why Run returned.
type TimerOutcome struct {
	Submitted bool
	Result    domain.Result
	// CompletedElsewhere is set when the loop stopped because the session was finished by another path.
	CompletedElsewhere bool
}

// Poll takes one reading. On the first zero reading it invokes Submit; later readings never do
// unless that submit failed, in which case the next zero reading retries.
func (d *TimerDriver) Poll(ctx context.Context) (remaining time.Duration, submitted bool, result domain.Result, err error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	remaining = Remaining(d.Session, now())
	if d.OnTick != nil {
		d.OnTick(remaining)
	}
	if remaining != 0 {
		return remaining, false, domain.Result{}, nil
	}
	if !d.fired.CompareAndSwap(false, true) {
		return remaining, false, domain.Result{}, nil
	}
	result, err = d.Submit(ctx)
	if err != nil {
		d.fired.Store(false)
		return remaining, false, domain.Result{}, err
	}
	return remaining, true, result, nil
}

// Fired reports whether the one-shot auto-submit has been triggered.
func (d *TimerDriver) Fired() bool {
	return d.fired.Load()
}

// Run polls until the session expires and is submitted, the session is completed elsewhere, or
// ctx is cancelled. Cancellation has no effect on the persisted session.
func (d *TimerDriver) Run(ctx context.Context) (TimerOutcome, error) {
	if !d.Session.TimerEnabled {
		return TimerOutcome{}, nil
	}
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if d.Completed != nil {
			done, err := d.Completed(ctx)
			if err != nil {
				return TimerOutcome{}, err
			}
			if done {
				return TimerOutcome{CompletedElsewhere: true}, nil
			}
		}

		remaining, submitted, result, err := d.Poll(ctx)
		if err != nil {
			return TimerOutcome{}, err
		}
		if submitted {
			return TimerOutcome{Submitted: true, Result: result}, nil
		}
		if remaining == 0 {
			// Already fired by a concurrent Poll.
			return TimerOutcome{}, nil
		}

		select {
		case <-ctx.Done():
			return TimerOutcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NewTimerDriver builds a driver whose auto-submit goes through the engine's idempotent Submit.
func (s *ExamService) NewTimerDriver(session domain.Session, interval time.Duration) *TimerDriver {
	return &TimerDriver{
		Session:  session,
		Interval: interval,
		Now:      s.now,
		Submit: func(ctx context.Context) (domain.Result, error) {
			return s.Submit(ctx, session.ID)
		},
		Completed: func(ctx context.Context) (bool, error) {
			current, err := s.loadSession(ctx, session.ID)
			if err != nil {
				return false, err
			}
			return current.IsTerminal(), nil
		},
	}
}

// ExpiredSessions lists active timed sessions whose deadline has passed at the engine clock.
func (s *ExamService) ExpiredSessions(ctx context.Context) ([]domain.Session, error) {
	active, err := s.sessions.List(ctx, domain.SessionFilter{Status: domain.StatusActive})
	if err != nil {
		return nil, s.dependency("list active sessions", err)
	}
	now := s.now()
	var expired []domain.Session
	for _, session := range active {
		if session.TimerEnabled && Expired(session, now) {
			expired = append(expired, session)
		}
	}
	return expired, nil
}
