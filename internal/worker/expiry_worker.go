package worker

import (
	"context"
	"time"

	"superexam-session-service/internal/domain"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is used when no interval is configured.
const DefaultSweepInterval = 30 * time.Second

// ExamSubmitter is the slice of the exam engine the sweeper needs.
type ExamSubmitter interface {
	ExpiredSessions(ctx context.Context) ([]domain.Session, error)
	Submit(ctx context.Context, sessionID string) (domain.Result, error)
}

// ExpiryWorker auto-submits timed sessions whose deadline passed while no client was watching.
// Submit is idempotent, so racing a client's own auto-submit is harmless.
type ExpiryWorker struct {
	exams    ExamSubmitter
	interval time.Duration
	log      zerolog.Logger
}

func NewExpiryWorker(exams ExamSubmitter, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &ExpiryWorker{
		exams:    exams,
		interval: interval,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start sweeps once immediately and then on every tick until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("expiry worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Sweep(ctx)
		select {
		case <-ctx.Done():
			w.log.Info().Msg("expiry worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep submits every expired session and returns how many submissions succeeded.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	expired, err := w.exams.ExpiredSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("list expired sessions failed")
		}
		return 0
	}
	submitted := 0
	for _, session := range expired {
		if ctx.Err() != nil {
			break
		}
		result, err := w.exams.Submit(ctx, session.ID)
		if err != nil {
			w.log.Warn().Err(err).Str("session_id", session.ID).Msg("auto-submit failed")
			continue
		}
		submitted++
		w.log.Info().
			Str("session_id", session.ID).
			Int("score", result.Score).
			Msg("expired session submitted")
	}
	return submitted
}
