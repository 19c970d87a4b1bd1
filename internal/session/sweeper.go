package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often expired state is purged.
const DefaultSweepInterval = 5 * time.Minute

// SweepFunc purges expired state and reports how many entries it removed.
type SweepFunc func(ctx context.Context, now time.Time) (int, error)

type sweepTask struct {
	name string
	fn   SweepFunc
}

// Sweeper periodically purges expired sessions and any other registered
// expiring state.
type Sweeper struct {
	tasks        []sweepTask
	tickInterval time.Duration
	logger       *zap.Logger
}

// NewSweeper returns a Sweeper that purges expired sessions from store.
func NewSweeper(store Store, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{tickInterval: DefaultSweepInterval, logger: logger}
	s.Add("sessions", func(ctx context.Context, now time.Time) (int, error) {
		n, err := store.DeleteExpiredSessions(ctx, now)
		return int(n), err
	})
	return s
}

// Add registers another task. It must be called before Run.
func (s *Sweeper) Add(name string, fn SweepFunc) {
	s.tasks = append(s.tasks, sweepTask{name: name, fn: fn})
}

// SetTickInterval overrides the default tick interval. Non-positive values
// are ignored.
func (s *Sweeper) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tickInterval = d
	}
}

// Run sweeps once immediately and then on every tick. It blocks until the
// context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now().UTC()
	for _, t := range s.tasks {
		n, err := t.fn(ctx, now)
		if err != nil {
			s.logger.Error("sweep failed", zap.String("task", t.name), zap.Error(err))
			continue
		}
		if n > 0 {
			s.logger.Debug("swept expired entries", zap.String("task", t.name), zap.Int("count", n))
		}
	}
}
