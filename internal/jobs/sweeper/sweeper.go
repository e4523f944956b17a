package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/fletar/fletar-backend/internal/pkg/envutil"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

// Task is one periodic maintenance step. It returns how many rows it touched.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Sweeper runs its tasks on a fixed interval until the context ends.
type Sweeper struct {
	log      *logger.Logger
	interval time.Duration
	tasks    []Task
}

func IntervalFromEnv() time.Duration {
	return envutil.Duration("SWEEP_INTERVAL", 15*time.Minute)
}

func New(baseLog *logger.Logger, interval time.Duration, tasks ...Task) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{
		log:      baseLog.With("component", "Sweeper"),
		interval: interval,
		tasks:    tasks,
	}
}

// Run sweeps once immediately and then on every tick. It returns nil when
// ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("Starting sweeper", "interval", s.interval.String(), "tasks", len(s.tasks))
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs every task. A failing task does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) map[string]int64 {
	out := make(map[string]int64, len(s.tasks))
	for _, task := range s.tasks {
		if ctx.Err() != nil {
			break
		}
		n, err := s.runTask(ctx, task)
		if err != nil {
			s.log.Warn("Sweep task failed", "task", task.Name, "error", err)
			continue
		}
		out[task.Name] = n
		if n > 0 {
			s.log.Info("Sweep task done", "task", task.Name, "affected", n)
		}
	}
	return out
}

func (s *Sweeper) runTask(ctx context.Context, task Task) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Sweep task panic", "task", task.Name, "panic", r)
			n = 0
			err = errPanic
		}
	}()
	return task.Run(ctx)
}

var errPanic = errors.New("sweep task panicked")
