package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/observability"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/envutil"
	"github.com/fletar/fletar-backend/internal/pkg/httpx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const (
	BaseBackoff = 30 * time.Second
	MaxBackoff  = time.Hour
)

type Config struct {
	Concurrency  int
	MaxAttempts  int
	PollInterval time.Duration
	StaleSending time.Duration
	SendTimeout  time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:  envutil.Int("NOTIFY_WORKER_CONCURRENCY", 4),
		MaxAttempts:  envutil.Int("NOTIFY_MAX_ATTEMPTS", 5),
		PollInterval: envutil.Duration("NOTIFY_POLL_INTERVAL", time.Second),
		StaleSending: envutil.Duration("NOTIFY_STALE_SENDING", 10*time.Minute),
		SendTimeout:  envutil.Duration("NOTIFY_SEND_TIMEOUT", 30*time.Second),
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StaleSending <= 0 {
		c.StaleSending = 10 * time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	return c
}

// Backoff is the delay before retry number attempt+1: 30s doubling up to an
// hour, spread by +/-20%.
func Backoff(attempt int) time.Duration {
	return httpx.JitterSleep(httpx.ExponentialBackoff(attempt, BaseBackoff, MaxBackoff))
}

// Worker drains the notification outbox.
type Worker struct {
	log      *logger.Logger
	repo     repos.NotificationRepo
	userRepo repos.UserRepo
	senders  map[types.NotificationChannel]Sender
	cfg      Config
	now      func() time.Time

	wg sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, repo repos.NotificationRepo, userRepo repos.UserRepo, senders []Sender, cfg Config) *Worker {
	byChannel := make(map[types.NotificationChannel]Sender, len(senders))
	for _, s := range senders {
		if s != nil {
			byChannel[s.Channel()] = s
		}
	}
	return &Worker{
		log:      baseLog.With("component", "NotificationWorker"),
		repo:     repo,
		userRepo: userRepo,
		senders:  byChannel,
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the pool. Loops stop when ctx is cancelled; Wait blocks
// until they have.
func (w *Worker) Start(ctx context.Context) {
	channels := make([]string, 0, len(w.senders))
	for ch := range w.senders {
		channels = append(channels, string(ch))
	}
	w.log.Info("Starting notification worker pool", "concurrency", w.cfg.Concurrency, "channels", channels)
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		}
		// drain everything due before sleeping again
		for ctx.Err() == nil {
			processed, err := w.ProcessNext(ctx)
			if err != nil {
				w.log.Warn("Notification processing failed", "worker_id", workerID, "error", err)
				break
			}
			if !processed {
				break
			}
		}
	}
}

// ProcessNext claims and delivers one due notification. It reports whether a
// row was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	dbc := dbctx.New(ctx)
	n, err := w.repo.ClaimNextDue(dbc, w.now(), w.cfg.StaleSending)
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	if n == nil {
		return false, nil
	}

	start := time.Now()
	sendErr := w.safeDeliver(ctx, n)
	outcome := w.settle(dbc, n, sendErr)
	observability.ObserveDelivery(string(n.Channel), string(outcome), time.Since(start))
	return true, nil
}

func (w *Worker) safeDeliver(ctx context.Context, n *types.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Sender panic", "notification_id", n.ID, "channel", n.Channel, "panic", r)
			err = Permanent(fmt.Errorf("sender panic"))
		}
	}()
	sender, ok := w.senders[n.Channel]
	if !ok {
		return Permanent(fmt.Errorf("no sender configured for channel %s", n.Channel))
	}
	recipient, err := w.userRepo.GetByID(dbctx.New(ctx), n.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if recipient == nil || recipient.Blocked {
		return Permanent(fmt.Errorf("recipient unavailable"))
	}
	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()
	return sender.Send(sendCtx, n, recipient)
}

// settle records the delivery outcome. Failures to persist it are logged;
// the row is reclaimed once its sending lock goes stale.
func (w *Worker) settle(dbc dbctx.Context, n *types.Notification, sendErr error) types.NotificationStatus {
	now := w.now()
	if sendErr == nil {
		if err := w.repo.MarkSent(dbc, n.ID, now); err != nil {
			w.log.Error("MarkSent failed", "notification_id", n.ID, "error", err)
		}
		return types.NotificationSent
	}

	msg := truncate(sendErr.Error(), 1000)
	if IsPermanent(sendErr) || n.Attempts >= w.cfg.MaxAttempts {
		w.log.Warn("Notification dead-lettered",
			"notification_id", n.ID,
			"channel", n.Channel,
			"attempts", n.Attempts,
			"error", sendErr,
		)
		if err := w.repo.MarkDead(dbc, n.ID, msg); err != nil {
			w.log.Error("MarkDead failed", "notification_id", n.ID, "error", err)
		}
		return types.NotificationDead
	}

	next := now.Add(Backoff(n.Attempts))
	w.log.Info("Notification delivery failed; retry scheduled",
		"notification_id", n.ID,
		"channel", n.Channel,
		"attempts", n.Attempts,
		"next_attempt_at", next,
		"error", sendErr,
	)
	if err := w.repo.MarkFailed(dbc, n.ID, msg, next); err != nil {
		w.log.Error("MarkFailed failed", "notification_id", n.ID, "error", err)
	}
	return types.NotificationFailed
}

// truncate cuts s to at most max bytes on a rune boundary. Postgres text
// columns reject invalid UTF-8 and NUL bytes, so both are scrubbed first.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
