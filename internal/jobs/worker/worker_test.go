package worker

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/clients/sendgrid"
	"github.com/fletar/fletar-backend/internal/data/repos"
	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
)

type fakeSender struct {
	channel types.NotificationChannel

	mu   sync.Mutex
	err  error
	sent []uuid.UUID
}

func (f *fakeSender) Channel() types.NotificationChannel { return f.channel }

func (f *fakeSender) Send(ctx context.Context, n *types.Notification, recipient *types.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n.ID)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	db     *gorm.DB
	repo   repos.NotificationRepo
	user   *types.User
	push   *fakeSender
	worker *Worker
	clock  time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		db:    db,
		repo:  repos.NewNotificationRepo(db, log),
		user:  testutil.SeedUser(t, db, types.UserTypeDador),
		push:  &fakeSender{channel: types.ChannelPush},
		clock: time.Now().UTC(),
	}
	f.worker = NewWorker(log, f.repo, repos.NewUserRepo(db, log), []Sender{f.push}, cfg)
	f.worker.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) enqueue(t *testing.T, channel types.NotificationChannel, mutate ...func(*types.Notification)) *types.Notification {
	t.Helper()
	n := &types.Notification{
		ID:             uuid.New(),
		UserID:         f.user.ID,
		Channel:        channel,
		Event:          "carga.completada",
		Title:          "Carga completada",
		Body:           "Soja a granel fue marcada como completada",
		IdempotencyKey: uuid.NewString(),
		Status:         types.NotificationQueued,
		NextAttemptAt:  f.clock.Add(-time.Second),
	}
	for _, m := range mutate {
		m(n)
	}
	if _, err := f.repo.Enqueue(dbctx.New(context.Background()), []*types.Notification{n}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return n
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *types.Notification {
	t.Helper()
	n, err := f.repo.GetByID(dbctx.New(context.Background()), id)
	if err != nil || n == nil {
		t.Fatalf("reload %s: %v", id, err)
	}
	return n
}

func (f *fixture) process(t *testing.T) bool {
	t.Helper()
	ok, err := f.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	return ok
}

func TestProcessNextDelivers(t *testing.T) {
	f := newFixture(t, Config{})
	n := f.enqueue(t, types.ChannelPush)

	if !f.process(t) {
		t.Fatalf("expected a due notification to be claimed")
	}
	got := f.reload(t, n.ID)
	if got.Status != types.NotificationSent || got.SentAt == nil || got.Attempts != 1 {
		t.Fatalf("unexpected row after delivery: %+v", got)
	}
	if f.push.count() != 1 {
		t.Fatalf("sender called %d times", f.push.count())
	}
	if f.process(t) {
		t.Fatalf("nothing should be left to claim")
	}
}

func TestProcessNextSkipsFutureRows(t *testing.T) {
	f := newFixture(t, Config{})
	f.enqueue(t, types.ChannelPush, func(n *types.Notification) { n.NextAttemptAt = f.clock.Add(time.Minute) })
	if f.process(t) {
		t.Fatalf("rows scheduled in the future must not be claimed")
	}
}

func TestProcessNextSchedulesRetry(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 3})
	f.push.err = errors.New("connection reset")
	n := f.enqueue(t, types.ChannelPush)

	f.process(t)
	got := f.reload(t, n.ID)
	if got.Status != types.NotificationFailed || got.Attempts != 1 || got.LastError != "connection reset" {
		t.Fatalf("unexpected row after failure: %+v", got)
	}
	delay := got.NextAttemptAt.Sub(f.clock)
	if delay < 24*time.Second || delay > 36*time.Second {
		t.Fatalf("first retry should be ~30s out, got %s", delay)
	}

	// not due yet
	if f.process(t) {
		t.Fatalf("failed row claimed before its backoff elapsed")
	}

	f.clock = f.clock.Add(time.Minute)
	f.process(t)
	got = f.reload(t, n.ID)
	if got.Attempts != 2 {
		t.Fatalf("expected second attempt, got %+v", got)
	}
	delay = got.NextAttemptAt.Sub(f.clock)
	if delay < 48*time.Second || delay > 72*time.Second {
		t.Fatalf("second retry should be ~60s out, got %s", delay)
	}
}

func TestProcessNextDeadLettersAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 2})
	f.push.err = errors.New("timeout")
	n := f.enqueue(t, types.ChannelPush)

	f.process(t)
	f.clock = f.clock.Add(2 * time.Minute)
	f.process(t)

	got := f.reload(t, n.ID)
	if got.Status != types.NotificationDead || got.Attempts != 2 {
		t.Fatalf("expected dead after 2 attempts, got %+v", got)
	}
	f.clock = f.clock.Add(24 * time.Hour)
	if f.process(t) {
		t.Fatalf("dead rows must not be retried automatically")
	}
}

func TestProcessNextPermanentFailures(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 5})
	f.push.err = Permanent(errors.New("bad payload"))
	pushRow := f.enqueue(t, types.ChannelPush)
	// no sms sender configured
	smsRow := f.enqueue(t, types.ChannelSMS)

	f.process(t)
	f.process(t)

	for _, id := range []uuid.UUID{pushRow.ID, smsRow.ID} {
		got := f.reload(t, id)
		if got.Status != types.NotificationDead || got.Attempts != 1 {
			t.Fatalf("permanent failure should dead-letter at once: %+v", got)
		}
	}
}

func TestProcessNextBlockedRecipient(t *testing.T) {
	f := newFixture(t, Config{})
	n := f.enqueue(t, types.ChannelPush)
	if err := f.db.Model(&types.User{}).Where("id = ?", f.user.ID).Update("blocked", true).Error; err != nil {
		t.Fatalf("block user: %v", err)
	}
	f.process(t)
	if got := f.reload(t, n.ID); got.Status != types.NotificationDead {
		t.Fatalf("blocked recipients should not be retried: %+v", got)
	}
	if f.push.count() != 0 {
		t.Fatalf("sender should not be called for blocked users")
	}
}

func TestProcessNextReclaimsStaleSending(t *testing.T) {
	f := newFixture(t, Config{StaleSending: 10 * time.Minute})
	stale := f.clock.Add(-20 * time.Minute)
	fresh := f.clock.Add(-time.Minute)
	staleRow := f.enqueue(t, types.ChannelPush, func(n *types.Notification) {
		n.Status = types.NotificationSending
		n.Attempts = 1
		n.LockedAt = &stale
	})
	freshRow := f.enqueue(t, types.ChannelPush, func(n *types.Notification) {
		n.Status = types.NotificationSending
		n.Attempts = 1
		n.LockedAt = &fresh
	})

	f.process(t)
	if f.process(t) {
		t.Fatalf("a row locked a minute ago belongs to a live worker")
	}
	if got := f.reload(t, staleRow.ID); got.Status != types.NotificationSent || got.Attempts != 2 {
		t.Fatalf("stale row not reclaimed: %+v", got)
	}
	if got := f.reload(t, freshRow.ID); got.Status != types.NotificationSending {
		t.Fatalf("fresh row should be untouched: %+v", got)
	}
}

func TestClassifyHTTPErrors(t *testing.T) {
	if !IsPermanent(classify(&sendgrid.HTTPError{StatusCode: http.StatusBadRequest})) {
		t.Fatalf("400 should be permanent")
	}
	if IsPermanent(classify(&sendgrid.HTTPError{StatusCode: http.StatusServiceUnavailable})) {
		t.Fatalf("503 should be retried")
	}
	if IsPermanent(classify(errors.New("dial tcp: i/o timeout"))) {
		t.Fatalf("transport errors should be retried")
	}
	if classify(nil) != nil {
		t.Fatalf("nil stays nil")
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"connection reset", 1000, "connection reset"},
		{strings.Repeat("a", 999) + "ñ", 1000, strings.Repeat("a", 999)},
		{"número inválido", 2, "n"},
		{"rechazado\xff por\x00 el proveedor", 1000, "rechazado\uFFFD por el proveedor"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.max)
		if got != tc.want || !utf8.ValidString(got) || len(got) > tc.max {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestProcessNextStoresMultibyteErrors(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 1})
	f.push.err = errors.New(strings.Repeat("x", 999) + "ñandú rechazado")
	n := f.enqueue(t, types.ChannelPush)

	f.process(t)
	got := f.reload(t, n.ID)
	if got.Status != types.NotificationDead || !utf8.ValidString(got.LastError) || len(got.LastError) != 999 {
		t.Fatalf("unexpected row: status=%s len=%d", got.Status, len(got.LastError))
	}
}

func TestBackoffCaps(t *testing.T) {
	for attempt := 1; attempt <= 20; attempt++ {
		d := Backoff(attempt)
		if d <= 0 || d > MaxBackoff+MaxBackoff/5 {
			t.Fatalf("attempt %d: backoff %s out of range", attempt, d)
		}
	}
	if d := Backoff(12); d < MaxBackoff-MaxBackoff/5 {
		t.Fatalf("late attempts should sit at the cap, got %s", d)
	}
}

func TestStartDrainsAndStops(t *testing.T) {
	f := newFixture(t, Config{Concurrency: 3, PollInterval: 10 * time.Millisecond})
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f.worker.now = func() time.Time { return time.Now().UTC() }
	for i := 0; i < 5; i++ {
		f.enqueue(t, types.ChannelPush)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.worker.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for f.push.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	f.worker.Wait()

	if f.push.count() != 5 {
		t.Fatalf("expected 5 deliveries, got %d", f.push.count())
	}
	counts, err := f.repo.CountByStatus(dbctx.New(context.Background()))
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[string(types.NotificationSent)] != 5 {
		t.Fatalf("all rows should be sent: %v", counts)
	}
}
