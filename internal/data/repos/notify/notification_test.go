package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/data/repos/testutil"
	types "github.com/fletar/fletar-backend/internal/domain"
	notifydomain "github.com/fletar/fletar-backend/internal/domain/notify"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
)

func newRow(userID, entityID uuid.UUID, ch types.NotificationChannel) *types.Notification {
	return &types.Notification{
		UserID:         userID,
		Channel:        ch,
		Event:          "postulacion.created",
		EntityID:       &entityID,
		Title:          "Nueva postulación",
		Body:           "Un camionero se postuló a tu carga",
		IdempotencyKey: notifydomain.IdempotencyKey("postulacion.created", entityID, userID, ch),
	}
}

func TestNotificationRepoEnqueueIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	repo := NewNotificationRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	user, entity := uuid.New(), uuid.New()
	n, err := repo.Enqueue(dbc, []*types.Notification{
		newRow(user, entity, types.ChannelPush),
		newRow(user, entity, types.ChannelEmail),
	})
	if err != nil || n != 2 {
		t.Fatalf("Enqueue: n=%d err=%v", n, err)
	}
	n, err = repo.Enqueue(dbc, []*types.Notification{newRow(user, entity, types.ChannelPush)})
	if err != nil || n != 0 {
		t.Fatalf("duplicate Enqueue: n=%d err=%v", n, err)
	}
	counts, err := repo.CountByStatus(dbc)
	if err != nil || counts[string(types.NotificationQueued)] != 2 {
		t.Fatalf("CountByStatus: %v err=%v", counts, err)
	}
}

func TestNotificationRepoClaimLifecycle(t *testing.T) {
	db := testutil.DB(t)
	repo := NewNotificationRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	now := time.Now().UTC()
	row := newRow(uuid.New(), uuid.New(), types.ChannelEmail)
	row.NextAttemptAt = now.Add(-time.Second)
	future := newRow(uuid.New(), uuid.New(), types.ChannelEmail)
	future.NextAttemptAt = now.Add(time.Hour)
	if _, err := repo.Enqueue(dbc, []*types.Notification{row, future}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := repo.ClaimNextDue(dbc, now, 10*time.Minute)
	if err != nil || claimed == nil || claimed.ID != row.ID {
		t.Fatalf("ClaimNextDue: got=%v err=%v", claimed, err)
	}
	if claimed.Attempts != 1 || claimed.Status != types.NotificationSending {
		t.Fatalf("claimed row: %+v", claimed)
	}
	if again, err := repo.ClaimNextDue(dbc, now, 10*time.Minute); err != nil || again != nil {
		t.Fatalf("nothing else should be due: got=%v err=%v", again, err)
	}

	// A worker that died mid-send leaves the row in sending; it is
	// reclaimed once the lock is stale.
	later := now.Add(11 * time.Minute)
	reclaimed, err := repo.ClaimNextDue(dbc, later, 10*time.Minute)
	if err != nil || reclaimed == nil || reclaimed.ID != row.ID || reclaimed.Attempts != 2 {
		t.Fatalf("stale reclaim: got=%+v err=%v", reclaimed, err)
	}

	if err := repo.MarkFailed(dbc, row.ID, "smtp 503", later.Add(time.Minute)); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if got, _ := repo.ClaimNextDue(dbc, later, 10*time.Minute); got != nil {
		t.Fatalf("failed row claimed before its retry time")
	}
	if err := repo.MarkDead(dbc, row.ID, "gave up"); err != nil {
		t.Fatalf("MarkDead: %v", err)
	}
	n, err := repo.RetryAllDead(dbc, later)
	if err != nil || n != 1 {
		t.Fatalf("RetryAllDead: n=%d err=%v", n, err)
	}
	got, _ := repo.GetByID(dbc, row.ID)
	if got.Status != types.NotificationQueued || got.Attempts != 0 || got.LastError != "" {
		t.Fatalf("requeued row: %+v", got)
	}

	claimed, _ = repo.ClaimNextDue(dbc, later, 10*time.Minute)
	if err := repo.MarkSent(dbc, claimed.ID, later); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if ok, err := repo.Retry(dbc, claimed.ID, later); err != nil || ok {
		t.Fatalf("sent rows are not retryable: ok=%v err=%v", ok, err)
	}
}

func TestNotificationRepoReadState(t *testing.T) {
	db := testutil.DB(t)
	repo := NewNotificationRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	user := uuid.New()
	first := newRow(user, uuid.New(), types.ChannelPush)
	second := newRow(user, uuid.New(), types.ChannelPush)
	mail := newRow(user, uuid.New(), types.ChannelEmail)
	if _, err := repo.Enqueue(dbc, []*types.Notification{first, second, mail}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	now := time.Now().UTC()
	n, err := repo.MarkRead(dbc, user, []uuid.UUID{first.ID}, now)
	if err != nil || n != 1 {
		t.Fatalf("MarkRead: n=%d err=%v", n, err)
	}
	if n, _ := repo.MarkRead(dbc, uuid.New(), []uuid.UUID{second.ID}, now); n != 0 {
		t.Fatalf("other users cannot mark my notifications")
	}

	list, total, err := repo.ListForUser(dbc, user, types.ChannelPush, false, 10, 0)
	if err != nil || total != 2 {
		t.Fatalf("ListForUser: total=%d err=%v", total, err)
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("unread should come first")
	}

	unread, _ := repo.UnreadCount(dbc, user)
	if unread != 1 {
		t.Fatalf("UnreadCount = %d", unread)
	}
	if n, err := repo.MarkAllRead(dbc, user, now); err != nil || n != 1 {
		t.Fatalf("MarkAllRead: n=%d err=%v", n, err)
	}
}
