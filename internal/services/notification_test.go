package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
)

func TestNotifierChannelsAndIdempotency(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, types.UserTypeDador)
	if err := env.userRepo.UpdateFields(dbctx.New(context.Background()), u.ID, map[string]interface{}{"notify_sms": true}); err != nil {
		t.Fatalf("enable sms: %v", err)
	}
	entity := uuid.New()
	ev := NotificationEvent{
		Type:     EventCargaCompletada,
		UserID:   u.ID,
		EntityID: entity,
		Data:     map[string]interface{}{"CargaTitle": "Soja a granel"},
	}

	n, err := env.notifier.Notify(dbctx.New(context.Background()), ev)
	if err != nil || n != 3 {
		t.Fatalf("expected push+email+sms rows, got n=%d err=%v", n, err)
	}
	rows := env.notifications(t, u.ID, EventCargaCompletada)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Status != types.NotificationQueued || !strings.Contains(r.Body, "Soja a granel") {
			t.Fatalf("unexpected row: %+v", r)
		}
		if r.EntityID == nil || *r.EntityID != entity {
			t.Fatalf("entity id not stored: %+v", r)
		}
	}

	n, err = env.notifier.Notify(dbctx.New(context.Background()), ev)
	if err != nil || n != 0 {
		t.Fatalf("repeated notify should insert nothing, got n=%d err=%v", n, err)
	}

	ev.Discriminator = "2"
	if n, _ := env.notifier.Notify(dbctx.New(context.Background()), ev); n != 3 {
		t.Fatalf("a new occurrence should enqueue again, got %d", n)
	}

	_, err = env.notifier.Notify(dbctx.New(context.Background()), NotificationEvent{Type: "carga.teleported", UserID: u.ID})
	if err == nil {
		t.Fatalf("unknown events must fail to render")
	}
}

func TestNotifierSkipsBlockedUsers(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, types.UserTypeCamionero)
	if err := env.userRepo.UpdateFields(dbctx.New(context.Background()), u.ID, map[string]interface{}{"blocked": true}); err != nil {
		t.Fatalf("block: %v", err)
	}
	n, err := env.notifier.Notify(dbctx.New(context.Background()), NotificationEvent{Type: EventCargaCompletada, UserID: u.ID, EntityID: uuid.New()})
	if err != nil || n != 0 {
		t.Fatalf("blocked users get nothing, got n=%d err=%v", n, err)
	}
}

func TestNotificationInbox(t *testing.T) {
	env := newTestEnv(t)
	svc := NewNotificationService(env.log, env.notificationRepo)
	u := env.seedUser(t, types.UserTypeDador)
	for i := 0; i < 3; i++ {
		if _, err := env.notifier.Notify(dbctx.New(context.Background()), NotificationEvent{Type: EventCargaCompletada, UserID: u.ID, EntityID: uuid.New()}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	ctx := asUser(u)

	page, err := svc.ListMine(ctx, false, 0, 0)
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if page.Total != 3 || page.Unread != 3 {
		t.Fatalf("inbox should only list push rows: %+v", page)
	}
	for _, n := range page.Items {
		if n.Channel != types.ChannelPush {
			t.Fatalf("non-push row in inbox: %+v", n)
		}
	}

	if n, err := svc.MarkRead(ctx, []uuid.UUID{page.Items[0].ID}); err != nil || n != 1 {
		t.Fatalf("MarkRead: n=%d err=%v", n, err)
	}
	page, _ = svc.ListMine(ctx, true, 0, 0)
	if page.Total != 2 || page.Unread != 2 {
		t.Fatalf("unread filter: %+v", page)
	}

	_, err = svc.MarkRead(ctx, nil)
	wantCode(t, err, "invalid_ids")

	// another user's ids are ignored
	other := env.seedUser(t, types.UserTypeDador)
	if n, _ := svc.MarkRead(asUser(other), []uuid.UUID{page.Items[0].ID}); n != 0 {
		t.Fatalf("marked %d foreign notifications", n)
	}

	if n, err := svc.MarkAllRead(ctx); err != nil || n != 2 {
		t.Fatalf("MarkAllRead: n=%d err=%v", n, err)
	}

	_, err = svc.ListMine(context.Background(), false, 0, 0)
	wantCode(t, err, "unauthorized")
}

func TestNotificationAdminRetry(t *testing.T) {
	env := newTestEnv(t)
	svc := NewNotificationService(env.log, env.notificationRepo)
	u := env.seedUser(t, types.UserTypeDador)
	if _, err := env.notifier.Notify(dbctx.New(context.Background()), NotificationEvent{Type: EventCargaCompletada, UserID: u.ID, EntityID: uuid.New()}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	rows := env.notifications(t, u.ID, EventCargaCompletada)
	queued := rows[0]
	dead := rows[1]
	if err := env.notificationRepo.MarkDead(dbctx.New(context.Background()), dead.ID, "bounced"); err != nil {
		t.Fatalf("MarkDead: %v", err)
	}

	err := svc.AdminRetry(context.Background(), queued.ID)
	wantCode(t, err, "not_retryable")

	items, total, err := svc.AdminList(context.Background(), types.NotificationDead, 0, 0)
	if err != nil || total != 1 || items[0].ID != dead.ID {
		t.Fatalf("AdminList dead: total=%d err=%v", total, err)
	}
	_, _, err = svc.AdminList(context.Background(), "lost", 0, 0)
	wantCode(t, err, "invalid_status")

	if err := svc.AdminRetry(context.Background(), dead.ID); err != nil {
		t.Fatalf("AdminRetry: %v", err)
	}
	got, _ := env.notificationRepo.GetByID(dbctx.New(context.Background()), dead.ID)
	if got.Status != types.NotificationQueued || got.Attempts != 0 || got.LastError != "" {
		t.Fatalf("row not requeued: %+v", got)
	}

	if err := env.notificationRepo.MarkDead(dbctx.New(context.Background()), dead.ID, "bounced again"); err != nil {
		t.Fatalf("MarkDead: %v", err)
	}
	if n, err := svc.RetryAllDead(context.Background()); err != nil || n != 1 {
		t.Fatalf("RetryAllDead: n=%d err=%v", n, err)
	}
}
