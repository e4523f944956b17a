package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/ctxutil"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type NotificationPage struct {
	Items  []*types.Notification `json:"items"`
	Total  int64                 `json:"total"`
	Unread int64                 `json:"unread"`
}

type NotificationService interface {
	ListMine(ctx context.Context, unreadOnly bool, limit, offset int) (*NotificationPage, error)
	MarkRead(ctx context.Context, ids []uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context) (int64, error)

	AdminList(ctx context.Context, status types.NotificationStatus, limit, offset int) ([]*types.Notification, int64, error)
	AdminRetry(ctx context.Context, id uuid.UUID) error
	RetryAllDead(ctx context.Context) (int64, error)
}

type notificationService struct {
	log              *logger.Logger
	notificationRepo repos.NotificationRepo
}

func NewNotificationService(log *logger.Logger, notificationRepo repos.NotificationRepo) NotificationService {
	return &notificationService{
		log:              log.With("service", "NotificationService"),
		notificationRepo: notificationRepo,
	}
}

func (s *notificationService) ListMine(ctx context.Context, unreadOnly bool, limit, offset int) (*NotificationPage, error) {
	userID := ctxutil.UserID(ctx)
	if userID == uuid.Nil {
		return nil, errUnauthenticated
	}
	dbc := dbctx.New(ctx)
	items, total, err := s.notificationRepo.ListForUser(dbc, userID, types.ChannelPush, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.notificationRepo.UnreadCount(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	return &NotificationPage{Items: items, Total: total, Unread: unread}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, ids []uuid.UUID) (int64, error) {
	userID := ctxutil.UserID(ctx)
	if userID == uuid.Nil {
		return 0, errUnauthenticated
	}
	if len(ids) == 0 {
		return 0, apierr.BadRequest("invalid_ids", "ids required")
	}
	if len(ids) > 200 {
		return 0, apierr.BadRequest("invalid_ids", "at most 200 ids per call")
	}
	return s.notificationRepo.MarkRead(dbctx.New(ctx), userID, ids, timeNow())
}

func (s *notificationService) MarkAllRead(ctx context.Context) (int64, error) {
	userID := ctxutil.UserID(ctx)
	if userID == uuid.Nil {
		return 0, errUnauthenticated
	}
	return s.notificationRepo.MarkAllRead(dbctx.New(ctx), userID, timeNow())
}

func (s *notificationService) AdminList(ctx context.Context, status types.NotificationStatus, limit, offset int) ([]*types.Notification, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apierr.BadRequest("invalid_status", "unknown notification status")
	}
	return s.notificationRepo.ListByStatus(dbctx.New(ctx), status, limit, offset)
}

func (s *notificationService) AdminRetry(ctx context.Context, id uuid.UUID) error {
	ok, err := s.notificationRepo.Retry(dbctx.New(ctx), id, timeNow())
	if err != nil {
		return fmt.Errorf("retry notification: %w", err)
	}
	if !ok {
		return apierr.Conflict("not_retryable", "only failed or dead notifications can be retried")
	}
	s.log.Info("Notification requeued", "notification_id", id)
	return nil
}

func (s *notificationService) RetryAllDead(ctx context.Context) (int64, error) {
	n, err := s.notificationRepo.RetryAllDead(dbctx.New(ctx), timeNow())
	if err != nil {
		return 0, err
	}
	s.log.Info("Dead notifications requeued", "count", n)
	return n, nil
}
