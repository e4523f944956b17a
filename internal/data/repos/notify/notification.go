package notify

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	datadb "github.com/fletar/fletar-backend/internal/data/db"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type NotificationRepo interface {
	Enqueue(dbc dbctx.Context, rows []*types.Notification) (int64, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Notification, error)
	ClaimNextDue(dbc dbctx.Context, now time.Time, staleSending time.Duration) (*types.Notification, error)
	MarkSent(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, lastErr string, nextAttemptAt time.Time) error
	MarkDead(dbc dbctx.Context, id uuid.UUID, lastErr string) error
	ListForUser(dbc dbctx.Context, userID uuid.UUID, channel types.NotificationChannel, unreadOnly bool, limit, offset int) ([]*types.Notification, int64, error)
	UnreadCount(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	MarkRead(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error)
	MarkAllRead(dbc dbctx.Context, userID uuid.UUID, at time.Time) (int64, error)
	ListByStatus(dbc dbctx.Context, status types.NotificationStatus, limit, offset int) ([]*types.Notification, int64, error)
	Retry(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error)
	RetryAllDead(dbc dbctx.Context, now time.Time) (int64, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type notificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
	return &notificationRepo{db: db, log: baseLog.With("repo", "NotificationRepo")}
}

// Enqueue inserts rows, skipping any whose idempotency key already exists.
// It returns how many rows were actually inserted.
func (r *notificationRepo) Enqueue(dbc dbctx.Context, rows []*types.Notification) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *notificationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Notification, error) {
	var n types.Notification
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&n).Error; err != nil {
		return nil, err
	}
	if n.ID == uuid.Nil {
		return nil, nil
	}
	return &n, nil
}

// ClaimNextDue picks the oldest due row, or a row stuck in sending longer
// than staleSending, marks it sending and bumps its attempt counter.
func (r *notificationRepo) ClaimNextDue(dbc dbctx.Context, now time.Time, staleSending time.Duration) (*types.Notification, error) {
	staleCutoff := now.Add(-staleSending)
	var claimed *types.Notification
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		q := txx
		if datadb.IsPostgres(txx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var n types.Notification
		qErr := q.Where(`
        (
          status IN ? AND next_attempt_at <= ?
        ) OR (
          status = ? AND locked_at IS NOT NULL AND locked_at < ?
        )
      `, []types.NotificationStatus{types.NotificationQueued, types.NotificationFailed}, now,
			types.NotificationSending, staleCutoff).
			Order("next_attempt_at ASC").
			Order("created_at ASC").
			First(&n).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		uErr := txx.Model(&types.Notification{}).
			Where("id = ?", n.ID).
			Updates(map[string]interface{}{
				"status":     types.NotificationSending,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		n.Status = types.NotificationSending
		n.Attempts++
		n.LockedAt = &now
		claimed = &n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *notificationRepo) MarkSent(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":     types.NotificationSent,
		"sent_at":    at,
		"locked_at":  nil,
		"last_error": "",
		"updated_at": at,
	})
}

func (r *notificationRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, lastErr string, nextAttemptAt time.Time) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":          types.NotificationFailed,
		"next_attempt_at": nextAttemptAt,
		"locked_at":       nil,
		"last_error":      lastErr,
		"updated_at":      time.Now().UTC(),
	})
}

func (r *notificationRepo) MarkDead(dbc dbctx.Context, id uuid.UUID, lastErr string) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":     types.NotificationDead,
		"locked_at":  nil,
		"last_error": lastErr,
		"updated_at": time.Now().UTC(),
	})
}

func (r *notificationRepo) update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return dbc.DB(r.db).Model(&types.Notification{}).Where("id = ?", id).Updates(updates).Error
}

// ListForUser returns unread rows first, newest first within each group.
func (r *notificationRepo) ListForUser(dbc dbctx.Context, userID uuid.UUID, channel types.NotificationChannel, unreadOnly bool, limit, offset int) ([]*types.Notification, int64, error) {
	q := dbc.DB(r.db).Model(&types.Notification{}).Where("user_id = ?", userID)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Notification
	if err := q.Session(&gorm.Session{}).
		Order("CASE WHEN read_at IS NULL THEN 0 ELSE 1 END").
		Order("created_at DESC").
		Order("id").
		Limit(clampLimit(limit)).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *notificationRepo) UnreadCount(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.Notification{}).
		Where("user_id = ? AND channel = ? AND read_at IS NULL", userID, types.ChannelPush).
		Count(&n).Error
	return n, err
}

func (r *notificationRepo) MarkRead(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Model(&types.Notification{}).
		Where("user_id = ? AND id IN ? AND read_at IS NULL", userID, ids).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

func (r *notificationRepo) MarkAllRead(dbc dbctx.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := dbc.DB(r.db).
		Model(&types.Notification{}).
		Where("user_id = ? AND channel = ? AND read_at IS NULL", userID, types.ChannelPush).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

func (r *notificationRepo) ListByStatus(dbc dbctx.Context, status types.NotificationStatus, limit, offset int) ([]*types.Notification, int64, error) {
	q := dbc.DB(r.db).Model(&types.Notification{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Notification
	if err := q.Session(&gorm.Session{}).
		Order("updated_at DESC").Order("id").
		Limit(clampLimit(limit)).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

var retryable = []types.NotificationStatus{types.NotificationFailed, types.NotificationDead}

// Retry requeues a failed or dead row with a fresh attempt budget.
func (r *notificationRepo) Retry(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := dbc.DB(r.db).
		Model(&types.Notification{}).
		Where("id = ? AND status IN ?", id, retryable).
		Updates(requeue(now))
	return res.RowsAffected > 0, res.Error
}

func (r *notificationRepo) RetryAllDead(dbc dbctx.Context, now time.Time) (int64, error) {
	res := dbc.DB(r.db).
		Model(&types.Notification{}).
		Where("status = ?", types.NotificationDead).
		Updates(requeue(now))
	return res.RowsAffected, res.Error
}

func requeue(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":          types.NotificationQueued,
		"attempts":        0,
		"next_attempt_at": now,
		"locked_at":       nil,
		"last_error":      "",
		"updated_at":      now,
	}
}

func (r *notificationRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	var rows []struct {
		Grp string
		N   int64
	}
	if err := dbc.DB(r.db).
		Model(&types.Notification{}).
		Select("status AS grp, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Grp] = row.N
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
