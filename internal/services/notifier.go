package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fletar/fletar-backend/internal/catalog"
	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/domain/notify"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const (
	EventPostulacionCreated  = "postulacion.created"
	EventCargaCompletada     = "carga.completada"
	EventCargaCancelada      = "carga.cancelada"
	EventCalificacionCreated = "calificacion.created"
	EventCamionContacto      = "camion.contacto"
	EventPremiumGranted      = "premium.granted"
)

// postulacionEvent maps a postulación status to its notification event.
func postulacionEvent(status types.PostulacionStatus) string {
	return "postulacion." + string(status)
}

type NotificationEvent struct {
	Type     string
	UserID   uuid.UUID
	EntityID uuid.UUID
	// Discriminator separates repeated occurrences of the same event on the
	// same entity, e.g. a postulación paused twice.
	Discriminator string
	Data          map[string]interface{}
}

// Notifier writes outbox rows; delivery happens in the notification worker.
type Notifier interface {
	// Notify enqueues one row per enabled channel of the recipient. Repeated
	// calls for the same event, entity and recipient insert nothing.
	Notify(dbc dbctx.Context, ev NotificationEvent) (int64, error)
}

type notifier struct {
	log              *logger.Logger
	userRepo         repos.UserRepo
	notificationRepo repos.NotificationRepo
	catalog          *catalog.Catalog
}

func NewNotifier(log *logger.Logger, userRepo repos.UserRepo, notificationRepo repos.NotificationRepo, cat *catalog.Catalog) Notifier {
	return &notifier{
		log:              log.With("service", "Notifier"),
		userRepo:         userRepo,
		notificationRepo: notificationRepo,
		catalog:          cat,
	}
}

func (n *notifier) Notify(dbc dbctx.Context, ev NotificationEvent) (int64, error) {
	if ev.UserID == uuid.Nil || ev.Type == "" {
		return 0, fmt.Errorf("notify: user and event type required")
	}
	recipient, err := n.userRepo.GetByID(dbc, ev.UserID)
	if err != nil {
		return 0, fmt.Errorf("notify: load recipient: %w", err)
	}
	if recipient == nil || recipient.Blocked {
		n.log.Debug("Skipping notification for missing or blocked user", "user_id", ev.UserID, "event", ev.Type)
		return 0, nil
	}

	title, body, err := n.catalog.Render(ev.Type, ev.Data)
	if err != nil {
		return 0, err
	}
	payload, err := json.Marshal(map[string]interface{}{
		"event":     ev.Type,
		"entity_id": ev.EntityID,
		"data":      ev.Data,
	})
	if err != nil {
		return 0, fmt.Errorf("notify: encode payload: %w", err)
	}

	var entityID *uuid.UUID
	if ev.EntityID != uuid.Nil {
		id := ev.EntityID
		entityID = &id
	}

	channels := []types.NotificationChannel{types.ChannelPush}
	if recipient.NotifyEmail && strings.TrimSpace(recipient.Email) != "" {
		channels = append(channels, types.ChannelEmail)
	}
	if recipient.NotifySMS && strings.TrimSpace(recipient.Phone) != "" {
		channels = append(channels, types.ChannelSMS)
	}

	keyType := ev.Type
	if ev.Discriminator != "" {
		keyType += "#" + ev.Discriminator
	}
	rows := make([]*types.Notification, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, &types.Notification{
			UserID:         recipient.ID,
			Channel:        ch,
			Event:          ev.Type,
			EntityID:       entityID,
			Title:          title,
			Body:           body,
			Payload:        datatypes.JSON(payload),
			IdempotencyKey: notify.IdempotencyKey(keyType, ev.EntityID, recipient.ID, ch),
		})
	}
	inserted, err := n.notificationRepo.Enqueue(dbc, rows)
	if err != nil {
		return 0, fmt.Errorf("notify: enqueue: %w", err)
	}
	n.log.Debug("Notification enqueued", "event", ev.Type, "user_id", recipient.ID, "rows", inserted)
	return inserted, nil
}
