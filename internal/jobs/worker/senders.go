package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fletar/fletar-backend/internal/clients/sendgrid"
	"github.com/fletar/fletar-backend/internal/clients/twilio"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/httpx"
	"github.com/fletar/fletar-backend/internal/realtime"
)

// Sender delivers one notification over a single channel.
type Sender interface {
	Channel() types.NotificationChannel
	Send(ctx context.Context, n *types.Notification, recipient *types.User) error
}

type EmailSender struct {
	client sendgrid.Client
}

func NewEmailSender(client sendgrid.Client) *EmailSender {
	return &EmailSender{client: client}
}

func (s *EmailSender) Channel() types.NotificationChannel { return types.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, n *types.Notification, recipient *types.User) error {
	email := strings.TrimSpace(recipient.Email)
	if email == "" {
		return Permanent(fmt.Errorf("recipient has no email"))
	}
	_, err := s.client.Send(ctx, sendgrid.SendEmailRequest{
		To:         []sendgrid.EmailAddress{{Email: email, Name: strings.TrimSpace(recipient.FirstName + " " + recipient.LastName)}},
		Subject:    n.Title,
		Text:       n.Body,
		HTML:       sendgrid.TextToHTML(n.Body),
		Categories: []string{n.Event},
		CustomArgs: map[string]string{"notification_id": n.ID.String()},
	})
	return classify(err)
}

type SMSSender struct {
	client twilio.Client
}

func NewSMSSender(client twilio.Client) *SMSSender {
	return &SMSSender{client: client}
}

func (s *SMSSender) Channel() types.NotificationChannel { return types.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, n *types.Notification, recipient *types.User) error {
	phone, err := twilio.NormalizeARPhone(recipient.Phone)
	if err != nil {
		return Permanent(err)
	}
	body := n.Title
	if n.Body != "" {
		body = n.Title + ": " + n.Body
	}
	_, err = s.client.SendSMS(ctx, phone, body)
	return classify(err)
}

// PushSender delivers in-app notifications over the user's SSE channel.
type PushSender struct {
	emitter realtime.Emitter
}

func NewPushSender(emitter realtime.Emitter) *PushSender {
	return &PushSender{emitter: emitter}
}

func (s *PushSender) Channel() types.NotificationChannel { return types.ChannelPush }

func (s *PushSender) Send(ctx context.Context, n *types.Notification, recipient *types.User) error {
	return s.emitter.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.UserChannel(recipient.ID),
		Event:   realtime.SSEEventNotification,
		Data:    n,
	})
}

// classify turns provider rejections (non-retryable HTTP statuses) into
// permanent errors. Transport failures stay retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sc httpx.HTTPStatusCoder
	if errors.As(err, &sc) && !httpx.IsRetryableError(err) {
		return Permanent(err)
	}
	return err
}
