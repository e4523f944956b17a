package app

import (
	"context"
	"time"

	"github.com/fletar/fletar-backend/internal/jobs/sweeper"
	"github.com/fletar/fletar-backend/internal/jobs/worker"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

// wireWorker registers a sender per configured channel. Rows for channels
// without a sender are dead-lettered by the worker.
func wireWorker(log *logger.Logger, cfg Config, r Repos, clients Clients, s Services) *worker.Worker {
	senders := []worker.Sender{worker.NewPushSender(s.Emitter)}
	if clients.SendGrid != nil {
		senders = append(senders, worker.NewEmailSender(clients.SendGrid))
	}
	if clients.Twilio != nil {
		senders = append(senders, worker.NewSMSSender(clients.Twilio))
	}
	return worker.NewWorker(log, r.Notification, r.User, senders, cfg.Worker)
}

func wireSweeper(log *logger.Logger, cfg Config, r Repos, s Services) *sweeper.Sweeper {
	return sweeper.New(log, cfg.SweepInterval,
		sweeper.Task{Name: "camiones.expire", Run: s.Camiones.ExpireStale},
		sweeper.Task{Name: "tokens.expired", Run: func(ctx context.Context) (int64, error) {
			return r.UserToken.DeleteExpired(dbctx.New(ctx), time.Now().UTC())
		}},
	)
}
