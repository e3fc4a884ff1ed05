package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/codebuddy/apiserver/internal/mail"
	"github.com/codebuddy/apiserver/internal/mq"
)

// Worker consumes welcome jobs from the notification bus and delivers
// them over SMTP.
type Worker struct {
	bus    *mq.Bus
	mailer mail.Mailer
	log    *zap.SugaredLogger
}

func NewWorker(bus *mq.Bus, mailer mail.Mailer, log *zap.SugaredLogger) *Worker {
	return &Worker{bus: bus, mailer: mailer, log: log}
}

// Run blocks consuming jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.bus.Subscribe(ctx, mq.ChannelWelcome, func(ctx context.Context, job mq.Job) error {
		if err := w.mailer.SendWelcome(job.Email, job.Name); err != nil {
			w.log.Warnw("welcome delivery failed, requeueing", "email", job.Email, "error", err)
			return err
		}
		return nil
	})
}
