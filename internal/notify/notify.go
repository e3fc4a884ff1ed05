// Package notify routes transactional notifications. OTP delivery is
// synchronous because the user needs the code to proceed; welcome
// delivery is best-effort and never fails the triggering request.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/codebuddy/apiserver/internal/mail"
	"github.com/codebuddy/apiserver/internal/mq"
)

// Notifier is the delivery contract the auth orchestrator depends on.
type Notifier interface {
	// SendOTP delivers a challenge code. An error fails the request.
	SendOTP(ctx context.Context, email, name, code string) error

	// SendWelcome delivers the first-login greeting. Failures are
	// logged and swallowed.
	SendWelcome(ctx context.Context, email, name string)
}

// EmailNotifier sends OTP mail directly and hands welcome mail to the
// notification bus when one is configured, or a background goroutine
// otherwise.
type EmailNotifier struct {
	mailer mail.Mailer
	bus    *mq.Bus
	log    *zap.SugaredLogger
}

func NewEmailNotifier(mailer mail.Mailer, bus *mq.Bus, log *zap.SugaredLogger) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, bus: bus, log: log}
}

func (n *EmailNotifier) SendOTP(_ context.Context, email, name, code string) error {
	return n.mailer.SendOTP(email, name, code)
}

func (n *EmailNotifier) SendWelcome(ctx context.Context, email, name string) {
	if n.bus != nil {
		job := mq.Job{Kind: "welcome", Email: email, Name: name}
		if _, err := n.bus.Publish(ctx, mq.ChannelWelcome, job); err != nil {
			n.log.Warnw("failed to enqueue welcome email", "email", email, "error", err)
		}
		return
	}

	go func() {
		if err := n.mailer.SendWelcome(email, name); err != nil {
			n.log.Warnw("failed to send welcome email", "email", email, "error", err)
		}
	}()
}
