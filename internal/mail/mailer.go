// Package mail delivers transactional email for the authentication
// flows.
package mail

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/codebuddy/apiserver/config"
)

// Mailer sends the two transactional messages the auth flows need.
type Mailer interface {
	SendOTP(to, name, code string) error
	SendWelcome(to, name string) error
}

// SMTPMailer implements Mailer over SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) SendOTP(to, name, code string) error {
	if name == "" {
		name = "there"
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your verification code")
	msg.SetBody("text/html", fmt.Sprintf(otpBody, name, code))
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending otp email: %w", err)
	}
	return nil
}

func (m *SMTPMailer) SendWelcome(to, name string) error {
	if name == "" {
		name = "there"
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Welcome to Buddy")
	msg.SetBody("text/html", fmt.Sprintf(welcomeBody, name))
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending welcome email: %w", err)
	}
	return nil
}

const otpBody = `<html><body>
<p>Hi %s,</p>
<p>Use the following code to verify your email address:</p>
<p style="font-size:32px;font-weight:bold;letter-spacing:5px">%s</p>
<p>The code expires in 10 minutes. If you did not request it, you can
ignore this message.</p>
</body></html>`

const welcomeBody = `<html><body>
<p>Hi %s,</p>
<p>Welcome aboard! Your account is verified and ready. Open the
extension on any practice problem to get hints, quizzes, and chat.</p>
</body></html>`
