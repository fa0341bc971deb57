package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/foundly/apiserver/config"
	"github.com/foundly/apiserver/internal/mq"
)

// SMTPSender renders jobs into RFC 5322 messages and relays them.
type SMTPSender struct {
	cfg     config.SMTPConfig
	baseURL string
}

func NewSMTPSender(cfg config.SMTPConfig, baseURL string) *SMTPSender {
	return &SMTPSender{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Send delivers a single job over SMTP.
func (s *SMTPSender) Send(_ context.Context, job Job) error {
	subject, body := s.render(job)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", job.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	return smtp.SendMail(addr, auth, s.cfg.From, []string{job.To}, []byte(msg.String()))
}

func (s *SMTPSender) render(job Job) (subject, body string) {
	name := job.Name
	if name == "" {
		name = "there"
	}

	switch job.Kind {
	case KindVerification:
		return "Verify your Foundly email",
			fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening:\n\n%s/verify-email?token=%s\n\nIf you did not sign up, ignore this message.\n", name, s.baseURL, job.Token)
	case KindPasswordReset:
		return "Reset your Foundly password",
			fmt.Sprintf("Hi %s,\n\nReset your password within 30 minutes by opening:\n\n%s/reset-password?token=%s\n\nIf you did not request this, ignore this message.\n", name, s.baseURL, job.Token)
	case KindPasswordChanged:
		return "Your Foundly password was changed",
			fmt.Sprintf("Hi %s,\n\nYour password was just changed and all other sessions were signed out.\nIf this was not you, reset your password immediately.\n", name)
	case KindAccountDeleted:
		return "Your Foundly account was deleted",
			fmt.Sprintf("Hi %s,\n\nYour account has been deleted. Your data will be removed permanently after the retention period.\n", name)
	default:
		return "Foundly notification", "You have a new notification from Foundly.\n"
	}
}

// RunWorker consumes the mail channel until the context is cancelled. Failed
// deliveries are nacked back to the broker for redelivery.
func RunWorker(ctx context.Context, queue *mq.MQ, channel string, sender *SMTPSender) error {
	return queue.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			// Undecodable jobs would redeliver forever; drop them.
			return nil
		}
		return sender.Send(ctx, job)
	})
}
