// Package mailer dispatches transactional email. Jobs are published to the
// message queue so delivery never blocks the session-state transition that
// triggered them; a worker consumes the channel and relays over SMTP.
package mailer

import (
	"context"
	"encoding/json"
)

// Kind identifies the template a job renders.
type Kind string

const (
	KindVerification    Kind = "verification"
	KindPasswordReset   Kind = "password_reset"
	KindPasswordChanged Kind = "password_changed"
	KindAccountDeleted  Kind = "account_deleted"
)

// Job is the broker payload for one outbound email.
type Job struct {
	Kind  Kind   `json:"kind"`
	To    string `json:"to"`
	Name  string `json:"name,omitempty"`
	Token string `json:"token,omitempty"`
}

// Dispatcher enqueues transactional email.
type Dispatcher interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
	SendPasswordChangedNotice(ctx context.Context, email, name string) error
	SendAccountDeletedNotice(ctx context.Context, email, name string) error
}

// Publisher is the slice of the message queue the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// QueueDispatcher publishes jobs to a broker channel.
type QueueDispatcher struct {
	queue   Publisher
	channel string
}

func NewQueueDispatcher(queue Publisher, channel string) *QueueDispatcher {
	return &QueueDispatcher{queue: queue, channel: channel}
}

func (d *QueueDispatcher) SendVerification(ctx context.Context, email, token string) error {
	return d.publish(ctx, Job{Kind: KindVerification, To: email, Token: token})
}

func (d *QueueDispatcher) SendPasswordReset(ctx context.Context, email, token string) error {
	return d.publish(ctx, Job{Kind: KindPasswordReset, To: email, Token: token})
}

func (d *QueueDispatcher) SendPasswordChangedNotice(ctx context.Context, email, name string) error {
	return d.publish(ctx, Job{Kind: KindPasswordChanged, To: email, Name: name})
}

func (d *QueueDispatcher) SendAccountDeletedNotice(ctx context.Context, email, name string) error {
	return d.publish(ctx, Job{Kind: KindAccountDeleted, To: email, Name: name})
}

func (d *QueueDispatcher) publish(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = d.queue.Publish(ctx, d.channel, data, map[string]string{"kind": string(job.Kind)})
	return err
}

// Noop drops every job. Used in tests and queue-less deployments.
type Noop struct{}

func (Noop) SendVerification(context.Context, string, string) error        { return nil }
func (Noop) SendPasswordReset(context.Context, string, string) error       { return nil }
func (Noop) SendPasswordChangedNotice(context.Context, string, string) error { return nil }
func (Noop) SendAccountDeletedNotice(context.Context, string, string) error  { return nil }
