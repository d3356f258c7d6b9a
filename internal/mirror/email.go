package mirror

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/verte-zerg/seqrecall/internal/model"
)

// SendFunc delivers a built message. It must return once ctx is done.
type SendFunc func(ctx context.Context, msg *mail.Msg) error

// Email sends saved files as an attachment to a fixed recipient list.
type Email struct {
	cfg  model.SMTPConfig
	send SendFunc
	now  func() time.Time
}

// NewEmail returns an SMTP mirror. send may be nil to dial the configured relay.
func NewEmail(cfg model.SMTPConfig, send SendFunc) *Email {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	e := &Email{cfg: cfg, send: send, now: time.Now}
	if e.send == nil {
		e.send = e.dialAndSend
	}
	return e
}

// Name implements Mirror.
func (e *Email) Name() string {
	return "email"
}

// Mirror sends content as a CSV attachment.
func (e *Email) Mirror(ctx context.Context, filename string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := e.buildMessage(filename, content)
	if err != nil {
		return err
	}
	if err := e.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

func (e *Email) buildMessage(filename string, content []byte) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(e.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject("Experiment data " + filename)
	msg.SetDateWithValue(e.now())
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("New experiment data: %s\n", filename))
	if err := msg.AttachReader(filename, bytes.NewReader(content), mail.WithFileContentType("text/csv")); err != nil {
		return nil, fmt.Errorf("failed to attach %s: %w", filename, err)
	}
	return msg, nil
}

func (e *Email) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithTimeout(DefaultTimeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if e.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}
	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
