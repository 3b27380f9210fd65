package delivery

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPEmailChannel sends emails through an SMTP relay.
type SMTPEmailChannel struct {
	from   string
	dialer mailSender
}

func NewSMTPEmailChannel(host string, port int, username, password, from string) (*SMTPEmailChannel, error) {
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &SMTPEmailChannel{
		from:   from,
		dialer: gomail.NewDialer(host, port, username, password),
	}, nil
}

func (c *SMTPEmailChannel) Kind() string { return KindEmail }

// Send runs the blocking dial in a goroutine so ctx can cut it short. The goroutine
// finishes on its own; its result is dropped after cancellation.
func (c *SMTPEmailChannel) Send(ctx context.Context, msg Message) error {
	if msg.To == "" || msg.Code == "" {
		return fmt.Errorf("recipient and code are required")
	}
	content, err := Render(msg)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", content.Subject)
	m.SetBody("text/plain", content.Text)
	m.AddAlternative("text/html", content.HTML)

	done := make(chan error, 1)
	go func() {
		done <- c.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	}
}
