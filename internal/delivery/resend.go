package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ResendEmailChannel sends emails via Resend REST API.
type ResendEmailChannel struct {
	from   string
	client *resend.Client
}

func NewResendEmailChannel(apiKey, from string) (*ResendEmailChannel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendEmailChannel{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

func (c *ResendEmailChannel) Kind() string { return KindEmail }

// Send makes a single API call. The idempotency key makes a caller-level resend safe.
func (c *ResendEmailChannel) Send(ctx context.Context, msg Message) error {
	if msg.To == "" || msg.Code == "" {
		return fmt.Errorf("recipient and code are required")
	}
	content, err := Render(msg)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: content.Subject,
		Text:    content.Text,
		Html:    content.HTML,
	}
	options := &resend.SendEmailOptions{}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		options.IdempotencyKey = key
	}

	if _, err := c.client.Emails.SendWithOptions(ctx, params, options); err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			return fmt.Errorf("resend rate limited (retry after %q): %w", rateLimitErr.RetryAfter, err)
		}
		return fmt.Errorf("resend send failed: %w", err)
	}
	return nil
}
