package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

type smsRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

// HTTPSMSChannel posts messages to a JSON SMS gateway. Outbound calls share one
// token bucket so a burst of requests cannot exceed the gateway quota.
type HTTPSMSChannel struct {
	url     string
	apiKey  string
	sender  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSMSChannel creates the channel. ratePerSecond <= 0 disables the outbound limiter.
func NewHTTPSMSChannel(url, apiKey, sender string, ratePerSecond float64, burst int, client *http.Client) (*HTTPSMSChannel, error) {
	if url == "" {
		return nil, fmt.Errorf("sms gateway url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	ch := &HTTPSMSChannel{url: url, apiKey: apiKey, sender: sender, client: client}
	if ratePerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		ch.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return ch, nil
}

func (c *HTTPSMSChannel) Kind() string { return KindSMS }

func (c *HTTPSMSChannel) Send(ctx context.Context, msg Message) error {
	if !strings.HasPrefix(msg.To, "+") {
		return fmt.Errorf("phone number must include country code (e.g., +5511999990000)")
	}
	content, err := Render(msg)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("sms gateway throttled: %w", err)
		}
	}

	payload, err := json.Marshal(smsRequest{From: c.sender, To: msg.To, Body: content.SMS, Reference: msg.IdempotencyKey})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
