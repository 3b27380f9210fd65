// Package delivery sends one-time codes to people over email and SMS.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

// Channel kinds. They double as the contact selector on entity.Account.
const (
	KindEmail = "email"
	KindSMS   = "sms"
)

// ErrUnknownChannel is returned by Registry.Select for kinds nobody registered.
var ErrUnknownChannel = errors.New("unknown delivery channel")

// Message is one code delivery. Channels render the human text from it.
type Message struct {
	To             string
	RecipientName  string
	Code           string
	Purpose        entity.Purpose
	ExpiresIn      time.Duration
	IdempotencyKey string
}

// Channel delivers a message or reports why it could not. Send must honour ctx.
type Channel interface {
	Kind() string
	Send(ctx context.Context, msg Message) error
}

// Registry maps channel kinds to the channel that serves them.
type Registry struct {
	channels map[string]Channel
}

// NewRegistry registers channels by their Kind; a later channel replaces an earlier one.
func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[string]Channel, len(channels))}
	for _, ch := range channels {
		if ch != nil {
			r.channels[ch.Kind()] = ch
		}
	}
	return r
}

func (r *Registry) Select(kind string) (Channel, error) {
	ch, ok := r.channels[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, kind)
	}
	return ch, nil
}

// Kinds lists the registered kinds in stable order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.channels))
	for kind := range r.channels {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
