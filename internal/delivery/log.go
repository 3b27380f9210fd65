package delivery

import (
	"context"
	"log/slog"
)

// LogChannel writes the code to the log instead of sending it. Development only.
type LogChannel struct {
	kind   string
	logger *slog.Logger
}

func NewLogChannel(kind string, logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{kind: kind, logger: logger}
}

func (c *LogChannel) Kind() string { return c.kind }

func (c *LogChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.WarnContext(ctx, "[LogChannel] verification code not sent, logged instead",
		"channel", c.kind,
		"to", msg.To,
		"purpose", string(msg.Purpose),
		"code", msg.Code,
		"expires_in", msg.ExpiresIn.String(),
	)
	return nil
}
