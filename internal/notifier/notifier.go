package notifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Notifier delivers a rendered message to an outbound channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// NotificationError is a failed dispatch.
type NotificationError struct {
	Channel string
	Err     error
	// Temporary is false when a retry cannot succeed, e.g. a rejected token.
	Temporary bool
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify via %s: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// LogNotifier writes messages to the log. It is the fallback when no
// Telegram credentials are configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, text string) error {
	n.log.Info().Str("channel", "log").Msg(text)
	return nil
}
