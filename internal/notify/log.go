package notify

import (
	"context"
	"log/slog"

	"github.com/carbnb/availability/internal/domain"
)

// LogSink records notifications and chat messages as log lines. It never
// fails.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a LogSink writing to log.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(ctx context.Context, n domain.Notification) error {
	s.log.InfoContext(ctx, "notification",
		"user_id", n.UserID,
		"type", string(n.Kind),
		"title", n.Title,
		"booking_id", n.Data.BookingID,
	)
	return nil
}

func (s *LogSink) PostSystemMessage(ctx context.Context, conversationID, text string) error {
	s.log.InfoContext(ctx, "chat system message",
		"conversation_id", conversationID,
		"text", text,
	)
	return nil
}
