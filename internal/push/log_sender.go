package push

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogSender only logs. It backs local development where no push provider is
// configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	id := "log-" + uuid.NewString()
	s.logger.InfoContext(ctx, "push notification",
		"message_id", id,
		"transaction_id", msg.TransactionID,
		"title", msg.Title,
	)
	return id, nil
}
