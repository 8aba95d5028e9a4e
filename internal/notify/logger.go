package notify

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"
)

// Summary is the subset of a sync result the log subscriber reports.
type Summary struct {
	Success  bool    `json:"success"`
	SyncType string  `json:"sync_type"`
	Created  int     `json:"created"`
	Updated  int     `json:"updated"`
	Skipped  int     `json:"skipped"`
	Errored  int     `json:"errors_count"`
	Stopped  bool    `json:"stopped"`
	Error    string  `json:"error"`
	Duration float64 `json:"duration"`
}

// LogSubscriber writes one log line per sync notification. It runs as a
// supervised service.
type LogSubscriber struct {
	notifier *Notifier
	logger   *slog.Logger
}

// NewLogSubscriber creates a LogSubscriber.
func NewLogSubscriber(n *Notifier, logger *slog.Logger) *LogSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSubscriber{notifier: n, logger: logger}
}

// Serve subscribes and logs until ctx is cancelled.
func (s *LogSubscriber) Serve(ctx context.Context) error {
	completed, err := s.notifier.Subscribe(ctx, TopicSyncCompleted)
	if err != nil {
		return err
	}
	first, err := s.notifier.Subscribe(ctx, TopicFirstSyncCompleted)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-completed:
			if !ok {
				return ctx.Err()
			}
			var sum Summary
			if err := json.Unmarshal(msg.Payload, &sum); err != nil {
				s.logger.Warn("undecodable sync notification", "message_id", msg.UUID, "error", err)
			} else {
				s.logger.Info("sync completed",
					"success", sum.Success,
					"sync_type", sum.SyncType,
					"created", sum.Created,
					"updated", sum.Updated,
					"skipped", sum.Skipped,
					"errors", sum.Errored,
					"stopped", sum.Stopped,
					"duration_s", sum.Duration,
				)
			}
			msg.Ack()
		case msg, ok := <-first:
			if !ok {
				return ctx.Err()
			}
			s.logger.Info("first sync completed", "notice", string(msg.Payload))
			msg.Ack()
		}
	}
}

// String names the service in supervisor logs.
func (s *LogSubscriber) String() string { return "notify-logger" }
