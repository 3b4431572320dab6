// Package notify delivers run summaries to the configured destination.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/redis/go-redis/v9"
)

// EventType labels run summary events on the webhook and the Redis stream.
const EventType = "catalog.run.completed"

// Notifier sends a plain-text run summary.
type Notifier interface {
	Send(ctx context.Context, message string) error
	Close() error
}

// New returns the notifier selected by cfg.Notifier.
func New(cfg *config.Config) (Notifier, error) {
	switch cfg.Notifier {
	case "console":
		return NewConsole(os.Stdout), nil
	case "webhook":
		return NewWebhook(cfg.WebhookURL, cfg.WebhookSecret), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return NewRedisStream(client, cfg.RedisStream), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
	}
}

// Console prints summaries to a writer and the structured log.
type Console struct {
	out    io.Writer
	logger *slog.Logger
}

// NewConsole writes summaries to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, logger: slog.With("component", "notify")}
}

func (c *Console) Send(_ context.Context, message string) error {
	c.logger.Info("run summary", slog.String("message", message))
	if _, err := fmt.Fprintln(c.out, message); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}

func (c *Console) Close() error {
	return nil
}
