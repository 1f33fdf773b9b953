// Package mongodb provides MongoDB client connection utilities.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/pizzeria/internal/pkg/metrics"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Config contains MongoDB connection configuration.
type Config struct {
	URI             string
	Database        string
	MaxPoolSize     uint64
	ConnectAttempts int
}

// Connect creates a client, verifies it with a primary ping and returns the
// configured database. Failed attempts are retried with exponential backoff.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(5 * time.Second).
		SetPoolMonitor(metrics.MongoPoolMonitor())
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := mongo.Connect(ctx, clientOpts)
		if err == nil {
			if err = client.Ping(ctx, readpref.Primary()); err == nil {
				slog.Info("connected to mongodb", "attempts", attempt, "database", cfg.Database)
				return client, client.Database(cfg.Database), nil
			}
			_ = client.Disconnect(context.Background())
		}

		lastErr = err
		if attempt < attempts {
			backoff := calcBackoff(attempt)
			slog.Warn("failed to connect to mongodb, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"backoff", backoff,
				"error", err,
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
			}
		}
	}

	return nil, nil, fmt.Errorf("connect to mongodb after %d attempts: %w", attempts, lastErr)
}

// calcBackoff returns exponential backoff duration capped at 16 seconds.
func calcBackoff(attempt int) time.Duration {
	return min(time.Duration(1<<(attempt-1))*time.Second, 16*time.Second)
}
