package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talentforge/platform/internal/core/domain"
)

// Publisher exposes the run's current stage label through a redis key that
// clients poll, and mirrors it on a pub/sub channel for subscribers. The
// vocabulary is the five fixed stage labels; terminal state is read from
// the run row, not from here.
type Publisher struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPublisher(rdb *redis.Client, ttl time.Duration) *Publisher {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Publisher{rdb: rdb, ttl: ttl}
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func statusKey(runID string) string {
	return "pipeline:run:" + runID + ":status"
}

func channel(runID string) string {
	return "pipeline.run." + runID
}

func (p *Publisher) Publish(ctx context.Context, runID string, stage domain.Stage) error {
	if err := p.rdb.Set(ctx, statusKey(runID), string(stage), p.ttl).Err(); err != nil {
		return fmt.Errorf("set progress key: %w", err)
	}
	if err := p.rdb.Publish(ctx, channel(runID), string(stage)).Err(); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Current returns the last published stage label, or "" when the run has
// never published or the key expired.
func (p *Publisher) Current(ctx context.Context, runID string) (string, error) {
	label, err := p.rdb.Get(ctx, statusKey(runID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get progress key: %w", err)
	}
	return label, nil
}
