// Package events publishes a record of every chime fire.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Fire struct {
	ID      string
	SoundID string
	Volume  int
	At      time.Time
	// Played is false when the fire was skipped, for example because the
	// sound was missing.
	Played bool
}

type Publisher interface {
	Publish(ctx context.Context, fire Fire) error
}

type PrintingPublisher struct{}

func (p *PrintingPublisher) Publish(ctx context.Context, fire Fire) error {
	slog.InfoContext(
		ctx,
		"Chime fired",
		slog.String("fireID", fire.ID),
		slog.String("soundID", fire.SoundID),
		slog.Int("volume", fire.Volume),
		slog.String("at", fire.At.Format("2006-01-02 15:04:05")),
		slog.Bool("played", fire.Played),
	)
	return nil
}

var _ Publisher = (*PrintingPublisher)(nil)

// DefaultStream is the Redis stream fires are appended to.
const DefaultStream = "chime_fires"

// maxStreamLen caps the stream so an always-on daemon does not grow it
// without bound.
const maxStreamLen = 1000

type RedisPublisher struct {
	client *redis.Client
	stream string
}

func NewRedisPublisher(client *redis.Client, stream string) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{client: client, stream: stream}
}

func (p *RedisPublisher) Publish(ctx context.Context, fire Fire) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"fireID":  fire.ID,
			"soundID": fire.SoundID,
			"volume":  strconv.Itoa(fire.Volume),
			"at":      fire.At.Format(time.RFC3339),
			"played":  strconv.FormatBool(fire.Played),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish fire %s: %w", fire.ID, err)
	}
	return nil
}

var _ Publisher = (*RedisPublisher)(nil)

// Read blocks until fires newer than lastID arrive on the stream, waiting at
// most block. Pass "$" to receive only new fires. It returns the ID to
// continue from.
func (p *RedisPublisher) Read(ctx context.Context, lastID string, block time.Duration) ([]Fire, string, error) {
	streams, err := p.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{p.stream, lastID},
		Block:   block,
	}).Result()
	if err == redis.Nil {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, fmt.Errorf("failed to read fires: %w", err)
	}

	var fires []Fire
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			fire, err := decodeFire(msg.Values)
			if err != nil {
				slog.Warn("skipping malformed fire record", "messageID", msg.ID, "error", err)
			} else {
				fires = append(fires, fire)
			}
			lastID = msg.ID
		}
	}
	return fires, lastID, nil
}

func decodeFire(values map[string]any) (Fire, error) {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}
	at, err := time.Parse(time.RFC3339, str("at"))
	if err != nil {
		return Fire{}, fmt.Errorf("invalid at: %w", err)
	}
	volume, err := strconv.Atoi(str("volume"))
	if err != nil {
		return Fire{}, fmt.Errorf("invalid volume: %w", err)
	}
	played, _ := strconv.ParseBool(str("played"))
	return Fire{
		ID:      str("fireID"),
		SoundID: str("soundID"),
		Volume:  volume,
		At:      at,
		Played:  played,
	}, nil
}
