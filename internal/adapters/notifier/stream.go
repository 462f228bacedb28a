package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/geocapture/internal/domain/aggregate"
	"github.com/okian/geocapture/internal/domain/model"
)

const (
	DefaultStream       = "geocapture:notices"
	defaultStreamMaxLen = 10000
	redisPingTimeout    = 5 * time.Second
)

// StreamAdder is the part of a Redis client the stream notifier needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamNotifier appends one rendered entry per event to a Redis stream so
// operators can follow captures from another process.
type StreamNotifier struct {
	client StreamAdder
	stream string
	maxLen int64
}

// StreamOption configures a StreamNotifier.
type StreamOption func(*StreamNotifier)

// WithStream sets the stream key.
func WithStream(name string) StreamOption {
	return func(n *StreamNotifier) {
		if name != "" {
			n.stream = name
		}
	}
}

// WithStreamMaxLen caps the stream length, approximately.
func WithStreamMaxLen(maxLen int64) StreamOption {
	return func(n *StreamNotifier) {
		if maxLen > 0 {
			n.maxLen = maxLen
		}
	}
}

// NewStreamNotifier publishes notices through client.
func NewStreamNotifier(client StreamAdder, opts ...StreamOption) *StreamNotifier {
	n := &StreamNotifier{client: client, stream: DefaultStream, maxLen: defaultStreamMaxLen}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify adds the rendered event to the stream.
func (n *StreamNotifier) Notify(ctx context.Context, ev model.CaptureEvent) error { //nolint:gocritic // hugeParam: matches the queue payload
	entries := aggregate.Listing([]model.CaptureEvent{ev}, aggregate.ListOptions{IncludeAuxiliary: true})
	if len(entries) == 0 {
		return fmt.Errorf("nothing to render for event %s", ev.ID)
	}
	payload, err := json.Marshal(entries[0])
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":    ev.Kind.String(),
			"seq":     ev.Seq,
			"payload": payload,
		},
	}
	if err := n.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", n.stream, err)
	}
	return nil
}

// DialRedis connects to the Redis server at url and checks it answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
