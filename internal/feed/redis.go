package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dashboards/internal/domain/repositories"
)

const eventField = "event"

// RedisConfig configures a Redis Streams change feed.
type RedisConfig struct {
	Stream   string
	Group    string
	Consumer string
	// MaxLen trims the stream approximately. Zero keeps everything.
	MaxLen int64
	// Block is how long one XREADGROUP call waits for new entries.
	Block time.Duration
	// Batch is the number of entries fetched per read.
	Batch int64
	// ClaimMinIdle is how long an entry stays pending with another consumer
	// before this one claims it. Zero disables claiming.
	ClaimMinIdle time.Duration
}

// DefaultRedisConfig returns defaults for stream.
func DefaultRedisConfig(stream, group, consumer string) RedisConfig {
	return RedisConfig{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MaxLen:   100_000,
		Block:    5 * time.Second,
		Batch:    32,

		ClaimMinIdle: time.Minute,
	}
}

// NewRedisClient parses url (redis://...) and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisPublisher appends change events to a stream with XADD.
type RedisPublisher struct {
	client *redis.Client
	cfg    RedisConfig
}

func NewRedisPublisher(client *redis.Client, cfg RedisConfig) *RedisPublisher {
	return &RedisPublisher{client: client, cfg: cfg}
}

func (p *RedisPublisher) Publish(ctx context.Context, event repositories.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.cfg.Stream,
		Values: map[string]interface{}{eventField: payload},
	}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.cfg.Stream, err)
	}
	return nil
}

// RedisSubscriber reads a stream through a consumer group. It first drains
// entries this consumer received but never acknowledged, then reads new ones.
// A retried delivery rewinds it to its own backlog, and entries left idle by
// other consumers are claimed every ClaimMinIdle.
type RedisSubscriber struct {
	client    *redis.Client
	cfg       RedisConfig
	logger    *slog.Logger
	pending   []redis.XMessage
	cursor    string
	lastClaim time.Time
	now       func() time.Time
}

// NewRedisSubscriber creates the consumer group if it does not exist.
func NewRedisSubscriber(ctx context.Context, client *redis.Client, cfg RedisConfig, logger *slog.Logger) (*RedisSubscriber, error) {
	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group %s: %w", cfg.Group, err)
	}
	return &RedisSubscriber{
		client: client,
		cfg:    cfg,
		logger: logger,
		cursor: "0",
		now:    time.Now,
	}, nil
}

func (s *RedisSubscriber) Receive(ctx context.Context) (*repositories.Delivery, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
	}

	msg := s.pending[0]
	s.pending = s.pending[1:]

	event, err := decodeMessage(msg)
	if err != nil {
		// An undecodable entry would block the group forever
		s.logger.Error("dropping malformed change event", "stream_id", msg.ID, "error", err)
		if ackErr := s.ack(ctx, msg.ID); ackErr != nil {
			return nil, ackErr
		}
		return s.Receive(ctx)
	}

	id := msg.ID
	return &repositories.Delivery{
		Event: event,
		Ack:   func(ctx context.Context) error { return s.ack(ctx, id) },
		Retry: func(context.Context) error {
			s.rewind()
			return nil
		},
	}, nil
}

// rewind drops buffered entries and re-reads this consumer's pending list
// from the start, so the failed entry comes back before anything newer.
func (s *RedisSubscriber) rewind() {
	s.pending = nil
	s.cursor = "0"
}

func (s *RedisSubscriber) fill(ctx context.Context) error {
	if s.cursor == ">" && s.claimDue() {
		claimed, err := s.claim(ctx)
		if err != nil {
			return err
		}
		if len(claimed) > 0 {
			s.pending = claimed
			return nil
		}
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, s.cursor},
		Count:    s.cfg.Batch,
		Block:    s.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("xreadgroup %s: %w", s.cfg.Stream, err)
	}

	var msgs []redis.XMessage
	for _, st := range streams {
		msgs = append(msgs, st.Messages...)
	}
	if s.cursor != ">" {
		if len(msgs) == 0 {
			s.cursor = ">"
			return nil
		}
		// Continue through this consumer's backlog after the last seen entry
		s.cursor = msgs[len(msgs)-1].ID
	}
	s.pending = msgs
	return nil
}

func (s *RedisSubscriber) claimDue() bool {
	if s.cfg.ClaimMinIdle <= 0 {
		return false
	}
	return s.now().Sub(s.lastClaim) >= s.cfg.ClaimMinIdle
}

// claim takes over entries that sat unacknowledged with any consumer of the
// group for at least ClaimMinIdle.
func (s *RedisSubscriber) claim(ctx context.Context) ([]redis.XMessage, error) {
	s.lastClaim = s.now()
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.cfg.Stream,
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		MinIdle:  s.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    s.cfg.Batch,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim %s: %w", s.cfg.Stream, err)
	}
	if len(msgs) > 0 {
		s.logger.Info("claimed idle change events", "count", len(msgs), "consumer", s.cfg.Consumer)
	}
	return msgs, nil
}

func (s *RedisSubscriber) ack(ctx context.Context, id string) error {
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, id).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", id, err)
	}
	return nil
}

func (s *RedisSubscriber) Close() error {
	return nil
}

func decodeMessage(msg redis.XMessage) (repositories.ChangeEvent, error) {
	var event repositories.ChangeEvent
	raw, ok := msg.Values[eventField]
	if !ok {
		return event, fmt.Errorf("entry %s has no %q field", msg.ID, eventField)
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return event, fmt.Errorf("entry %s: unexpected %T", msg.ID, raw)
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("entry %s: %w", msg.ID, err)
	}
	return event, nil
}
