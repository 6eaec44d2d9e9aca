package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

// Envelope is an agent-to-agent message published for every downstream
// call, so other services can observe query traffic on the bus.
type Envelope struct {
	CorrelationID string    `json:"correlation_id"`
	FromAgent     string    `json:"from_agent"`
	ToAgent       string    `json:"to_agent"`
	Intent        string    `json:"intent"`
	Query         string    `json:"query"`
	HouseholdID   string    `json:"household_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type Broker interface {
	Publish(ctx context.Context, env Envelope)
	Close() error
}

// RedisBroker publishes envelopes on a Redis pub/sub channel.
type RedisBroker struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

type RedisBrokerConfig struct {
	Addr     string
	Password string
	Channel  string
}

func NewRedisBroker(cfg RedisBrokerConfig, log *logger.Logger) (*RedisBroker, error) {
	if log == nil {
		log = logger.NewNop()
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = "a2a-messages"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBroker{
		log:     log.With("component", "RedisBroker"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		b.log.Warn("encode envelope", "error", err.Error())
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		// Bus publication is observability, not correctness; a failed
		// publish never fails the query.
		b.log.Warn("publish envelope", "error", err.Error())
	}
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}

// LocalBroker is the log-only fallback used when Redis is not configured,
// which keeps local development dependency-free.
type LocalBroker struct {
	log *logger.Logger
}

func NewLocalBroker(log *logger.Logger) *LocalBroker {
	if log == nil {
		log = logger.NewNop()
	}
	return &LocalBroker{log: log.With("component", "LocalBroker")}
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) {
	b.log.Debug("a2a envelope",
		"correlation_id", env.CorrelationID,
		"to_agent", env.ToAgent,
		"intent", env.Intent,
	)
}

func (b *LocalBroker) Close() error { return nil }
