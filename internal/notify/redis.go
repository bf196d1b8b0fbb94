// Package notify publishes committed endpoint changes to Redis.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
)

// Config holds the Redis publisher configuration.
type Config struct {
	// Addr is the Redis server address (host:port)
	Addr     string
	Password string
	DB       int
	// Channel receives one message per committed batch. The current
	// endpoints are mirrored in the hash Channel + ":endpoints".
	Channel string
}

// Batch is the message published for a committed transaction.
type Batch struct {
	Metamodel string                 `json:"metamodel"`
	Events    []domain.EndpointEvent `json:"events"`
}

// Publisher is a domain.EndpointListener writing to Redis.
type Publisher struct {
	client    *redis.Client
	metamodel string
	channel   string
	logger    *zap.Logger
}

var _ domain.EndpointListener = (*Publisher)(nil)

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, cfg Config, m *domain.Metamodel, logger *zap.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err), client.Close())
	}
	return NewPublisher(client, cfg.Channel, m, logger), nil
}

// NewPublisher creates a publisher on an existing client.
func NewPublisher(client *redis.Client, channel string, m *domain.Metamodel, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:    client,
		metamodel: m.ID().String(),
		channel:   channel,
		logger:    logger.Named("notify"),
	}
}

// IndexKey returns the key of the hash mirroring the endpoints.
func (p *Publisher) IndexKey() string {
	return p.channel + ":endpoints"
}

// EndpointsChanged implements domain.EndpointListener. Failures are logged.
func (p *Publisher) EndpointsChanged(ctx context.Context, events []domain.EndpointEvent) {
	if err := p.Publish(ctx, events); err != nil {
		p.logger.Error("failed to publish endpoint events", zap.Int("events", len(events)), zap.Error(err))
	}
}

// Publish updates the endpoint hash and publishes the batch in a single
// MULTI/EXEC.
func (p *Publisher) Publish(ctx context.Context, events []domain.EndpointEvent) error {
	if len(events) == 0 {
		return nil
	}
	payload, err := json.Marshal(Batch{Metamodel: p.metamodel, Events: events})
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ev := range events {
			id := ev.Endpoint.ID.String()
			if ev.Kind == domain.EndpointRemoved {
				pipe.HDel(ctx, p.IndexKey(), id)
				continue
			}
			data, err := json.Marshal(ev.Endpoint)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, p.IndexKey(), id, data)
		}
		pipe.Publish(ctx, p.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	p.logger.Debug("endpoint events published", zap.String("channel", p.channel), zap.Int("events", len(events)))
	return nil
}

// Sync replaces the endpoint hash with the given snapshot.
func (p *Publisher) Sync(ctx context.Context, endpoints []*domain.Endpoint) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.IndexKey())
		for _, e := range endpoints {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, p.IndexKey(), e.ID.String(), data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sync %s: %w", p.IndexKey(), err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
