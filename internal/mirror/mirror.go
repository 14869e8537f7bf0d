// Package mirror keeps a read-only copy of the integration set in Redis so
// sibling dashboard processes can display it without hitting this service.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/models"
)

const integrationsKey = "argus:integrations"

// IntegrationMirror publishes the integration set to Redis.
type IntegrationMirror struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*IntegrationMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &IntegrationMirror{
		client: client,
		ttl:    24 * time.Hour,
		logger: log.New(log.Writer(), "[MIRROR] ", log.LstdFlags),
	}, nil
}

// Publish overwrites the mirrored set with the given integrations.
func (m *IntegrationMirror) Publish(ctx context.Context, list []models.Integration) error {
	payload, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal integrations: %w", err)
	}
	if err := m.client.Set(ctx, integrationsKey, payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror integrations: %w", err)
	}
	return nil
}

// Attach subscribes the mirror to store events so each integration sync
// refreshes the Redis copy. Publishing is best-effort.
func (m *IntegrationMirror) Attach(store *resource.Store) int64 {
	return store.Subscribe(func(ev models.Event) {
		if ev.Type != models.TypeIntegration {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Publish(ctx, store.ListIntegrations()); err != nil {
			m.logger.Printf("publish failed: %v", err)
		}
	})
}

// Close releases the client.
func (m *IntegrationMirror) Close() error {
	return m.client.Close()
}
