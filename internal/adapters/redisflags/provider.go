// Package redisflags resolves experiment mode flags from Redis.
package redisflags

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
)

const (
	fieldShadow    = "shadow_enabled"
	fieldMirroring = "mirroring_enabled"

	globalKillKey = "migration:kill:global"

	resolveTimeout = 500 * time.Millisecond
)

// Provider implements ports.FlagProvider over Redis.
//
// Flag hashes are scoped, most specific wins:
//
//	migration:flags:{publisher}:{app}:{placement}
//	migration:flags:{publisher}:{app}
//	migration:flags:{publisher}
//
// Kill-switch keys override everything by mere existence; their value is
// irrelevant, so a switch cannot be half-set:
//
//	migration:kill:global
//	migration:kill:{publisher}
type Provider struct {
	client *redis.Client
}

// New creates a Provider over an existing Redis client.
func New(client *redis.Client) *Provider {
	return &Provider{client: client}
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, addr, password string, db int) (*Provider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, domain.Transient("ping redis", err)
	}
	return &Provider{client: client}, nil
}

// Close releases the Redis client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Resolve looks up the flags for a scope. Errors propagate so the caller
// can fail closed; this provider never guesses on a broken connection.
func (p *Provider) Resolve(ctx context.Context, scope ports.FlagScope) (ports.Flags, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	killed, err := p.killed(ctx, scope.PublisherID)
	if err != nil {
		return ports.Flags{}, err
	}
	if killed {
		return ports.Flags{}, nil
	}

	for _, key := range scopeKeys(scope) {
		values, err := p.client.HGetAll(ctx, key).Result()
		if err != nil {
			return ports.Flags{}, domain.Transient("read flags", err)
		}
		if len(values) == 0 {
			continue
		}
		return ports.Flags{
			ShadowEnabled:    values[fieldShadow] == "true",
			MirroringEnabled: values[fieldMirroring] == "true",
		}, nil
	}

	// No flag entry at any scope means no experiment traffic.
	return ports.Flags{}, nil
}

func (p *Provider) killed(ctx context.Context, publisherID string) (bool, error) {
	keys := []string{globalKillKey, fmt.Sprintf("migration:kill:%s", publisherID)}
	n, err := p.client.Exists(ctx, keys...).Result()
	if err != nil {
		return false, domain.Transient("read kill switch", err)
	}
	return n > 0, nil
}

func scopeKeys(scope ports.FlagScope) []string {
	return []string{
		fmt.Sprintf("migration:flags:%s:%s:%s", scope.PublisherID, scope.AppID, scope.PlacementID),
		fmt.Sprintf("migration:flags:%s:%s", scope.PublisherID, scope.AppID),
		fmt.Sprintf("migration:flags:%s", scope.PublisherID),
	}
}
