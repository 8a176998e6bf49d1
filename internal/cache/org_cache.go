package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Префикс ключей кэша доступности организаций.
const orgKeyPrefix = "@posthog-worker/organization-available/"

func orgKey(organizationID string) string {
	return orgKeyPrefix + organizationID
}

// OrganizationCache — кэш "разрешены ли организации плагины".
type OrganizationCache struct {
	pool *Pool
}

// NewOrganizationCache создаёт кэш поверх пула соединений.
func NewOrganizationCache(pool *Pool) *OrganizationCache {
	return &OrganizationCache{pool: pool}
}

// Get возвращает закэшированное значение. ok=false — промах.
func (c *OrganizationCache) Get(ctx context.Context, organizationID string) (available bool, ok bool, err error) {
	err = c.pool.WithClient(ctx, func(client *redis.Client) error {
		value, getErr := client.Get(ctx, orgKey(organizationID)).Result()
		if getErr != nil {
			if errors.Is(getErr, redis.Nil) {
				return nil
			}
			return fmt.Errorf("cache get: %w", getErr)
		}
		available = value == "1"
		ok = true
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return available, ok, nil
}

// Set записывает значение. TTL не используется: инвалидация только явная.
func (c *OrganizationCache) Set(ctx context.Context, organizationID string, available bool) error {
	value := "0"
	if available {
		value = "1"
	}
	return c.pool.WithClient(ctx, func(client *redis.Client) error {
		if err := client.Set(ctx, orgKey(organizationID), value, 0).Err(); err != nil {
			return fmt.Errorf("cache set: %w", err)
		}
		return nil
	})
}

// Invalidate удаляет запись организации. После возврата ключ не может
// быть прочитан как hit.
func (c *OrganizationCache) Invalidate(ctx context.Context, organizationID string) error {
	return c.pool.WithClient(ctx, func(client *redis.Client) error {
		if err := client.Del(ctx, orgKey(organizationID)).Err(); err != nil {
			return fmt.Errorf("cache invalidate: %w", err)
		}
		return nil
	})
}
