package checker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sentinel-iam/sentinel/pkg/grants"
	"github.com/sentinel-iam/sentinel/pkg/scope"
	"github.com/sentinel-iam/sentinel/pkg/storage/redis"
)

// PermissionCache caches resolved effective permissions per (user, client,
// resource). Entries expire after the configured TTL, which bounds how long
// a grant change can remain invisible; invalidation hooks shorten that
// window for targeted writes.
type PermissionCache interface {
	Get(ctx context.Context, userID, clientID, resource string) ([]grants.EffectivePermission, bool)
	Set(ctx context.Context, userID, clientID, resource string, perms []grants.EffectivePermission)
	// InvalidateUser drops every cached resolution for one user.
	InvalidateUser(ctx context.Context, userID string)
	// InvalidateAll drops the whole cache. Used when a group or
	// organization grant changes, since the affected user set is unknown.
	InvalidateAll(ctx context.Context)
}

func permCacheKey(userID, clientID, resource string) string {
	return fmt.Sprintf("perm:%s:%s:%s", userID, clientID, resource)
}

// cachedPermission is the serializable form of an effective permission
type cachedPermission struct {
	System       string   `json:"system,omitempty"`
	ResourceID   int64    `json:"resourceId"`
	ResourceCode string   `json:"resourceCode"`
	Scopes       []string `json:"scopes"`
	Source       string   `json:"source"`
	SourceID     string   `json:"sourceId"`
	SourceName   string   `json:"sourceName,omitempty"`
}

func toCached(perms []grants.EffectivePermission) []cachedPermission {
	out := make([]cachedPermission, len(perms))
	for i, p := range perms {
		out[i] = cachedPermission{
			System:       p.System,
			ResourceID:   p.ResourceID,
			ResourceCode: p.ResourceCode,
			Scopes:       p.Scopes.Codes(),
			Source:       string(p.Source),
			SourceID:     p.SourceID,
			SourceName:   p.SourceName,
		}
	}
	return out
}

func fromCached(cached []cachedPermission) []grants.EffectivePermission {
	out := make([]grants.EffectivePermission, len(cached))
	for i, c := range cached {
		out[i] = grants.EffectivePermission{
			System:       c.System,
			ResourceID:   c.ResourceID,
			ResourceCode: c.ResourceCode,
			Scopes:       scope.NewSet(c.Scopes...),
			Source:       grants.Source(c.Source),
			SourceID:     c.SourceID,
			SourceName:   c.SourceName,
		}
	}
	return out
}

// RedisPermissionCache backs the permission cache with the shared Redis
// instance so invalidation reaches every replica
type RedisPermissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPermissionCache creates a Redis-backed permission cache
func NewRedisPermissionCache(client *redis.Client, ttl time.Duration) *RedisPermissionCache {
	return &RedisPermissionCache{client: client, ttl: ttl}
}

func (c *RedisPermissionCache) Get(ctx context.Context, userID, clientID, resource string) ([]grants.EffectivePermission, bool) {
	var cached []cachedPermission
	found, err := c.client.GetJSON(ctx, permCacheKey(userID, clientID, resource), &cached)
	if err != nil || !found {
		return nil, false
	}
	return fromCached(cached), true
}

func (c *RedisPermissionCache) Set(ctx context.Context, userID, clientID, resource string, perms []grants.EffectivePermission) {
	c.client.SetJSON(ctx, permCacheKey(userID, clientID, resource), toCached(perms), c.ttl)
}

func (c *RedisPermissionCache) InvalidateUser(ctx context.Context, userID string) {
	c.client.DeletePattern(ctx, fmt.Sprintf("perm:%s:*", userID))
}

func (c *RedisPermissionCache) InvalidateAll(ctx context.Context) {
	c.client.DeletePattern(ctx, "perm:*")
}

// LocalPermissionCache is the in-process fallback used when Redis is not
// configured. Entries expire on the same TTL; invalidation only reaches
// this replica.
type LocalPermissionCache struct {
	lru *expirable.LRU[string, []cachedPermission]
}

// NewLocalPermissionCache creates an in-process permission cache
func NewLocalPermissionCache(size int, ttl time.Duration) *LocalPermissionCache {
	if size <= 0 {
		size = 10000
	}
	return &LocalPermissionCache{
		lru: expirable.NewLRU[string, []cachedPermission](size, nil, ttl),
	}
}

func (c *LocalPermissionCache) Get(ctx context.Context, userID, clientID, resource string) ([]grants.EffectivePermission, bool) {
	cached, ok := c.lru.Get(permCacheKey(userID, clientID, resource))
	if !ok {
		return nil, false
	}
	return fromCached(cached), true
}

func (c *LocalPermissionCache) Set(ctx context.Context, userID, clientID, resource string, perms []grants.EffectivePermission) {
	c.lru.Add(permCacheKey(userID, clientID, resource), toCached(perms))
}

func (c *LocalPermissionCache) InvalidateUser(ctx context.Context, userID string) {
	prefix := fmt.Sprintf("perm:%s:", userID)
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

func (c *LocalPermissionCache) InvalidateAll(ctx context.Context) {
	c.lru.Purge()
}

// NopPermissionCache disables caching; every check resolves from the store
type NopPermissionCache struct{}

func (NopPermissionCache) Get(ctx context.Context, userID, clientID, resource string) ([]grants.EffectivePermission, bool) {
	return nil, false
}
func (NopPermissionCache) Set(ctx context.Context, userID, clientID, resource string, perms []grants.EffectivePermission) {
}
func (NopPermissionCache) InvalidateUser(ctx context.Context, userID string) {}
func (NopPermissionCache) InvalidateAll(ctx context.Context)                 {}
