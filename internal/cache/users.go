// Package cache keeps public user projections in Redis so the session
// guard does not hit MySQL on every authenticated request.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/user-auth-service/internal/config"
	"github.com/iliyamo/user-auth-service/internal/logging"
	"github.com/iliyamo/user-auth-service/internal/model"
)

// PublicUserSource is what the cache sits in front of.
type PublicUserSource interface {
	GetPublicByID(ctx context.Context, id uint64) (model.PublicUser, error)
}

// Users is a read-through cache. Redis failures fall back to the source;
// only source errors reach the caller, and those are never cached.
type Users struct {
	rdb    *redis.Client
	next   PublicUserSource
	ttl    time.Duration
	prefix string
}

// NewUsers returns next unchanged when caching is disabled or rdb is nil.
func NewUsers(cfg config.UserCacheConfig, rdb *redis.Client, next PublicUserSource) PublicUserSource {
	if !cfg.Enabled || rdb == nil {
		return next
	}
	return &Users{rdb: rdb, next: next, ttl: cfg.TTL, prefix: cfg.Prefix}
}

func (c *Users) GetPublicByID(ctx context.Context, id uint64) (model.PublicUser, error) {
	key := c.key(id)
	if bs, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var u model.PublicUser
		if json.Unmarshal(bs, &u) == nil && u.ID == id {
			return u, nil
		}
	} else if err != redis.Nil {
		logging.FromContext(ctx).Warn("user_cache_get_failed", "key", key, "error", err)
	}

	u, err := c.next.GetPublicByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, err
	}
	if payload, err := json.Marshal(u); err == nil {
		if err := c.rdb.SetEx(ctx, key, payload, c.ttl).Err(); err != nil {
			logging.FromContext(ctx).Warn("user_cache_set_failed", "key", key, "error", err)
		}
	}
	return u, nil
}

func (c *Users) key(id uint64) string {
	return c.prefix + ":public:" + strconv.FormatUint(id, 10)
}
