package config

import "time"

// UserCacheConfig defines settings for the Redis cache that sits between the
// session guard and the users table.  Entries hold the public projection of
// a user keyed by id.  When Enabled is false or no Redis client is
// configured, every guarded request reads the store directly.
type UserCacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadUserCacheConfig reads environment variables to build a UserCacheConfig.
// Defaults are used when variables are not set.
func LoadUserCacheConfig() UserCacheConfig {
    cfg := UserCacheConfig{
        Enabled: envBool("USER_CACHE_ENABLED", true),
        TTL:     envDur("USER_CACHE_TTL", 30*time.Second),
        Prefix:  envStr("USER_CACHE_PREFIX", "user"),
    }
    if cfg.TTL <= 0 {
        cfg.TTL = time.Second
    }
    return cfg
}
