package config

// Redis backs the auth rate limiter and the session guard's user cache.
// Both degrade to pass-through when the client is nil, so a failed
// connection at startup is reported but never fatal.

import (
    "context"
    "crypto/tls"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// NewRedisClient builds a Redis client from the environment and pings it.
// Supported variables are:
//   REDIS_URL – full redis:// or rediss:// URL (takes precedence)
//   REDIS_HOST and REDIS_PORT, or REDIS_ADDR – server address
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
    opts, err := redisOptions()
    if err != nil {
        return nil, err
    }
    client := redis.NewClient(opts)
    pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := client.Ping(pingCtx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
    }
    return client, nil
}

func redisOptions() (*redis.Options, error) {
    if raw := os.Getenv("REDIS_URL"); raw != "" {
        return redis.ParseURL(raw)
    }
    addr := os.Getenv("REDIS_ADDR")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    dbNum := 0
    if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
        n, err := strconv.Atoi(dbStr)
        if err != nil {
            return nil, fmt.Errorf("invalid REDIS_DB %q", dbStr)
        }
        dbNum = n
    }
    var tlsConf *tls.Config
    if v := os.Getenv("REDIS_TLS"); strings.EqualFold(v, "true") || v == "1" {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return &redis.Options{
        Addr:      addr,
        Password:  os.Getenv("REDIS_PASSWORD"),
        DB:        dbNum,
        TLSConfig: tlsConf,
    }, nil
}
