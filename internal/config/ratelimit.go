package config

import "time"

// Bucket is one token bucket: Capacity requests in a burst, refilled by
// Refill tokens every Interval.
type Bucket struct {
    Capacity int
    Refill   int
    Interval time.Duration
}

// TTL is how long an idle bucket is kept: long enough to refill completely.
func (b Bucket) TTL() time.Duration {
    steps := (b.Capacity + b.Refill - 1) / b.Refill
    return time.Duration(steps+1) * b.Interval
}

// RateLimitConfig holds one bucket per unauthenticated auth endpoint.
// Login is keyed by client and submitted identifier, so it also carries a
// per-account bucket that holds across client addresses.
type RateLimitConfig struct {
    Enabled  bool
    Prefix   string
    Register Bucket
    Login    Bucket
    Account  Bucket
    Refresh  Bucket
}

// LoadRateLimitConfig reads RATE_LIMIT_<ENDPOINT>_{CAPACITY,REFILL,INTERVAL}
// for REGISTER, LOGIN, ACCOUNT and REFRESH.  Registration is the tightest
// since each call costs a bcrypt hash and possibly two uploads.
func LoadRateLimitConfig() RateLimitConfig {
    return RateLimitConfig{
        Enabled:  envBool("RATE_LIMIT_ENABLED", true),
        Prefix:   envStr("RATE_LIMIT_PREFIX", "auth_rl"),
        Register: loadBucket("REGISTER", Bucket{Capacity: 3, Refill: 1, Interval: time.Minute}),
        Login:    loadBucket("LOGIN", Bucket{Capacity: 5, Refill: 1, Interval: 12 * time.Second}),
        Account:  loadBucket("ACCOUNT", Bucket{Capacity: 10, Refill: 1, Interval: 30 * time.Second}),
        Refresh:  loadBucket("REFRESH", Bucket{Capacity: 20, Refill: 1, Interval: 3 * time.Second}),
    }
}

func loadBucket(name string, def Bucket) Bucket {
    b := Bucket{
        Capacity: envInt("RATE_LIMIT_"+name+"_CAPACITY", def.Capacity),
        Refill:   envInt("RATE_LIMIT_"+name+"_REFILL", def.Refill),
        Interval: envDur("RATE_LIMIT_"+name+"_INTERVAL", def.Interval),
    }
    if b.Capacity < 1 {
        b.Capacity = 1
    }
    if b.Refill < 1 {
        b.Refill = 1
    }
    if b.Interval <= 0 {
        b.Interval = time.Second
    }
    return b
}
