package config

import "time"

// RateLimitConfig configures the Redis token bucket in front of the HTTP API.
// Buckets are keyed by client IP and route.  LoginCapacity sizes a separate,
// smaller bucket for the admin login route.  Paths in Exempt bypass the
// limiter; the websocket keeps a per-connection frame limit of its own.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	LoginCapacity  int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
	Exempt         []string
	Debug          bool
}

// LoadRateLimitConfig reads the RATE_LIMIT_* variables and clamps them to
// usable values.
func LoadRateLimitConfig() RateLimitConfig {
	c := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		LoginCapacity:  envInt("RATE_LIMIT_LOGIN_CAPACITY", 5),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "screening:rl"),
		Exempt:         splitList(envStr("RATE_LIMIT_EXEMPT", "/ws,/healthz,/metrics")),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	c.Capacity = max(c.Capacity, 1)
	c.LoginCapacity = max(c.LoginCapacity, 1)
	c.RefillTokens = max(c.RefillTokens, 1)
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	c.TTL = max(c.TTL, 5*c.RefillInterval)
	return c
}

// ForLogin returns the bucket used by the admin login route.  It lives under
// its own key prefix so it never shares tokens with the general bucket.
func (c RateLimitConfig) ForLogin() RateLimitConfig {
	c.Capacity = c.LoginCapacity
	c.Prefix += ":login"
	return c
}

// RefillPerMilli is the steady refill rate in tokens per millisecond.
func (c RateLimitConfig) RefillPerMilli() float64 {
	if c.RefillInterval <= 0 {
		return float64(c.RefillTokens)
	}
	return float64(c.RefillTokens) * float64(time.Millisecond) / float64(c.RefillInterval)
}
