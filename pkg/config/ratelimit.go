package config

import (
	"time"

	"github.com/tendant/pluser/pkg/ratelimit"
)

// RateLimitConfig contains rate limiting settings. A disabled scope is
// left out of the middleware entirely.
type RateLimitConfig struct {
	GlobalEnabled    bool    `env:"RATELIMIT_GLOBAL_ENABLED" env-default:"true"`
	GlobalCapacity   int     `env:"RATELIMIT_GLOBAL_CAPACITY" env-default:"1000"`
	GlobalRefillRate float64 `env:"RATELIMIT_GLOBAL_REFILL_RATE" env-default:"16.67"` // ~1000 per minute

	PerIPEnabled    bool    `env:"RATELIMIT_PER_IP_ENABLED" env-default:"true"`
	PerIPCapacity   int     `env:"RATELIMIT_PER_IP_CAPACITY" env-default:"100"`
	PerIPRefillRate float64 `env:"RATELIMIT_PER_IP_REFILL_RATE" env-default:"1.67"` // ~100 per minute

	PerSenderEnabled    bool    `env:"RATELIMIT_PER_SENDER_ENABLED" env-default:"true"`
	PerSenderCapacity   int     `env:"RATELIMIT_PER_SENDER_CAPACITY" env-default:"200"`
	PerSenderRefillRate float64 `env:"RATELIMIT_PER_SENDER_REFILL_RATE" env-default:"3.33"` // ~200 per minute

	// Account deployment is the most expensive write; throttle it per IP.
	DeployEnabled    bool    `env:"RATELIMIT_DEPLOY_ENABLED" env-default:"true"`
	DeployCapacity   int     `env:"RATELIMIT_DEPLOY_CAPACITY" env-default:"10"`
	DeployRefillRate float64 `env:"RATELIMIT_DEPLOY_REFILL_RATE" env-default:"0.167"` // 10 per minute

	BucketTTL      time.Duration `env:"RATELIMIT_BUCKET_TTL" env-default:"1h"`
	IncludeHeaders bool          `env:"RATELIMIT_INCLUDE_HEADERS" env-default:"true"`
}

func (c RateLimitConfig) validate() ValidationErrors {
	var errs ValidationErrors
	check := func(enabled bool, name string, capacity int, rate float64) {
		if !enabled {
			return
		}
		errs = append(errs, CollectErrors(
			RequirePositive("RATELIMIT_"+name+"_CAPACITY", capacity),
			RequirePositiveFloat("RATELIMIT_"+name+"_REFILL_RATE", rate),
		)...)
	}
	check(c.GlobalEnabled, "GLOBAL", c.GlobalCapacity, c.GlobalRefillRate)
	check(c.PerIPEnabled, "PER_IP", c.PerIPCapacity, c.PerIPRefillRate)
	check(c.PerSenderEnabled, "PER_SENDER", c.PerSenderCapacity, c.PerSenderRefillRate)
	check(c.DeployEnabled, "DEPLOY", c.DeployCapacity, c.DeployRefillRate)
	errs = append(errs, CollectErrors(RequireNonNegativeDuration("RATELIMIT_BUCKET_TTL", c.BucketTTL))...)
	return errs
}

// ToMiddlewareConfig builds the middleware settings. deployPath is the
// route that creates accounts, e.g. "/api/factory/accounts".
func (c RateLimitConfig) ToMiddlewareConfig(deployPath string) ratelimit.Config {
	limit := func(enabled bool, capacity int, rate float64) ratelimit.Limit {
		if !enabled {
			return ratelimit.Limit{}
		}
		return ratelimit.Limit{Capacity: capacity, RefillRate: rate}
	}

	cfg := ratelimit.Config{
		Global:         limit(c.GlobalEnabled, c.GlobalCapacity, c.GlobalRefillRate),
		PerIP:          limit(c.PerIPEnabled, c.PerIPCapacity, c.PerIPRefillRate),
		PerSender:      limit(c.PerSenderEnabled, c.PerSenderCapacity, c.PerSenderRefillRate),
		Endpoints:      map[string]ratelimit.Limit{},
		BucketTTL:      c.BucketTTL,
		IncludeHeaders: c.IncludeHeaders,
	}
	if c.DeployEnabled && deployPath != "" {
		cfg.Endpoints["POST "+deployPath] = limit(true, c.DeployCapacity, c.DeployRefillRate)
	}
	return cfg
}
