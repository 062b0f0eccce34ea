// Package ratelimit is a fixed-window per-IP limiter for the auth
// endpoints, which are the only unauthenticated write paths.
package ratelimit

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	maxWindows = 100000
)

var (
	logger = log.With().Str("component", "ratelimit").Logger()
)

type Config struct {
	// Disabled turns every middleware into a pass-through. Meant for
	// tests and local development.
	Disabled bool `yaml:"disabled"`
}

type window struct {
	hits atomic.Int64
}

type Limiter struct {
	config *Config
	cache  *ristretto.Cache[string, *window]
}

func NewLimiter(config *Config) *Limiter {
	c, err := ristretto.NewCache(&ristretto.Config[string, *window]{
		NumCounters: maxWindows,
		MaxCost:     maxWindows,
		BufferItems: 64,
	})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rate limit cache")
	}

	return &Limiter{
		config: config,
		cache:  c,
	}
}

// Middleware enforces limit requests per client IP per window. The
// window starts at the first request and is dropped by cache TTL.
func (l *Limiter) Middleware(name string, limit int64, per time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.config.Disabled {
			c.Next()
			return
		}

		key := name + "|" + c.ClientIP()

		w, ok := l.cache.Get(key)
		if !ok {
			w = &window{}
			l.cache.SetWithTTL(key, w, 1, per)
			l.cache.Wait()
			// Re-read so concurrent first requests count on one window.
			if cur, ok := l.cache.Get(key); ok {
				w = cur
			}
		}

		if w.hits.Add(1) > limit {
			logger.Warn().Str("route", name).Str("ip", c.ClientIP()).Msg("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": http.StatusText(http.StatusTooManyRequests),
			})
			return
		}

		c.Next()
	}
}
