package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-noire"
	"golang.org/x/time/rate"
)

// Config for the per client token bucket
type Config struct {
	// PerSecond is the refill rate. Default 1
	PerSecond float64

	// Burst is the bucket size. Default 5
	Burst int

	// TTL drops buckets idle for longer. Default 5m
	TTL time.Duration

	// KeyFunc identifies the client, defaults to c.IP()
	KeyFunc func(c *fiber.Ctx) string

	Now func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per client key
type Limiter struct {
	cfg       Config
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func NewLimiter(cfg Config) *Limiter {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Limiter{
		cfg:       cfg,
		buckets:   make(map[string]*bucket),
		lastSweep: cfg.Now(),
	}
}

// Allow takes one token from the bucket for key
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.cfg.TTL {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.cfg.TTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.seen = now

	return b.lim.AllowN(now, 1)
}

// Len reports the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Handler rejects requests over the limit with 429
func (l *Limiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(l.cfg.KeyFunc(c)) {
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusTooManyRequests).JSON(auth.ErrorResponse{
				StatusCode: fiber.StatusTooManyRequests,
				Error:      "Too Many Requests",
				Message:    "Rate limit exceeded",
			})
		}
		return c.Next()
	}
}

// New is a shortcut for NewLimiter(cfg).Handler()
func New(cfg Config) fiber.Handler {
	return NewLimiter(cfg).Handler()
}
