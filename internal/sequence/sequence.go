// Package sequence issues human-readable ticket references.
package sequence

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Generator returns the next reference for a sequence code.
type Generator interface {
	Next(ctx context.Context, code string) (string, error)
}

// Counter is the slice of the redis client the generator needs.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// RedisGenerator draws numbers from an atomic Redis counter per code.
type RedisGenerator struct {
	counter Counter
	prefix  string
	padding int
}

// NewRedisGenerator builds a generator producing references like TCK00042.
func NewRedisGenerator(counter Counter, prefix string, padding int) *RedisGenerator {
	return &RedisGenerator{counter: counter, prefix: prefix, padding: padding}
}

// Next increments sequence:<code> and formats the result.
func (g *RedisGenerator) Next(ctx context.Context, code string) (string, error) {
	if g.counter == nil {
		return "", fmt.Errorf("sequence %s: no counter configured", code)
	}
	n, err := g.counter.Incr(ctx, "sequence:"+code).Result()
	if err != nil {
		return "", fmt.Errorf("sequence %s: %w", code, err)
	}
	return Format(g.prefix, g.padding, n), nil
}

// Format renders n zero-padded to width digits after prefix.
func Format(prefix string, width int, n int64) string {
	digits := fmt.Sprintf("%d", n)
	if pad := width - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return prefix + digits
}
