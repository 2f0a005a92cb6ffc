package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/reconcile/internal/config"
	"github.com/smallbiznis/reconcile/internal/event"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyChannelClient = "reconcile:ratelimit:%s:%s"

type limit struct {
	rate  float64
	burst int
}

// ChannelLimiter throttles the client facing channels per client address.
// A nil limiter allows everything.
type ChannelLimiter struct {
	bucket *TokenBucket
	limits map[event.Channel]limit
}

func NewChannelLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*ChannelLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		log.Named("ratelimit").Info("channel rate limiting disabled")
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.OrderLinkRate <= 0 || limitCfg.OrderLinkBurst <= 0 {
		return nil, errors.New("order link rate limit must be positive")
	}
	if limitCfg.EmailOpenRate <= 0 || limitCfg.EmailOpenBurst <= 0 {
		return nil, errors.New("email open rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return newChannelLimiter(NewTokenBucket(client), limitCfg), nil
}

func newChannelLimiter(bucket *TokenBucket, cfg config.RateLimitConfig) *ChannelLimiter {
	return &ChannelLimiter{
		bucket: bucket,
		limits: map[event.Channel]limit{
			event.ChannelOrderLink: {rate: cfg.OrderLinkRate, burst: cfg.OrderLinkBurst},
			event.ChannelEmailOpen: {rate: cfg.EmailOpenRate, burst: cfg.EmailOpenBurst},
		},
	}
}

func (l *ChannelLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow spends one token for client on channel. Channels without a
// configured limit are always allowed.
func (l *ChannelLimiter) Allow(ctx context.Context, channel event.Channel, client string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	lim, ok := l.limits[channel]
	if !ok {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, Key(channel, client), lim.rate, lim.burst)
}

func Key(channel event.Channel, client string) string {
	client = strings.TrimSpace(client)
	if client == "" {
		client = "unknown"
	}
	return fmt.Sprintf(keyChannelClient, channel, client)
}
