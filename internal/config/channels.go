package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ChannelPolicy holds the hot-reloadable per-channel settings.
type ChannelPolicy struct {
	OrderLinkOrigins []string      `mapstructure:"orderLinkOrigins"`
	WebhookTolerance time.Duration `mapstructure:"webhookTolerance"`
}

func DefaultChannelPolicy(cfg Config) ChannelPolicy {
	origins := make([]string, len(cfg.CORS.AllowedOrigins))
	copy(origins, cfg.CORS.AllowedOrigins)
	return ChannelPolicy{
		OrderLinkOrigins: origins,
		WebhookTolerance: cfg.Webhook.Tolerance,
	}
}

type ChannelPolicyHolder struct {
	current atomic.Value // holds ChannelPolicy
}

// NewStaticChannelPolicyHolder returns a holder that never reloads.
func NewStaticChannelPolicyHolder(policy ChannelPolicy) *ChannelPolicyHolder {
	holder := &ChannelPolicyHolder{}
	holder.current.Store(normalizePolicy(policy))
	return holder
}

// NewChannelPolicyHolder reads reconcile.yml when present and watches it for changes.
func NewChannelPolicyHolder(cfg Config, log *zap.Logger) (*ChannelPolicyHolder, error) {
	log = log.Named("config.channels")
	defaults := DefaultChannelPolicy(cfg)

	v := viper.New()
	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/reconcile")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("channels.orderLinkOrigins", defaults.OrderLinkOrigins)
	v.SetDefault("channels.webhookTolerance", defaults.WebhookTolerance)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	var policy ChannelPolicy
	if err := v.UnmarshalKey("channels", &policy); err != nil {
		return nil, err
	}
	if err := validateChannelPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticChannelPolicyHolder(policy)
	if !fileFound {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ChannelPolicy
		if err := v.UnmarshalKey("channels", &updated); err != nil {
			log.Warn("channel policy reload failed", zap.Error(err))
			return
		}
		if err := validateChannelPolicy(updated); err != nil {
			log.Warn("invalid channel policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(normalizePolicy(updated))
		log.Info("channel policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *ChannelPolicyHolder) Get() ChannelPolicy {
	return h.current.Load().(ChannelPolicy)
}

// OriginAllowed reports whether origin may call the order link channel.
func (p ChannelPolicy) OriginAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	for _, allowed := range p.OrderLinkOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func normalizePolicy(policy ChannelPolicy) ChannelPolicy {
	origins := make([]string, 0, len(policy.OrderLinkOrigins))
	for _, origin := range policy.OrderLinkOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" || origin == "*" {
			continue
		}
		origins = append(origins, origin)
	}
	policy.OrderLinkOrigins = origins
	return policy
}

func validateChannelPolicy(policy ChannelPolicy) error {
	if policy.WebhookTolerance <= 0 {
		return errors.New("channels.webhookTolerance must be positive")
	}
	for _, origin := range policy.OrderLinkOrigins {
		if strings.TrimSpace(origin) == "*" {
			return errors.New("channels.orderLinkOrigins cannot contain a wildcard")
		}
	}
	return nil
}
