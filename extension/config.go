package extension

import (
	"github.com/xraph/chatrelay"
)

// Config holds configuration for the chat relay Forge extension.
// Fields can be set programmatically via ExtOption functions or loaded from
// YAML configuration files (under "extensions.chatrelay" or "chatrelay" keys).
type Config struct {
	// Config embeds the core relay configuration.
	chatrelay.Config `json:",inline" yaml:",inline" mapstructure:",squash"`

	// BasePath is the URL prefix for the relay routes (default: "/chat").
	BasePath string `json:"base_path" yaml:"base_path" mapstructure:"base_path"`

	// DisableRoutes disables automatic route registration with the Forge router.
	DisableRoutes bool `json:"disable_routes" yaml:"disable_routes" mapstructure:"disable_routes"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:   chatrelay.DefaultConfig(),
		BasePath: "/chat",
	}
}

// ToRelayOptions converts the embedded Config into chatrelay.Option values.
// Unset fields keep the relay defaults, except ConfirmationTimeout where
// zero disables expiry.
func (c Config) ToRelayOptions() []chatrelay.Option {
	var opts []chatrelay.Option

	if c.DeliveryURL != "" {
		opts = append(opts, chatrelay.WithDeliveryURL(c.DeliveryURL))
	}
	if c.RequestTimeout > 0 {
		opts = append(opts, chatrelay.WithRequestTimeout(c.RequestTimeout))
	}
	if c.SigningSecret != "" {
		opts = append(opts, chatrelay.WithSigningSecret(c.SigningSecret))
	}
	if c.OkCode != "" {
		opts = append(opts, chatrelay.WithOkCode(c.OkCode))
	}
	opts = append(opts, chatrelay.WithConfirmationTimeout(c.ConfirmationTimeout))
	if c.SweepInterval > 0 {
		opts = append(opts, chatrelay.WithSweepInterval(c.SweepInterval))
	}
	if c.SweepBatchSize > 0 {
		opts = append(opts, chatrelay.WithSweepBatchSize(c.SweepBatchSize))
	}
	if c.MaxPending > 0 {
		opts = append(opts, chatrelay.WithMaxPending(c.MaxPending))
	}
	if c.MessageRateLimit > 0 {
		opts = append(opts, chatrelay.WithMessageRateLimit(c.MessageRateLimit))
	}
	if c.SendBuffer > 0 {
		opts = append(opts, chatrelay.WithSendBuffer(c.SendBuffer))
	}
	if c.ReadLimit > 0 {
		opts = append(opts, chatrelay.WithReadLimit(c.ReadLimit))
	}
	if c.ShutdownTimeout > 0 {
		opts = append(opts, chatrelay.WithShutdownTimeout(c.ShutdownTimeout))
	}

	return opts
}
