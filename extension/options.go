package extension

import (
	"log/slog"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/chatrelay"
	"github.com/xraph/chatrelay/store"
)

// ExtOption configures the chat relay Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend via a relay option.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, chatrelay.WithStore(s))
	}
}

// WithPrefix sets the URL prefix for all relay routes.
func WithPrefix(prefix string) ExtOption {
	return func(e *Extension) {
		e.config.BasePath = prefix
	}
}

// WithConfig sets the extension configuration directly.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithMetricFactory records relay metrics into factory, typically
// fapp.Metrics() of the hosting Forge app.
func WithMetricFactory(factory gu.MetricFactory) ExtOption {
	return func(e *Extension) {
		e.metrics = factory
	}
}

// WithLogger sets the logger handed to the relay.
func WithLogger(logger *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithRelayOption appends a raw chatrelay.Option to the extension.
func WithRelayOption(opt chatrelay.Option) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, opt)
	}
}

// WithDisableRoutes disables automatic route registration.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}
