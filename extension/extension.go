package extension

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/chatrelay"
	"github.com/xraph/chatrelay/observability"
)

// ErrNotInitialized is returned when the extension is used before Init.
var ErrNotInitialized = errors.New("chatrelay: extension not initialized")

// Extension is the Forge extension for the chat relay.
type Extension struct {
	config  Config
	opts    []chatrelay.Option
	metrics gu.MetricFactory
	logger  *slog.Logger

	relay *chatrelay.Relay
}

// New creates a new chat relay Forge extension.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return "chatrelay" }

// Init builds the relay from the configuration. Raw relay options passed
// with WithRelayOption or WithStore are applied after the configuration.
func (e *Extension) Init(_ context.Context) error {
	opts := append(e.config.ToRelayOptions(), chatrelay.WithLogger(e.logger))
	if e.metrics != nil {
		opts = append(opts, chatrelay.WithMetrics(observability.NewMetrics(e.metrics)))
	}
	opts = append(opts, e.opts...)

	r, err := chatrelay.New(opts...)
	if err != nil {
		return err
	}
	e.relay = r
	return nil
}

// Start begins the relay's background work.
func (e *Extension) Start(ctx context.Context) error {
	if e.relay == nil {
		return ErrNotInitialized
	}
	e.relay.Start(ctx)
	return nil
}

// Stop closes every channel and waits for in-flight submissions.
func (e *Extension) Stop(ctx context.Context) error {
	if e.relay == nil {
		return nil
	}
	return e.relay.Stop(ctx)
}

// Health reports store connectivity.
func (e *Extension) Health(ctx context.Context) error {
	if e.relay == nil {
		return ErrNotInitialized
	}
	return e.relay.Store().Ping(ctx)
}

// Relay returns the relay built by Init.
func (e *Extension) Relay() *chatrelay.Relay { return e.relay }

// Prefix returns the configured URL prefix.
func (e *Extension) Prefix() string { return strings.TrimSuffix(e.config.BasePath, "/") }

// Handler serves the relay routes under the configured prefix. It can be
// used standalone without Forge integration.
func (e *Extension) Handler() http.Handler {
	if e.relay == nil {
		return http.NotFoundHandler()
	}
	if e.Prefix() == "" {
		return e.relay.Handler()
	}
	return http.StripPrefix(e.Prefix(), e.relay.Handler())
}

// RegisterRoutes mounts the relay on a Forge router. The socket and
// confirmation routes are served by the relay handler as is; stats are
// exposed as a typed route so they show up in the OpenAPI document.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.relay == nil {
		return ErrNotInitialized
	}
	if e.config.DisableRoutes {
		return nil
	}

	g := router.Group(e.Prefix(), forge.WithGroupTags("chatrelay"))
	raw := http.HandlerFunc(e.relay.Handler().ServeHTTP)

	var errs []error
	if err := g.GET("/socket", raw,
		forge.WithSummary("Chat socket"),
		forge.WithDescription("Upgrades to the WebSocket duplex channel."),
		forge.WithOperationID("chatSocket"),
	); err != nil {
		errs = append(errs, err)
	}

	if err := g.POST("/api/v1/message", raw,
		forge.WithSummary("Delivery confirmation"),
		forge.WithDescription("Reports the delivery outcome of a submitted message."),
		forge.WithOperationID("confirmMessage"),
	); err != nil {
		errs = append(errs, err)
	}

	if err := g.GET("/api/v1/stats", e.getStats,
		forge.WithSummary("Relay statistics"),
		forge.WithDescription("Returns connection, session and pending submission counts."),
		forge.WithOperationID("getChatStats"),
		forge.WithResponseSchema(http.StatusOK, "Relay statistics", chatrelay.Stats{}),
		forge.WithErrorResponses(),
	); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// StatsRequest binds GET /api/v1/stats.
type StatsRequest struct{}

func (e *Extension) getStats(ctx forge.Context, _ *StatsRequest) (*chatrelay.Stats, error) {
	stats, err := e.relay.Stats(ctx.Context())
	if err != nil {
		return nil, forge.InternalError(err)
	}
	return &stats, nil
}
