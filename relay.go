package chatrelay

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/chatrelay/api"
	"github.com/xraph/chatrelay/confirm"
	"github.com/xraph/chatrelay/delivery"
	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/pending"
	"github.com/xraph/chatrelay/ratelimit"
	"github.com/xraph/chatrelay/registry"
	"github.com/xraph/chatrelay/session"
	"github.com/xraph/chatrelay/signature"
	"github.com/xraph/chatrelay/simulator"
	"github.com/xraph/chatrelay/store"
	"github.com/xraph/chatrelay/transport/ws"
)

// wireServices initializes the internal services after options have been applied.
func (r *Relay) wireServices() error {
	codec, err := envelope.NewCodec()
	if err != nil {
		return fmt.Errorf("chatrelay: compile schemas: %w", err)
	}
	r.codec = codec

	r.registry = registry.New()
	r.signer = signature.NewSigner(r.config.SigningSecret)
	r.limiter = ratelimit.New(r.config.MessageRateLimit)

	r.client = delivery.NewClient(delivery.Config{
		URL:     r.config.DeliveryURL,
		Timeout: r.config.RequestTimeout,
		Signer:  r.signer,
		Metrics: r.metrics,
		Tracer:  r.tracer,
	}, r.logger)

	r.tracker = pending.NewTracker(r.store, pending.Config{
		Timeout:       r.config.ConfirmationTimeout,
		SweepInterval: r.config.SweepInterval,
		BatchSize:     r.config.SweepBatchSize,
		MaxPending:    r.config.MaxPending,
		Metrics:       r.metrics,
	}, r.logger)

	r.hub = session.NewHub(session.Config{
		Registry:  r.registry,
		Codec:     r.codec,
		Submitter: r.client,
		Tracker:   r.tracker,
		Limiter:   r.limiter,
		Metrics:   r.metrics,
	}, r.logger)

	r.confirm = confirm.New(confirm.Config{
		Registry: r.registry,
		OkCode:   r.config.OkCode,
		Tracker:  r.tracker,
		Metrics:  r.metrics,
		Tracer:   r.tracer,
	}, r.logger)

	var sim http.Handler
	if r.simConfig != nil {
		cfg := *r.simConfig
		cfg.Signer = r.signer
		if cfg.Status == nil {
			cfg.Status = simulator.Fixed(r.config.OkCode)
		}
		r.simulator, err = simulator.New(cfg, r.codec, r.logger)
		if err != nil {
			return err
		}
		sim = r.simulator
	}

	wsConfig := ws.DefaultConfig()
	wsConfig.SendBuffer = r.config.SendBuffer
	wsConfig.ReadLimit = r.config.ReadLimit

	r.handler = api.NewHandler(api.Config{
		Store:     r.store,
		Registry:  r.registry,
		Codec:     r.codec,
		Hub:       r.hub,
		Upgrader:  ws.NewUpgrader(wsConfig, r.checkOrigin, r.logger),
		Confirm:   r.confirm,
		Signer:    r.signer,
		Tracker:   r.tracker,
		Simulator: sim,
	}, r.logger)

	return nil
}

// Start begins the pending-confirmation sweep.
func (r *Relay) Start(ctx context.Context) {
	r.tracker.Start(ctx)
	r.logger.InfoContext(ctx, "relay started",
		"delivery_url", r.config.DeliveryURL,
		"signing", r.signer.Enabled(),
		"simulator", r.simulator != nil,
	)
}

// Stop closes every channel, waits for in-flight submissions and
// simulator callbacks, and stops the sweep. Submissions still running when
// ctx is done, or after ShutdownTimeout, are abandoned.
func (r *Relay) Stop(ctx context.Context) error {
	if r.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ShutdownTimeout)
		defer cancel()
	}

	r.hub.CloseAll("server shutting down")
	r.registry.CloseAll("server shutting down")

	var errs []error
	if err := r.client.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("chatrelay: waiting for submissions: %w", err))
	}
	if r.simulator != nil {
		r.simulator.Close()
		if err := r.simulator.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("chatrelay: waiting for simulator: %w", err))
		}
	}
	r.tracker.Stop(ctx)

	r.logger.InfoContext(ctx, "relay stopped")
	return errors.Join(errs...)
}

// Handler returns the HTTP handler serving the socket and confirmation
// routes.
func (r *Relay) Handler() http.Handler {
	return r.handler
}

// Registry returns the connection registry.
func (r *Relay) Registry() *registry.Registry {
	return r.registry
}

// Store returns the underlying store.
func (r *Relay) Store() store.Store {
	return r.store
}

// Config returns the effective configuration.
func (r *Relay) Config() Config {
	return r.config
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	Connections int   `json:"connections"`
	Sessions    int   `json:"sessions"`
	Pending     int64 `json:"pending"`
}

// Stats returns current connection and pending counts.
func (r *Relay) Stats(ctx context.Context) (Stats, error) {
	n, err := r.tracker.Pending(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Connections: r.registry.Len(),
		Sessions:    r.hub.Open(),
		Pending:     n,
	}, nil
}
