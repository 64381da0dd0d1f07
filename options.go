package chatrelay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/chatrelay/api"
	"github.com/xraph/chatrelay/confirm"
	"github.com/xraph/chatrelay/delivery"
	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/observability"
	"github.com/xraph/chatrelay/pending"
	"github.com/xraph/chatrelay/ratelimit"
	"github.com/xraph/chatrelay/registry"
	"github.com/xraph/chatrelay/session"
	"github.com/xraph/chatrelay/signature"
	"github.com/xraph/chatrelay/simulator"
	"github.com/xraph/chatrelay/store"
)

// Relay is the root chat relay.
type Relay struct {
	config      Config
	store       store.Store
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	checkOrigin func(*http.Request) bool
	simConfig   *simulator.Config

	registry  *registry.Registry
	codec     *envelope.Codec
	signer    *signature.Signer
	client    *delivery.Client
	tracker   *pending.Tracker
	limiter   *ratelimit.Limiter
	hub       *session.Hub
	confirm   *confirm.Endpoint
	simulator *simulator.Simulator
	handler   *api.Handler
}

// Option configures a Relay instance.
type Option func(*Relay) error

// New creates a new Relay with the given options.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	if r.config.DeliveryURL == "" {
		return nil, ErrNoDeliveryURL
	}
	if err := r.wireServices(); err != nil {
		return nil, err
	}
	return r, nil
}

// WithStore sets the backend for pending confirmations.
func WithStore(s store.Store) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Relay instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		r.logger = logger
		return nil
	}
}

// WithDeliveryURL sets the external delivery service endpoint.
func WithDeliveryURL(url string) Option {
	return func(r *Relay) error {
		r.config.DeliveryURL = url
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per submission.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.RequestTimeout = d
		return nil
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight
// submissions. Zero waits as long as the context passed to Stop allows.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.ShutdownTimeout = d
		return nil
	}
}

// WithSigningSecret enables signing of submissions and verification of
// confirmations.
func WithSigningSecret(secret string) Option {
	return func(r *Relay) error {
		r.config.SigningSecret = secret
		return nil
	}
}

// WithOkCode sets the status token that means "delivered".
func WithOkCode(code string) Option {
	return func(r *Relay) error {
		r.config.OkCode = code
		return nil
	}
}

// WithConfirmationTimeout sets how long a submission may wait for its
// confirmation before it is reported as expired. Zero disables expiry.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.ConfirmationTimeout = d
		return nil
	}
}

// WithSweepInterval sets how often expired submissions are collected.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.SweepInterval = d
		return nil
	}
}

// WithSweepBatchSize caps the submissions expired per sweep iteration.
func WithSweepBatchSize(n int) Option {
	return func(r *Relay) error {
		r.config.SweepBatchSize = n
		return nil
	}
}

// WithMaxPending caps the number of tracked submissions.
func WithMaxPending(n int) Option {
	return func(r *Relay) error {
		r.config.MaxPending = n
		return nil
	}
}

// WithMessageRateLimit caps message frames per identity per second.
func WithMessageRateLimit(n int) Option {
	return func(r *Relay) error {
		r.config.MessageRateLimit = n
		return nil
	}
}

// WithSendBuffer sets the outbound queue length of each channel.
func WithSendBuffer(n int) Option {
	return func(r *Relay) error {
		r.config.SendBuffer = n
		return nil
	}
}

// WithReadLimit caps the size of one inbound frame.
func WithReadLimit(n int64) Option {
	return func(r *Relay) error {
		r.config.ReadLimit = n
		return nil
	}
}

// WithCheckOrigin overrides the WebSocket origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(r *Relay) error {
		r.checkOrigin = fn
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) error {
		r.metrics = m
		return nil
	}
}

// WithTracer sets the tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Relay) error {
		r.tracer = t
		return nil
	}
}

// WithSimulator mounts a delivery-service simulator on the proxy route.
// Its signer is taken from the relay.
func WithSimulator(cfg simulator.Config) Option {
	return func(r *Relay) error {
		r.simConfig = &cfg
		return nil
	}
}
