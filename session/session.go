// Package session runs the per-connection relay protocol.
//
// Every accepted channel gets its own loop that decodes inbound frames in
// arrival order and drives a three-state machine:
//
//	OPEN    accepted, no identity registered yet
//	ACTIVE  identity registered in the registry
//	CLOSED  terminal, identity released
//
// A connection frame registers (or re-registers) the identity and announces
// it to everyone. A message frame is handed to the delivery service without
// blocking the loop; nobody sees it until the confirmation endpoint reports
// the outcome. A close frame or the end of the channel releases the identity
// and announces the departure to whoever remains.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/chatrelay/delivery"
	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/id"
	"github.com/xraph/chatrelay/observability"
	"github.com/xraph/chatrelay/pending"
	"github.com/xraph/chatrelay/ratelimit"
	"github.com/xraph/chatrelay/registry"
)

// State is the protocol state of one connection.
type State int

const (
	StateOpen State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Channel is a duplex channel served by the hub.
type Channel interface {
	registry.Channel

	// Read blocks for the next inbound frame. Any error ends the session.
	Read(ctx context.Context) ([]byte, error)
}

// Submitter hands message envelopes to the delivery service. It is
// satisfied by *delivery.Client.
type Submitter interface {
	Dispatch(ctx context.Context, sub *delivery.Submission, done func(delivery.Result))
}

// Config holds hub dependencies.
type Config struct {
	Registry  *registry.Registry
	Codec     *envelope.Codec
	Submitter Submitter

	// Tracker records submissions awaiting confirmation. Optional.
	Tracker *pending.Tracker

	// Limiter caps message frames per identity. Optional.
	Limiter *ratelimit.Limiter

	Metrics *observability.Metrics
}

// Hub serves channels against one shared registry.
type Hub struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewHub creates a hub.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		config:   cfg,
		logger:   logger.With("component", "session"),
		sessions: make(map[*Session]struct{}),
	}
}

// Serve runs the protocol on ch until the channel ends, a close frame is
// received, or ctx is cancelled. It always leaves ch closed and its identity
// released.
func (h *Hub) Serve(ctx context.Context, ch Channel) {
	s := &Session{
		hub:     h,
		channel: ch,
		state:   StateOpen,
		logger:  h.logger.With("conn", channelID(ch)),
	}
	s.connKey = "conn:" + channelID(ch)
	if s.connKey == "conn:" {
		s.connKey = fmt.Sprintf("conn:%p", ch)
	}

	h.track(s, true)
	defer h.track(s, false)

	s.logger.DebugContext(ctx, "session opened")
	s.run(ctx)
}

// Open returns the number of sessions currently being served, in any state.
func (h *Hub) Open() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// CloseAll closes every served channel, registered or not.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		_ = s.channel.Close(reason) //nolint:errcheck // best effort
	}
}

func (h *Hub) track(s *Session, add bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if add {
		h.sessions[s] = struct{}{}
	} else {
		delete(h.sessions, s)
	}
}

// Session is the protocol state for one channel. Its fields are only
// touched by the goroutine running Serve.
type Session struct {
	hub      *Hub
	channel  Channel
	state    State
	userName string
	connKey  string
	logger   *slog.Logger
}

func (s *Session) run(ctx context.Context) {
	defer s.terminate(ctx)

	for {
		frame, err := s.channel.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.DebugContext(ctx, "channel ended", "error", err)
			}
			return
		}

		if !s.handle(ctx, frame) {
			return
		}
	}
}

// handle processes one frame and reports whether the session continues.
func (s *Session) handle(ctx context.Context, frame []byte) bool {
	e, err := s.hub.config.Codec.Decode(frame)
	if err != nil {
		s.logger.WarnContext(ctx, "dropping undecodable frame", "state", s.state, "error", err)
		s.hub.config.Metrics.RecordDrop("decode")
		return true
	}

	switch e.Kind {
	case envelope.KindConnection:
		s.register(ctx, e.UserName)
	case envelope.KindMessage:
		s.submit(ctx, e)
	case envelope.KindClose:
		s.logger.DebugContext(ctx, "close requested", "user", s.userName)
		return false
	}
	return true
}

// register binds userName to this channel and announces the join to every
// registered connection, the new one included.
func (s *Session) register(ctx context.Context, userName string) {
	reg := s.hub.config.Registry

	// Renaming an active session releases the old identity first.
	if s.state == StateActive && s.userName != userName {
		s.release(ctx)
	}

	prev, replaced := reg.Insert(registry.Connection{UserName: userName, Channel: s.channel})
	if replaced {
		s.logger.InfoContext(ctx, "identity re-registered, closing previous channel", "user", userName)
		_ = prev.Channel.Close("identity registered on another connection") //nolint:errcheck // best effort
	}

	s.userName = userName
	s.state = StateActive
	s.logger = s.logger.With("user", userName)
	s.logger.InfoContext(ctx, "joined", "connections", reg.Len())
	s.hub.config.Metrics.SetConnections(reg.Len())

	s.broadcast(ctx, envelope.Announcement(envelope.KindConnection, userName))
}

// submit hands a message to the delivery service without waiting for it.
func (s *Session) submit(ctx context.Context, e *envelope.Envelope) {
	cfg := s.hub.config

	if !cfg.Limiter.Allow(s.limitKey()) {
		s.logger.WarnContext(ctx, "dropping rate-limited message", "uid", e.ID)
		cfg.Metrics.RecordDrop("rate_limited")
		return
	}

	sub := delivery.NewSubmission(e)
	uid := e.ID.String()

	if cfg.Tracker != nil {
		if _, err := cfg.Tracker.Track(ctx, &pending.Entry{
			UID:          uid,
			UserName:     e.UserName,
			SubmissionID: sub.ID,
			SubmittedAt:  time.Now().UTC(),
		}); err != nil {
			s.logger.ErrorContext(ctx, "track submission failed", "uid", uid, "error", err)
		}
	}

	s.logger.DebugContext(ctx, "submitting message", "uid", uid, "submission_id", sub.ID)

	cfg.Submitter.Dispatch(ctx, sub, func(res delivery.Result) {
		if res.OK() || cfg.Tracker == nil {
			return
		}
		// A failed submission will never be confirmed.
		cfg.Tracker.Discard(context.WithoutCancel(ctx), uid)
	})
}

// terminate releases the identity and closes the channel.
func (s *Session) terminate(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	if s.state == StateActive {
		s.release(ctx)
	} else {
		s.logger.DebugContext(ctx, "closing unregistered session")
	}
	s.state = StateClosed

	_ = s.channel.Close("") //nolint:errcheck // best effort
	s.hub.config.Limiter.Forget(s.connKey)
	if s.userName != "" {
		s.hub.config.Limiter.Forget(s.userName)
	}
}

// limitKey names the rate-limit bucket of this session: the registered
// identity once ACTIVE, the channel itself while OPEN. The userName carried
// in a message frame is never used, since the client controls it.
func (s *Session) limitKey() string {
	if s.state == StateActive {
		return s.userName
	}
	return s.connKey
}

// release removes whatever identity the registry binds to this channel and
// announces the departure to the remaining connections. Nothing is
// announced when the binding is already gone, e.g. after eviction.
func (s *Session) release(ctx context.Context) {
	reg := s.hub.config.Registry

	conn, err := reg.Release(s.channel)
	if err != nil {
		s.logger.DebugContext(ctx, "no identity bound at release", "error", err)
		return
	}

	s.logger.InfoContext(ctx, "left", "connections", reg.Len())
	s.hub.config.Metrics.SetConnections(reg.Len())

	s.broadcast(ctx, envelope.Announcement(envelope.KindClose, conn.UserName))
}

func (s *Session) broadcast(ctx context.Context, e *envelope.Envelope) {
	payload, err := envelope.Encode(e)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode announcement failed", "kind", e.Kind, "error", err)
		return
	}

	attempted, err := s.hub.config.Registry.Broadcast(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "broadcast partially failed", "kind", e.Kind, "attempted", attempted, "error", err)
		s.hub.config.Metrics.RecordBroadcastFailure()
	}
}

func channelID(ch Channel) string {
	if c, ok := ch.(interface{ ID() id.ID }); ok {
		return c.ID().String()
	}
	return ""
}
