// Package confirm routes delivery outcomes reported by the delivery service
// back to connected clients.
//
// A received outcome is broadcast to the whole room. An error outcome is
// private: only the originating identity sees it.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/observability"
	"github.com/xraph/chatrelay/pending"
	"github.com/xraph/chatrelay/registry"
)

var (
	// ErrInvalidIdentifier is returned when the uid is missing or not a UUID.
	ErrInvalidIdentifier = errors.New("chatrelay: invalid message identifier")

	// ErrUnknownRecipient is returned when the originating identity is no
	// longer connected.
	ErrUnknownRecipient = errors.New("chatrelay: recipient not connected")
)

// Config holds endpoint dependencies.
type Config struct {
	Registry *registry.Registry

	// OkCode is the status token meaning "delivered". Defaults to
	// envelope.DefaultOkCode.
	OkCode string

	// Tracker resolves pending submissions. Optional.
	Tracker *pending.Tracker

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Endpoint applies confirmations.
type Endpoint struct {
	config Config
	logger *slog.Logger
}

// New creates an Endpoint.
func New(cfg Config, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OkCode == "" {
		cfg.OkCode = envelope.DefaultOkCode
	}
	return &Endpoint{
		config: cfg,
		logger: logger.With("component", "confirm"),
	}
}

// Confirm applies one confirmation and returns the acknowledgement for the
// delivery service.
func (ep *Endpoint) Confirm(ctx context.Context, t *envelope.Transport) (ack envelope.Ack, err error) {
	var state envelope.State

	ctx, span := ep.config.Tracer.StartConfirmationSpan(ctx, t.UID, t.UserName, t.Code())
	defer func() {
		ep.config.Tracer.EndConfirmationSpan(span, string(state), err)
	}()

	uid, parseErr := uuid.Parse(t.UID)
	if t.UID == "" || parseErr != nil {
		ep.logger.WarnContext(ctx, "confirmation with invalid uid", "uid", t.UID, "user", t.UserName)
		ep.config.Metrics.RecordConfirmation("invalid_identifier")
		return envelope.Ack{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, t.UID)
	}

	if _, ok := ep.config.Registry.Lookup(t.UserName); !ok {
		ep.logger.WarnContext(ctx, "confirmation for disconnected user", "uid", t.UID, "user", t.UserName)
		ep.config.Metrics.RecordConfirmation("unknown_recipient")
		ep.resolve(ctx, t.UID)
		return envelope.Ack{}, fmt.Errorf("%w: %s", ErrUnknownRecipient, t.UserName)
	}

	e := &envelope.Envelope{
		ID:           uid,
		Kind:         envelope.KindMessage,
		UserName:     t.UserName,
		DispatchDate: envelope.Now(),
		Message:      t.Message,
		State:        envelope.StateProgress,
	}
	if err = e.Settle(envelope.StateFor(t.ErrorCode, ep.config.OkCode)); err != nil {
		return envelope.Ack{}, err
	}
	state = e.State

	payload, err := envelope.Encode(e)
	if err != nil {
		return envelope.Ack{}, err
	}

	switch state {
	case envelope.StateError:
		if sendErr := ep.config.Registry.SendTo(t.UserName, payload); sendErr != nil {
			ep.config.Metrics.RecordBroadcastFailure()
			if errors.Is(sendErr, registry.ErrIdentityNotFound) {
				// The user left between lookup and send.
				ep.config.Metrics.RecordConfirmation("unknown_recipient")
				ep.resolve(ctx, t.UID)
				return envelope.Ack{}, fmt.Errorf("%w: %s", ErrUnknownRecipient, t.UserName)
			}
			ep.logger.WarnContext(ctx, "error outcome not delivered", "uid", t.UID, "user", t.UserName, "error", sendErr)
		}
	default:
		attempted, sendErr := ep.config.Registry.Broadcast(payload)
		if sendErr != nil {
			ep.config.Metrics.RecordBroadcastFailure()
			ep.logger.WarnContext(ctx, "broadcast partially failed", "uid", t.UID, "attempted", attempted, "error", sendErr)
		}
	}

	ep.resolve(ctx, t.UID)
	ep.config.Metrics.RecordConfirmation(string(state))
	ep.logger.InfoContext(ctx, "message confirmed", "uid", t.UID, "user", t.UserName, "state", state, "code", t.Code())

	return envelope.Ack{
		Status:      http.StatusOK,
		Description: fmt.Sprintf("user %s received message: %s", t.UserName, t.Message),
	}, nil
}

// resolve clears the pending entry. Untracked uids are accepted as is.
func (ep *Endpoint) resolve(ctx context.Context, uid string) {
	if ep.config.Tracker == nil {
		return
	}
	if _, err := ep.config.Tracker.Resolve(ctx, uid); err != nil && !errors.Is(err, pending.ErrNotFound) {
		ep.logger.ErrorContext(ctx, "resolve pending submission failed", "uid", uid, "error", err)
	}
}
