// Package envelope defines the wire representation of relay traffic.
//
// Two shapes exist. Envelope is what travels over the duplex channel between
// the relay and its clients. Transport is the reduced record exchanged with
// the external delivery service: it is posted outbound with a null errorCode
// and comes back on the confirmation endpoint carrying a status token.
package envelope

import (
	"errors"

	"github.com/google/uuid"
)

// Kind discriminates the three envelope kinds. It never changes for the
// lifetime of an envelope.
type Kind string

const (
	// KindConnection announces an identity joining the room.
	KindConnection Kind = "connection"

	// KindMessage carries a text message.
	KindMessage Kind = "message"

	// KindClose announces an identity leaving the room.
	KindClose Kind = "close"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindConnection, KindMessage, KindClose:
		return true
	}
	return false
}

// State is the delivery state of a message envelope.
type State string

const (
	// StateProgress means the message is awaiting confirmation.
	StateProgress State = "progress"

	// StateReceived means the delivery service confirmed the message.
	StateReceived State = "received"

	// StateError means the delivery service rejected the message.
	StateError State = "error"
)

// ErrStateTransition is returned when a state change other than
// progress -> {received, error} is attempted.
var ErrStateTransition = errors.New("chatrelay: invalid envelope state transition")

// Envelope is a single frame exchanged with a connected client.
type Envelope struct {
	// ID identifies the envelope. Client-originated messages carry their own
	// ID through the delivery round trip; server announcements get a fresh one.
	ID uuid.UUID `json:"id"`

	// Kind is the envelope kind.
	Kind Kind `json:"kind"`

	// UserName is the identity the envelope is about.
	UserName string `json:"userName"`

	// DispatchDate is when the envelope was created.
	DispatchDate Timestamp `json:"dispatchDate"`

	// Message is the body. Empty for connection and close envelopes.
	Message string `json:"message"`

	// State is only meaningful for message envelopes.
	State State `json:"state"`
}

// New creates a server-originated envelope with a fresh ID and the current
// time as its dispatch date.
func New(kind Kind, userName, message string, state State) *Envelope {
	return &Envelope{
		ID:           uuid.New(),
		Kind:         kind,
		UserName:     userName,
		DispatchDate: Now(),
		Message:      message,
		State:        state,
	}
}

// Announcement creates the received-state envelope broadcast when userName
// joins (KindConnection) or leaves (KindClose).
func Announcement(kind Kind, userName string) *Envelope {
	return New(kind, userName, "", StateReceived)
}

// Settle moves a message envelope out of the progress state.
func (e *Envelope) Settle(to State) error {
	if e.Kind != KindMessage || e.State != StateProgress {
		return ErrStateTransition
	}
	if to != StateReceived && to != StateError {
		return ErrStateTransition
	}
	e.State = to
	return nil
}

// Transport converts the envelope into its outbound delivery form.
func (e *Envelope) Transport() Transport {
	return Transport{
		UID:      e.ID.String(),
		Message:  e.Message,
		UserName: e.UserName,
	}
}
