// Package delivery hands message envelopes to the external delivery service.
//
// A submission is one outbound POST of a transport envelope. The client does
// not interpret the response status: whether the message was actually
// delivered arrives later, on the confirmation endpoint. A submission only
// fails when no response was obtained at all.
package delivery

import (
	"errors"

	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/id"
)

var (
	// ErrTransportFailure is returned when the delivery call could not be
	// completed: encoding, connection, timeout, or an unreadable response.
	ErrTransportFailure = errors.New("chatrelay: delivery transport failure")

	// ErrEmptyResponse is wrapped in ErrTransportFailure when the service
	// answered with no body.
	ErrEmptyResponse = errors.New("chatrelay: delivery service returned an empty response")
)

// Submission is one envelope handed to the delivery service.
type Submission struct {
	// ID identifies this outbound call in logs, spans and headers.
	ID id.ID

	// Envelope is the message being submitted.
	Envelope *envelope.Envelope
}

// NewSubmission wraps e with a fresh submission id.
func NewSubmission(e *envelope.Envelope) *Submission {
	return &Submission{ID: id.NewSubmissionID(), Envelope: e}
}

// Result holds the outcome of a single submission.
type Result struct {
	SubmissionID id.ID
	StatusCode   int
	Response     string
	LatencyMs    int

	// Err is nil on success and wraps ErrTransportFailure otherwise.
	Err error
}

// OK reports whether the submission reached the delivery service.
func (r Result) OK() bool {
	return r.Err == nil
}
