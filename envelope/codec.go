package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrDecode is returned for a malformed inbound frame or one whose kind
	// is unknown.
	ErrDecode = errors.New("chatrelay: malformed envelope")

	// ErrEncoding is returned when an outgoing envelope cannot be serialized.
	ErrEncoding = errors.New("chatrelay: envelope encoding failed")
)

// Codec decodes inbound frames and encodes outbound ones.
type Codec struct {
	validator *Validator
}

// NewCodec returns a Codec backed by a freshly compiled Validator.
func NewCodec() (*Codec, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Codec{validator: v}, nil
}

// wireEnvelope mirrors Envelope with a string id so that handshake frames
// without an id (or with an empty one) still decode.
type wireEnvelope struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	UserName     string    `json:"userName"`
	DispatchDate Timestamp `json:"dispatchDate"`
	Message      string    `json:"message"`
	State        State     `json:"state"`
}

// PeekKind extracts the kind discriminator without decoding the rest of the
// frame.
func PeekKind(data []byte) (Kind, error) {
	var head struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !head.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrDecode, head.Kind)
	}
	return head.Kind, nil
}

// Decode parses and validates an inbound frame. Message frames arrive in the
// progress state regardless of what the client sent.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	kind, err := PeekKind(data)
	if err != nil {
		return nil, err
	}
	if err := c.validator.ValidateFrame(kind, data); err != nil {
		return nil, err
	}

	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	e := &Envelope{
		Kind:         w.Kind,
		UserName:     w.UserName,
		DispatchDate: w.DispatchDate,
		Message:      w.Message,
		State:        w.State,
	}
	if w.ID != "" {
		parsed, err := uuid.Parse(w.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: id: %v", ErrDecode, err)
		}
		e.ID = parsed
	}

	if e.Kind == KindMessage {
		e.State = StateProgress
		if e.DispatchDate.IsZero() {
			e.DispatchDate = Now()
		}
	}
	return e, nil
}

// DecodeTransport parses and validates a confirmation body. The uid is not
// checked here; that is the confirmation endpoint's concern.
func (c *Codec) DecodeTransport(data []byte) (*Transport, error) {
	if err := c.validator.ValidateTransport(data); err != nil {
		return nil, err
	}
	var t Transport
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &t, nil
}

// Encode serializes an envelope for the duplex channel.
func Encode(e *Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return data, nil
}

// EncodeTransport serializes a transport envelope for the delivery service.
func EncodeTransport(t Transport) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return data, nil
}
