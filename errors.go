package chatrelay

import (
	"errors"

	"github.com/xraph/chatrelay/confirm"
	"github.com/xraph/chatrelay/delivery"
	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/registry"
)

// Sentinel errors returned by Relay operations.
var (
	// ErrNoStore is returned when a Relay is created without a store.
	ErrNoStore = errors.New("chatrelay: store is required")

	// ErrNoDeliveryURL is returned when a Relay is created without a
	// delivery service endpoint.
	ErrNoDeliveryURL = errors.New("chatrelay: delivery URL is required")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("chatrelay: store is closed")
)

// Errors produced by the subpackages, re-exported for errors.Is matching.
var (
	// ErrDecode marks an inbound frame or envelope that could not be decoded.
	ErrDecode = envelope.ErrDecode

	// ErrEncoding marks an outgoing envelope that could not be serialized.
	ErrEncoding = envelope.ErrEncoding

	// ErrIdentityNotFound marks a registry miss.
	ErrIdentityNotFound = registry.ErrIdentityNotFound

	// ErrInvalidIdentifier marks a confirmation with an unparseable uid.
	ErrInvalidIdentifier = confirm.ErrInvalidIdentifier

	// ErrUnknownRecipient marks a confirmation for a departed identity.
	ErrUnknownRecipient = confirm.ErrUnknownRecipient

	// ErrTransportFailure marks a submission that got no response.
	ErrTransportFailure = delivery.ErrTransportFailure
)
