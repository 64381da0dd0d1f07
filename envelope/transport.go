package envelope

// DefaultOkCode is the status token the delivery service sends for a
// successfully delivered message.
const DefaultOkCode = "200"

// Transport is the record exchanged with the external delivery service.
type Transport struct {
	UID      string `json:"uid"`
	Message  string `json:"message"`
	UserName string `json:"userName"`

	// ErrorCode is null on the outbound submission and carries the service's
	// status token on the inbound confirmation.
	ErrorCode *string `json:"errorCode"`
}

// WithCode returns a copy of t carrying the given status token.
func (t Transport) WithCode(code string) Transport {
	t.ErrorCode = &code
	return t
}

// Code returns the status token, or "" when absent.
func (t Transport) Code() string {
	if t.ErrorCode == nil {
		return ""
	}
	return *t.ErrorCode
}

// StateFor maps a status token to an envelope state: okCode means received,
// anything else (including an absent token) means error.
func StateFor(code *string, okCode string) State {
	if okCode == "" {
		okCode = DefaultOkCode
	}
	if code != nil && *code == okCode {
		return StateReceived
	}
	return StateError
}

// Ack is the acknowledgement returned to the delivery service.
type Ack struct {
	Status      int    `json:"status"`
	Description string `json:"description"`
}
