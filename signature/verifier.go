package signature

import (
	"crypto/hmac"
	"errors"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrInvalidSignature is returned when the signature headers are missing
	// or do not match the body.
	ErrInvalidSignature = errors.New("chatrelay: invalid signature")

	// ErrSignatureExpired is returned when the signed timestamp falls outside
	// the accepted tolerance.
	ErrSignatureExpired = errors.New("chatrelay: signature timestamp outside tolerance")
)

// Verify checks whether the given signature matches the expected HMAC-SHA256
// signature for the payload, secret, and timestamp.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	expected := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// VerifyRequest checks the signature headers of r against body.
func (s *Signer) VerifyRequest(r *http.Request, body []byte) error {
	if !s.Enabled() {
		return nil
	}

	sig := r.Header.Get(HeaderSignature)
	rawTS := r.Header.Get(HeaderTimestamp)
	if sig == "" || rawTS == "" {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}

	drift := s.now().Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > s.tolerance {
		return ErrSignatureExpired
	}

	if !Verify(body, s.secret, ts, sig) {
		return ErrInvalidSignature
	}
	return nil
}
