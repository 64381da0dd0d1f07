package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/xraph/chatrelay/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"uid":"x","message":"hi","userName":"bob","errorCode":null}`)
	secret := "whsec_testsecret123"
	timestamp := int64(1700000000)

	got := signature.Sign(payload, secret, timestamp)

	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	expected := "v1=" + hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"original":true}`)
	secret := "whsec_tampersecret"
	ts := int64(1700000002)
	sig := signature.Sign(payload, secret, ts)

	tests := []struct {
		name    string
		payload []byte
		secret  string
		ts      int64
		want    bool
	}{
		{"valid", payload, secret, ts, true},
		{"tampered payload", []byte(`{"original":false}`), secret, ts, false},
		{"wrong secret", payload, "whsec_wrong", ts, false},
		{"wrong timestamp", payload, secret, ts + 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signature.Verify(tt.payload, tt.secret, tt.ts, sig); got != tt.want {
				t.Fatalf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignatureFormat(t *testing.T) {
	sig := signature.Sign([]byte("test"), "secret", 123)

	if !strings.HasPrefix(sig, "v1=") {
		t.Errorf("signature should start with 'v1=', got %q", sig)
	}
	if len(sig) != 67 {
		t.Errorf("expected signature length 67, got %d", len(sig))
	}
}

func TestSignVerifyRequestRoundTrip(t *testing.T) {
	s := signature.NewSigner("whsec_roundtrip")
	body := []byte(`{"uid":"x"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", nil)
	s.SignRequest(req, body)

	if req.Header.Get(signature.HeaderSignature) == "" || req.Header.Get(signature.HeaderTimestamp) == "" {
		t.Fatal("SignRequest should set both headers")
	}
	if err := s.VerifyRequest(req, body); err != nil {
		t.Fatalf("VerifyRequest: %v", err)
	}
	if err := s.VerifyRequest(req, []byte(`{"uid":"y"}`)); !errors.Is(err, signature.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for altered body, got %v", err)
	}
}

func TestVerifyRequestMissingHeaders(t *testing.T) {
	s := signature.NewSigner("whsec_x")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", nil)

	if err := s.VerifyRequest(req, []byte("{}")); !errors.Is(err, signature.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRequestExpired(t *testing.T) {
	secret := "whsec_expired"
	s := signature.NewSigner(secret).WithTolerance(time.Minute)
	body := []byte(`{}`)

	old := time.Now().Add(-2 * time.Minute).Unix()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", nil)
	req.Header.Set(signature.HeaderSignature, signature.Sign(body, secret, old))
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(old, 10))

	if err := s.VerifyRequest(req, body); !errors.Is(err, signature.ErrSignatureExpired) {
		t.Fatalf("expected ErrSignatureExpired, got %v", err)
	}
}

func TestDisabledSigner(t *testing.T) {
	s := signature.NewSigner("")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message", nil)

	s.SignRequest(req, []byte("{}"))
	if req.Header.Get(signature.HeaderSignature) != "" {
		t.Fatal("a signer without a secret should not sign")
	}
	if err := s.VerifyRequest(req, []byte("{}")); err != nil {
		t.Fatalf("a signer without a secret should accept everything, got %v", err)
	}
}
