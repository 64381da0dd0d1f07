package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/xraph/chatrelay/delivery"
	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/signature"
)

func newSubmission() *delivery.Submission {
	return delivery.NewSubmission(envelope.New(envelope.KindMessage, "bob", "hi", envelope.StateProgress))
}

func TestClientHappyPath(t *testing.T) {
	var receivedHeaders http.Header
	var received map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Error(err)
		}
		w.Write([]byte("Processing message...")) //nolint:errcheck // test server
	}))
	defer srv.Close()

	client := delivery.NewClient(delivery.Config{URL: srv.URL, Timeout: 5 * time.Second}, nil)
	sub := newSubmission()

	res := client.Send(context.Background(), sub)

	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if res.Response != "Processing message..." {
		t.Fatalf("unexpected response: %q", res.Response)
	}
	if res.SubmissionID.String() != sub.ID.String() {
		t.Fatal("result should carry the submission id")
	}

	if received["uid"] != sub.Envelope.ID.String() || received["message"] != "hi" || received["userName"] != "bob" {
		t.Fatalf("unexpected body %v", received)
	}
	if v, ok := received["errorCode"]; !ok || v != nil {
		t.Fatalf("errorCode should be present and null, got %v (present=%v)", v, ok)
	}

	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Fatal("missing Content-Type")
	}
	if receivedHeaders.Get(delivery.HeaderSubmissionID) != sub.ID.String() {
		t.Fatal("missing submission id header")
	}
	if receivedHeaders.Get(delivery.HeaderMessageID) != sub.Envelope.ID.String() {
		t.Fatal("missing message id header")
	}
	if receivedHeaders.Get(signature.HeaderSignature) != "" {
		t.Fatal("unsigned client should not send a signature")
	}
}

func TestClientSignsSubmissions(t *testing.T) {
	const secret = "whsec_delivery"
	var sig, ts string
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(signature.HeaderSignature)
		ts = r.Header.Get(signature.HeaderTimestamp)
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte("ok")) //nolint:errcheck // test server
	}))
	defer srv.Close()

	client := delivery.NewClient(delivery.Config{
		URL:    srv.URL,
		Signer: signature.NewSigner(secret),
	}, nil)

	if res := client.Send(context.Background(), newSubmission()); !res.OK() {
		t.Fatalf("Send: %v", res.Err)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		t.Fatalf("bad timestamp header %q", ts)
	}
	if !signature.Verify(body, secret, unix, sig) {
		t.Fatal("signature verification failed")
	}
}

func TestClientStatusIsNotInterpreted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error")) //nolint:errcheck // test server
	}))
	defer srv.Close()

	client := delivery.NewClient(delivery.Config{URL: srv.URL}, nil)
	res := client.Send(context.Background(), newSubmission())

	if !res.OK() {
		t.Fatalf("any response with a body is a successful submission, got %v", res.Err)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.StatusCode)
	}
}

func TestClientEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := delivery.NewClient(delivery.Config{URL: srv.URL}, nil)
	res := client.Send(context.Background(), newSubmission())

	if !errors.Is(res.Err, delivery.ErrTransportFailure) || !errors.Is(res.Err, delivery.ErrEmptyResponse) {
		t.Fatalf("expected empty response transport failure, got %v", res.Err)
	}
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("late")) //nolint:errcheck // test server
	}))
	defer srv.Close()

	client := delivery.NewClient(delivery.Config{URL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	res := client.Send(context.Background(), newSubmission())

	if res.StatusCode != 0 {
		t.Fatalf("expected status 0 on timeout, got %d", res.StatusCode)
	}
	if !errors.Is(res.Err, delivery.ErrTransportFailure) {
		t.Fatalf("expected ErrTransportFailure, got %v", res.Err)
	}
}

func TestClientConnectionRefused(t *testing.T) {
	client := delivery.NewClient(delivery.Config{URL: "http://127.0.0.1:1"}, nil)
	res := client.Send(context.Background(), newSubmission())

	if !errors.Is(res.Err, delivery.ErrTransportFailure) {
		t.Fatalf("expected ErrTransportFailure, got %v", res.Err)
	}
}

func TestDispatchIsAsyncAndSurvivesCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.Write([]byte("ok")) //nolint:errcheck // test server
	}))
	defer srv.Close()
	defer close(release)

	client := delivery.NewClient(delivery.Config{URL: srv.URL, Timeout: 5 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got *delivery.Result
	client.Dispatch(ctx, newSubmission(), func(r delivery.Result) {
		mu.Lock()
		got = &r
		mu.Unlock()
	})

	// Dispatch returned while the call is still blocked; cancelling the
	// caller's context must not abort it.
	cancel()
	release <- struct{}{}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := client.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("done callback was not invoked")
	}
	if !got.OK() {
		t.Fatalf("submission should survive caller cancellation, got %v", got.Err)
	}
}
