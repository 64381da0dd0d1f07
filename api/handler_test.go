package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xraph/chatrelay/api"
	"github.com/xraph/chatrelay/confirm"
	"github.com/xraph/chatrelay/delivery"
	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/pending"
	"github.com/xraph/chatrelay/registry"
	"github.com/xraph/chatrelay/session"
	"github.com/xraph/chatrelay/signature"
	"github.com/xraph/chatrelay/store/memory"
	"github.com/xraph/chatrelay/transport/ws"
)

// recordingSubmitter captures submissions instead of calling out.
type recordingSubmitter struct {
	mu   sync.Mutex
	subs []*delivery.Submission
}

func (s *recordingSubmitter) Dispatch(_ context.Context, sub *delivery.Submission, done func(delivery.Result)) {
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	if done != nil {
		done(delivery.Result{SubmissionID: sub.ID, StatusCode: http.StatusAccepted, Response: "ok"})
	}
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

type testEnv struct {
	srv       *httptest.Server
	reg       *registry.Registry
	tracker   *pending.Tracker
	submitter *recordingSubmitter
}

// testServer wires a Handler over a memory store and returns the test server.
func testServer(t *testing.T, signer *signature.Signer) *testEnv {
	t.Helper()

	codec, err := envelope.NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	st := memory.New()
	reg := registry.New()
	tracker := pending.NewTracker(st, pending.Config{}, nil)
	sub := &recordingSubmitter{}

	hub := session.NewHub(session.Config{
		Registry:  reg,
		Codec:     codec,
		Submitter: sub,
		Tracker:   tracker,
	}, nil)

	h := api.NewHandler(api.Config{
		Store:    st,
		Registry: reg,
		Codec:    codec,
		Hub:      hub,
		Upgrader: ws.NewUpgrader(ws.Config{}, nil, nil),
		Confirm:  confirm.New(confirm.Config{Registry: reg, Tracker: tracker}, nil),
		Signer:   signer,
		Tracker:  tracker,
	}, nil)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		hub.CloseAll("test done")
		srv.Close()
	})

	return &testEnv{srv: srv, reg: reg, tracker: tracker, submitter: sub}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/socket"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func (e *testEnv) post(t *testing.T, body string, signer *signature.Signer) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		e.srv.URL+"/api/v1/message", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	signer.SignRequest(req, []byte(body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readEnvelope(t *testing.T, c *websocket.Conn) envelope.Envelope {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test client
	var e envelope.Envelope
	if err := c.ReadJSON(&e); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return e
}

func join(t *testing.T, c *websocket.Conn, name string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"kind":"connection","userName":"`+name+`"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := readEnvelope(t, c)
	if e.Kind != envelope.KindConnection || e.UserName != name {
		t.Fatalf("expected own join announcement, got %+v", e)
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// --- Confirmation ---

func TestConfirmBroadcastsReceived(t *testing.T) {
	env := testServer(t, nil)

	alice := env.dial(t)
	join(t, alice, "alice")
	bob := env.dial(t)
	join(t, bob, "bob")
	readEnvelope(t, alice) // bob's join

	uid := uuid.NewString()
	resp := env.post(t, `{"uid":"`+uid+`","message":"hi","userName":"bob","errorCode":"200"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var ack envelope.Ack
	decodeBody(t, resp, &ack)
	if ack.Status != http.StatusOK || !strings.Contains(ack.Description, "hi") {
		t.Fatalf("unexpected ack %+v", ack)
	}

	for _, c := range []*websocket.Conn{alice, bob} {
		e := readEnvelope(t, c)
		if e.Kind != envelope.KindMessage || e.State != envelope.StateReceived || e.ID.String() != uid {
			t.Fatalf("unexpected envelope %+v", e)
		}
	}
}

func TestConfirmStatusMapping(t *testing.T) {
	env := testServer(t, nil)
	alice := env.dial(t)
	join(t, alice, "alice")

	tests := []struct {
		name     string
		body     string
		want     int
		wantDesc string
	}{
		{"bad uid", `{"uid":"nope","message":"hi","userName":"alice","errorCode":"200"}`, http.StatusBadRequest, "uid is not a valid identifier"},
		{"missing uid", `{"message":"hi","userName":"alice","errorCode":"200"}`, http.StatusBadRequest, "uid is not a valid identifier"},
		{"bad json", `{"uid":`, http.StatusBadRequest, "invalid transport envelope"},
		{"missing user", `{"uid":"` + uuid.NewString() + `","message":"hi"}`, http.StatusBadRequest, "invalid transport envelope"},
		{"empty user", `{"uid":"` + uuid.NewString() + `","message":"hi","userName":"","errorCode":"200"}`, http.StatusInternalServerError, "user not found in session"},
		{"unknown recipient", `{"uid":"` + uuid.NewString() + `","message":"hi","userName":"carol","errorCode":"200"}`, http.StatusInternalServerError, "user not found in session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, tt.body, nil)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
			var body map[string]any
			decodeBody(t, resp, &body)
			if body["error"] == nil || body["description"] != tt.wantDesc {
				t.Fatalf("expected %q with a reason, got %v", tt.wantDesc, body)
			}
		})
	}
}

func TestConfirmRequiresSignature(t *testing.T) {
	signer := signature.NewSigner("whsec_api")
	env := testServer(t, signer)
	alice := env.dial(t)
	join(t, alice, "alice")

	body := `{"uid":"` + uuid.NewString() + `","message":"hi","userName":"alice","errorCode":"300"}`

	if resp := env.post(t, body, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unsigned: expected 401, got %d", resp.StatusCode)
	}
	if resp := env.post(t, body, signature.NewSigner("whsec_other")); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", resp.StatusCode)
	}
	if resp := env.post(t, body, signer); resp.StatusCode != http.StatusOK {
		t.Fatalf("signed: expected 200, got %d", resp.StatusCode)
	}

	e := readEnvelope(t, alice)
	if e.State != envelope.StateError {
		t.Fatalf("expected error state, got %+v", e)
	}
}

// --- Socket ---

func TestSocketSubmitsMessages(t *testing.T) {
	env := testServer(t, nil)
	alice := env.dial(t)
	join(t, alice, "alice")

	uid := uuid.NewString()
	msg := `{"id":"` + uid + `","kind":"message","userName":"alice","message":"hello","state":"progress"}`
	if err := alice.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return env.submitter.count() == 1 })

	n, err := env.tracker.Pending(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Pending = %d, %v; want 1", n, err)
	}

	resp, err := http.Get(env.srv.URL + "/api/v1/pending/" + uid)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pending lookup: expected 200, got %d", resp.StatusCode)
	}
	var entry map[string]any
	decodeBody(t, resp, &entry)
	if entry["uid"] != uid || entry["userName"] != "alice" {
		t.Fatalf("unexpected pending entry %v", entry)
	}

	resp, err = http.Get(env.srv.URL + "/api/v1/pending/" + uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown uid: expected 404, got %d", resp.StatusCode)
	}
}

func TestSocketCloseReleasesIdentity(t *testing.T) {
	env := testServer(t, nil)
	alice := env.dial(t)
	join(t, alice, "alice")
	bob := env.dial(t)
	join(t, bob, "bob")
	readEnvelope(t, alice)

	bob.Close()

	e := readEnvelope(t, alice)
	if e.Kind != envelope.KindClose || e.UserName != "bob" {
		t.Fatalf("expected bob's close announcement, got %+v", e)
	}
	waitFor(t, func() bool { return env.reg.Len() == 1 })
}

// --- Stats and health ---

func TestStatsAndHealth(t *testing.T) {
	env := testServer(t, nil)
	alice := env.dial(t)
	join(t, alice, "alice")

	resp, err := http.Get(env.srv.URL + "/api/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var stats struct {
		Connections int   `json:"connections"`
		Sessions    int   `json:"sessions"`
		Pending     int64 `json:"pending"`
	}
	decodeBody(t, resp, &stats)
	if stats.Connections != 1 || stats.Sessions != 1 || stats.Pending != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	health, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", health.StatusCode)
	}
}

func TestProxyRouteAbsentWithoutSimulator(t *testing.T) {
	env := testServer(t, nil)

	resp, err := http.Post(env.srv.URL+"/api/v1/message/proxy", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
