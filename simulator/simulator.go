// Package simulator is a stand-in for the external delivery service.
//
// It accepts a submission, acknowledges it at once, and after a delay posts
// the same transport envelope back to a confirmation URL with a status token
// chosen by a StatusFunc. It is meant for local runs and end-to-end tests.
package simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/signature"
)

// maxBody caps accepted submission bodies.
const maxBody = 64 * 1024

// StatusFunc picks the status token reported for a submission.
type StatusFunc func(t *envelope.Transport) string

// Fixed always reports code.
func Fixed(code string) StatusFunc {
	return func(*envelope.Transport) string { return code }
}

// Config holds simulator settings.
type Config struct {
	// CallbackURL is the confirmation endpoint to report to.
	CallbackURL string

	// Delay is how long to wait before reporting.
	Delay time.Duration

	// Status picks the reported token. Defaults to Fixed(envelope.DefaultOkCode).
	Status StatusFunc

	// Signer verifies submissions and signs callbacks. Optional.
	Signer *signature.Signer

	// Timeout bounds each callback.
	Timeout time.Duration
}

// Simulator is an http.Handler accepting submissions.
type Simulator struct {
	codec  *envelope.Codec
	http   *http.Client
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New creates a simulator.
func New(cfg Config, codec *envelope.Codec, logger *slog.Logger) (*Simulator, error) {
	if cfg.CallbackURL == "" {
		return nil, errors.New("chatrelay: simulator callback URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Status == nil {
		cfg.Status = Fixed(envelope.DefaultOkCode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Simulator{
		codec:  codec,
		http:   &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: logger.With("component", "simulator"),
		stop:   make(chan struct{}),
	}, nil
}

// ServeHTTP accepts one submission.
func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if err := s.config.Signer.VerifyRequest(r, body); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	t, err := s.codec.DecodeTransport(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if t.UID == "" {
		http.Error(w, "uid is required", http.StatusBadRequest)
		return
	}

	if !s.schedule() {
		http.Error(w, "simulator closed", http.StatusServiceUnavailable)
		return
	}

	code := s.config.Status(t)
	s.logger.DebugContext(r.Context(), "submission accepted", "uid", t.UID, "user", t.UserName, "code", code)
	go s.report(*t, code)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted for delivery") //nolint:errcheck // best effort
}

// schedule reserves a callback slot. It fails once Close has been called, so
// Wait never races a late submission.
func (s *Simulator) schedule() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// report posts the confirmation once the delay has passed.
func (s *Simulator) report(t envelope.Transport, code string) {
	defer s.wg.Done()

	timer := time.NewTimer(s.config.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.stop:
		return
	}

	if err := s.confirm(t.WithCode(code)); err != nil {
		s.logger.Warn("confirmation callback failed", "uid", t.UID, "user", t.UserName, "error", err)
		return
	}
	s.logger.Debug("confirmation reported", "uid", t.UID, "user", t.UserName, "code", code)
}

func (s *Simulator) confirm(t envelope.Transport) error {
	body, err := envelope.EncodeTransport(t)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, s.config.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.config.Signer.SignRequest(req, body)

	resp, err := s.http.Do(req) //nolint:gosec // G704: URL is the operator-configured confirmation endpoint.
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // best effort
		return fmt.Errorf("confirmation rejected: %d %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// Close abandons callbacks that are still waiting for their delay and
// refuses further submissions with 503.
func (s *Simulator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
}

// Wait blocks until every scheduled callback has finished or ctx is done.
func (s *Simulator) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
