package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/observability"
	"github.com/xraph/chatrelay/signature"
)

const maxResponseBody = 1024 // 1KB cap on response body storage

// Header names carried by every submission.
const (
	HeaderSubmissionID = "X-Relay-Submission-ID"
	HeaderMessageID    = "X-Relay-Message-ID"
)

// Config holds client configuration.
type Config struct {
	// URL is the delivery service endpoint.
	URL string

	// Timeout bounds each call.
	Timeout time.Duration

	// Signer signs submissions. Nil or secretless means unsigned.
	Signer *signature.Signer

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Client performs submissions to the delivery service. It is constructed
// once and shared by every session.
type Client struct {
	http   *http.Client
	config Config
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewClient creates a delivery client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: logger.With("component", "delivery"),
	}
}

// Send submits sub synchronously and returns the result.
func (c *Client) Send(ctx context.Context, sub *Submission) Result {
	res := Result{SubmissionID: sub.ID}
	e := sub.Envelope

	ctx, span := c.config.Tracer.StartSubmissionSpan(ctx, sub.ID.String(), e.ID.String(), e.UserName)
	defer func() {
		c.config.Tracer.EndSubmissionSpan(span, res.StatusCode, res.LatencyMs, res.Err)
		status := "ok"
		if res.Err != nil {
			status = "failed"
		}
		c.config.Metrics.RecordSubmission(status, float64(res.LatencyMs)/1000.0)
	}()

	body, err := envelope.EncodeTransport(e.Transport())
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrTransportFailure, err)
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		res.Err = fmt.Errorf("%w: create request: %w", ErrTransportFailure, err)
		return res
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ChatRelay/1.0")
	req.Header.Set(HeaderSubmissionID, sub.ID.String())
	req.Header.Set(HeaderMessageID, e.ID.String())
	c.config.Signer.SignRequest(req, body)

	start := time.Now()
	resp, err := c.http.Do(req) //nolint:gosec // G704: URL is the operator-configured delivery service.
	res.LatencyMs = int(time.Since(start).Milliseconds())

	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrTransportFailure, err)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		res.Err = fmt.Errorf("%w: read response: %w", ErrTransportFailure, readErr)
		return res
	}
	if len(respBody) == 0 {
		res.Err = fmt.Errorf("%w: %w", ErrTransportFailure, ErrEmptyResponse)
		return res
	}

	res.Response = string(respBody)
	return res
}

// Dispatch submits sub in the background and reports the result to done,
// which may be nil. The call is detached from ctx cancellation so closing a
// connection never aborts an in-flight submission; only ctx values are kept.
func (c *Client) Dispatch(ctx context.Context, sub *Submission, done func(Result)) {
	ctx = context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		res := c.Send(ctx, sub)
		if res.OK() {
			c.logger.DebugContext(ctx, "submitted",
				"submission_id", sub.ID, "uid", sub.Envelope.ID, "user", sub.Envelope.UserName,
				"status", res.StatusCode, "latency_ms", res.LatencyMs)
		} else {
			c.logger.ErrorContext(ctx, "submission failed",
				"submission_id", sub.ID, "uid", sub.Envelope.ID, "user", sub.Envelope.UserName,
				"latency_ms", res.LatencyMs, "error", res.Err)
		}

		if done != nil {
			done(res)
		}
	}()
}

// Wait blocks until every dispatched submission has finished or ctx is done.
func (c *Client) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
