package chatrelay

import "time"

// Config holds the configuration for a Relay instance.
type Config struct {
	// DeliveryURL is the external delivery service endpoint. Required.
	DeliveryURL string

	// RequestTimeout is the HTTP timeout per submission.
	RequestTimeout time.Duration

	// SigningSecret signs submissions and verifies confirmations.
	// Empty disables both.
	SigningSecret string

	// OkCode is the status token that means "delivered".
	OkCode string

	// ConfirmationTimeout is how long a submission may wait for its
	// confirmation. Set to 0 to disable expiry.
	ConfirmationTimeout time.Duration

	// SweepInterval is how often expired submissions are collected.
	SweepInterval time.Duration

	// SweepBatchSize is the maximum number of submissions expired per sweep.
	SweepBatchSize int

	// MaxPending caps the number of tracked submissions. 0 means unbounded.
	MaxPending int

	// MessageRateLimit caps message frames per identity per second.
	// 0 means unlimited.
	MessageRateLimit int

	// SendBuffer is the outbound queue length of each channel.
	SendBuffer int

	// ReadLimit caps the size of one inbound frame in bytes.
	ReadLimit int64

	// ShutdownTimeout is the maximum time Stop waits for in-flight
	// submissions. 0 defers entirely to the caller's context.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:      10 * time.Second,
		OkCode:              "200",
		ConfirmationTimeout: 2 * time.Minute,
		SweepInterval:       5 * time.Second,
		SweepBatchSize:      100,
		MaxPending:          10000,
		SendBuffer:          64,
		ReadLimit:           64 * 1024,
		ShutdownTimeout:     30 * time.Second,
	}
}
