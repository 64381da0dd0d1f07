// Package pending tracks message submissions awaiting confirmation from the
// delivery service.
//
// Tracking is observational. The delivery service is trusted to echo every
// uid back, so a confirmation for an untracked uid is still honoured and an
// entry that times out produces a warning and a metric, never a send.
package pending

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/chatrelay/id"
)

// ErrNotFound is returned when no submission is pending for a uid.
var ErrNotFound = errors.New("chatrelay: pending submission not found")

// Entry records one outstanding submission.
type Entry struct {
	// UID is the envelope id echoed back by the delivery service.
	UID string `json:"uid"`

	// UserName is the originating identity.
	UserName string `json:"userName"`

	// SubmissionID identifies the outbound call.
	SubmissionID id.ID `json:"submissionId"`

	// SubmittedAt is when the submission was handed to the delivery client.
	SubmittedAt time.Time `json:"submittedAt"`
}

// Store defines the persistence contract for pending submissions.
type Store interface {
	// Track records an entry, replacing any entry with the same UID.
	Track(ctx context.Context, e *Entry) error

	// Get returns the entry for uid without removing it.
	Get(ctx context.Context, uid string) (*Entry, error)

	// Resolve removes and returns the entry for uid.
	Resolve(ctx context.Context, uid string) (*Entry, error)

	// Expire removes and returns up to limit entries submitted before the
	// given time, oldest first. Each entry is returned by at most one caller.
	Expire(ctx context.Context, before time.Time, limit int) ([]*Entry, error)

	// CountPending returns the number of tracked entries.
	CountPending(ctx context.Context) (int64, error)
}
