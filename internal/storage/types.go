package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a destination or scheduled post does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotPending is returned by state transitions whose subject is no
	// longer in the state the transition requires (already sent, cancelled,
	// or claimed by a dispatch tick).
	ErrNotPending = errors.New("post is not pending")
)

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

type PostStatus string

const (
	StatusPending   PostStatus = "pending"
	StatusSending   PostStatus = "sending"
	StatusSent      PostStatus = "sent"
	StatusCancelled PostStatus = "cancelled"
)

// Terminal reports whether no further transitions are valid from s.
func (s PostStatus) Terminal() bool {
	return s == StatusSent || s == StatusCancelled
}

// Destination is a configured post target mapping to one Telegram channel.
// The chat binding and name come from config; footer, buttons, minimum gap,
// and the posting flag are storage-owned.
type Destination struct {
	ID             string
	Name           string
	ChatID         int64
	Footer         string
	Button1Label   string
	Button1URL     string
	Button2Label   string
	Button2URL     string
	MinGapSec      int64
	PostingEnabled bool
}

func (d Destination) MinGap() time.Duration {
	return time.Duration(d.MinGapSec) * time.Second
}

// ScheduledPost is a post awaiting a future delivery instant.
// ScheduledAt and CreatedAt are UTC.
type ScheduledPost struct {
	ID            string
	DestinationID string
	AuthorID      int64
	Body          string
	PhotoID       string
	ScheduledAt   time.Time
	Status        PostStatus
	CreatedAt     time.Time
}

// PostRecord is the immutable log entry of a delivered post.
type PostRecord struct {
	ID            int64
	DestinationID string
	AuthorID      int64
	Body          string
	PhotoID       string
	ChatID        int64
	MessageID     int
	PostedAt      time.Time
}

// Store is the narrow persistence API used by the schedule and dispatch
// services. All times cross this boundary in UTC.
type Store interface {
	Close() error

	Destination(ctx context.Context, id string) (Destination, error)
	Destinations(ctx context.Context) ([]Destination, error)
	// SeedDestination inserts the destination with defaults if absent and
	// refreshes its name and chat binding from config either way.
	SeedDestination(ctx context.Context, id, name string, chatID int64) error

	InsertScheduled(ctx context.Context, p ScheduledPost) (string, error)
	ScheduledByID(ctx context.Context, id string) (ScheduledPost, error)
	// PendingByDestination lists non-terminal posts for the destination,
	// ascending by scheduled instant. Claimed ("sending") posts are included:
	// their slots are still reserved.
	PendingByDestination(ctx context.Context, destID string) ([]ScheduledPost, error)
	// Ready lists pending posts due at or before now, ascending by scheduled
	// instant across all destinations.
	Ready(ctx context.Context, now time.Time) ([]ScheduledPost, error)

	// Claim atomically moves pending -> sending. ErrNotPending if the post
	// was withdrawn, already claimed, or already sent.
	Claim(ctx context.Context, id string) error
	// Release moves sending -> pending so the next tick retries.
	Release(ctx context.Context, id string) error
	// ReleaseAllClaims sweeps orphaned claims back to pending (startup only).
	ReleaseAllClaims(ctx context.Context) (int64, error)
	// Withdraw moves pending -> cancelled. ErrNotPending once a tick has
	// claimed the post or it reached a terminal state.
	Withdraw(ctx context.Context, id string) error
	// CommitDelivery moves sending -> sent and appends the PostRecord in one
	// transaction; this is the single point of truth for "delivered".
	CommitDelivery(ctx context.Context, id string, rec PostRecord) error

	// LastPost returns the most recent delivered post for the destination,
	// or nil if none exists.
	LastPost(ctx context.Context, destID string) (*PostRecord, error)
}
