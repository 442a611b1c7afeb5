package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redteam-region722/TG-bot/internal/storage"
	"github.com/redteam-region722/TG-bot/pkg/logx"
)

var (
	// ErrDestinationDisabled blocks both scheduling and immediate posts;
	// distinct from a rate-limit conflict.
	ErrDestinationDisabled = errors.New("posting is disabled for this destination")
	// ErrNotAuthor: only the original author or a privileged operator may
	// withdraw a pending post.
	ErrNotAuthor = errors.New("only the author can cancel this post")
)

// Store is the slice of the persistence API the request path needs.
type Store interface {
	Destination(ctx context.Context, id string) (storage.Destination, error)
	PendingByDestination(ctx context.Context, destID string) ([]storage.ScheduledPost, error)
	LastPost(ctx context.Context, destID string) (*storage.PostRecord, error)
	InsertScheduled(ctx context.Context, p storage.ScheduledPost) (string, error)
	ScheduledByID(ctx context.Context, id string) (storage.ScheduledPost, error)
	Withdraw(ctx context.Context, id string) error
}

// Request is a validated schedule request: content plus a resolved instant.
type Request struct {
	DestinationID string
	AuthorID      int64
	Body          string
	PhotoID       string
	When          Resolution
}

type Service struct {
	store    Store
	resolver *Resolver
	log      logx.Logger

	// now is injected for tests.
	now func() time.Time

	// mu serializes conflict-check + insert, closing the read-then-write
	// race between concurrent schedule requests. Single-instance operation
	// is an operational constraint of this design.
	mu sync.Mutex
}

func New(store Store, resolver *Resolver, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, resolver: resolver, log: log, now: time.Now}
}

// ResolveTime parses operator time input against the current instant.
func (s *Service) ResolveTime(raw string) (Resolution, error) {
	return s.resolver.Resolve(raw, s.now())
}

// Resolver exposes the shared resolver for display formatting.
func (s *Service) Resolver() *Resolver { return s.resolver }

// CheckProposed validates a resolved instant against the destination's
// current reservations without inserting anything. It gives the operator
// early feedback; the authoritative check runs again inside Schedule.
func (s *Service) CheckProposed(ctx context.Context, destID string, res Resolution) error {
	dest, err := s.store.Destination(ctx, destID)
	if err != nil {
		return err
	}
	if !dest.PostingEnabled {
		return fmt.Errorf("destination %q: %w", dest.ID, ErrDestinationDisabled)
	}
	pending, err := s.store.PendingByDestination(ctx, dest.ID)
	if err != nil {
		return err
	}
	last, err := s.store.LastPost(ctx, dest.ID)
	if err != nil {
		return err
	}
	return CheckConflict(dest, res.At, res.Immediate, last, pending)
}

// Schedule enqueues a post after checking the destination flag and the
// min-gap conflict rule. Returns the stored post on success.
func (s *Service) Schedule(ctx context.Context, req Request) (storage.ScheduledPost, error) {
	dest, err := s.store.Destination(ctx, req.DestinationID)
	if err != nil {
		return storage.ScheduledPost{}, err
	}
	if !dest.PostingEnabled {
		return storage.ScheduledPost{}, fmt.Errorf("destination %q: %w", dest.ID, ErrDestinationDisabled)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.store.PendingByDestination(ctx, dest.ID)
	if err != nil {
		return storage.ScheduledPost{}, err
	}
	last, err := s.store.LastPost(ctx, dest.ID)
	if err != nil {
		return storage.ScheduledPost{}, err
	}
	if err := CheckConflict(dest, req.When.At, req.When.Immediate, last, pending); err != nil {
		return storage.ScheduledPost{}, err
	}

	p := storage.ScheduledPost{
		DestinationID: dest.ID,
		AuthorID:      req.AuthorID,
		Body:          req.Body,
		PhotoID:       req.PhotoID,
		ScheduledAt:   req.When.At.UTC(),
		Status:        storage.StatusPending,
		CreatedAt:     s.now().UTC(),
	}
	id, err := s.store.InsertScheduled(ctx, p)
	if err != nil {
		return storage.ScheduledPost{}, err
	}
	p.ID = id

	s.log.Info("post scheduled",
		logx.String("post", id),
		logx.String("dest", dest.ID),
		logx.Time("at", p.ScheduledAt),
		logx.Bool("immediate", req.When.Immediate))
	return p, nil
}

// Pending lists the destination's queued posts, ascending by target instant.
func (s *Service) Pending(ctx context.Context, destID string) ([]storage.ScheduledPost, error) {
	return s.store.PendingByDestination(ctx, destID)
}

// Withdraw cancels a pending post. Permitted for the original author or a
// privileged operator, any time before a dispatch tick claims the item;
// afterwards it fails with storage.ErrNotPending.
func (s *Service) Withdraw(ctx context.Context, id string, requester int64, privileged bool) error {
	p, err := s.store.ScheduledByID(ctx, id)
	if err != nil {
		return err
	}
	if p.AuthorID != requester && !privileged {
		return ErrNotAuthor
	}
	if err := s.store.Withdraw(ctx, id); err != nil {
		return err
	}
	s.log.Info("post withdrawn",
		logx.String("post", id),
		logx.String("dest", p.DestinationID),
		logx.Int64("by", requester))
	return nil
}
