package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redteam-region722/TG-bot/internal/storage"
	"github.com/redteam-region722/TG-bot/pkg/logx"
)

type fakeStore struct {
	dests     map[string]storage.Destination
	pending   map[string][]storage.ScheduledPost
	last      map[string]*storage.PostRecord
	inserted  []storage.ScheduledPost
	withdrawn []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		dests:   map[string]storage.Destination{},
		pending: map[string][]storage.ScheduledPost{},
		last:    map[string]*storage.PostRecord{},
	}
}

func (f *fakeStore) Destination(_ context.Context, id string) (storage.Destination, error) {
	d, ok := f.dests[id]
	if !ok {
		return storage.Destination{}, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) PendingByDestination(_ context.Context, destID string) ([]storage.ScheduledPost, error) {
	return f.pending[destID], nil
}

func (f *fakeStore) LastPost(_ context.Context, destID string) (*storage.PostRecord, error) {
	return f.last[destID], nil
}

func (f *fakeStore) InsertScheduled(_ context.Context, p storage.ScheduledPost) (string, error) {
	p.ID = "gen-1"
	f.inserted = append(f.inserted, p)
	return p.ID, nil
}

func (f *fakeStore) ScheduledByID(_ context.Context, id string) (storage.ScheduledPost, error) {
	for _, bucket := range f.pending {
		for _, p := range bucket {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return storage.ScheduledPost{}, storage.ErrNotFound
}

func (f *fakeStore) Withdraw(_ context.Context, id string) error {
	f.withdrawn = append(f.withdrawn, id)
	return nil
}

func testService(st Store) *Service {
	s := New(st, NewResolver(time.UTC), logx.Nop())
	s.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestScheduleInsertsPending(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.dests["main"] = storage.Destination{ID: "main", MinGapSec: 1800, PostingEnabled: true}
	s := testService(st)

	at := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	p, err := s.Schedule(context.Background(), Request{
		DestinationID: "main",
		AuthorID:      7,
		Body:          "Hello",
		When:          Resolution{At: at, Display: "15:00 UTC"},
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if p.ID != "gen-1" || p.Status != storage.StatusPending {
		t.Fatalf("post = %+v", p)
	}
	if len(st.inserted) != 1 || !st.inserted[0].ScheduledAt.Equal(at) {
		t.Fatalf("inserted = %+v", st.inserted)
	}
}

func TestScheduleRejectsDisabledDestination(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.dests["main"] = storage.Destination{ID: "main", PostingEnabled: false}
	s := testService(st)

	_, err := s.Schedule(context.Background(), Request{
		DestinationID: "main",
		When:          Resolution{At: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)},
	})
	if !errors.Is(err, ErrDestinationDisabled) {
		t.Fatalf("err = %v, want ErrDestinationDisabled", err)
	}
	if len(st.inserted) != 0 {
		t.Fatal("nothing should be inserted")
	}
}

func TestScheduleRejectsConflict(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.dests["main"] = storage.Destination{ID: "main", MinGapSec: 1800, PostingEnabled: true}
	booked := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	st.pending["main"] = []storage.ScheduledPost{{ID: "busy", ScheduledAt: booked, Status: storage.StatusPending}}
	s := testService(st)

	_, err := s.Schedule(context.Background(), Request{
		DestinationID: "main",
		When:          Resolution{At: booked.Add(10 * time.Minute)},
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if want := booked.Add(30 * time.Minute); !ce.Suggested.Equal(want) {
		t.Fatalf("Suggested = %v, want %v", ce.Suggested, want)
	}

	// CheckProposed reports the same conflict without inserting.
	if err := s.CheckProposed(context.Background(), "main", Resolution{At: booked.Add(10 * time.Minute)}); !errors.As(err, &ce) {
		t.Fatalf("CheckProposed = %v, want *ConflictError", err)
	}
	if len(st.inserted) != 0 {
		t.Fatal("conflicting request must not insert")
	}
}

func TestScheduleImmediateSkipsConflict(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.dests["main"] = storage.Destination{ID: "main", MinGapSec: 1800, PostingEnabled: true}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st.last["main"] = &storage.PostRecord{ID: 1, PostedAt: now.Add(-time.Minute)}
	s := testService(st)

	_, err := s.Schedule(context.Background(), Request{
		DestinationID: "main",
		When:          Resolution{At: now, Immediate: true},
	})
	if err != nil {
		t.Fatalf("immediate request conflicted: %v", err)
	}
}

func TestWithdrawAuthorCheck(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.pending["main"] = []storage.ScheduledPost{{ID: "p1", DestinationID: "main", AuthorID: 7, Status: storage.StatusPending}}
	s := testService(st)
	ctx := context.Background()

	if err := s.Withdraw(ctx, "p1", 8, false); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("stranger withdraw = %v, want ErrNotAuthor", err)
	}
	if err := s.Withdraw(ctx, "p1", 7, false); err != nil {
		t.Fatalf("author withdraw: %v", err)
	}
	if err := s.Withdraw(ctx, "p1", 8, true); err != nil {
		t.Fatalf("privileged withdraw: %v", err)
	}
	if err := s.Withdraw(ctx, "ghost", 7, true); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing withdraw = %v, want ErrNotFound", err)
	}
	if len(st.withdrawn) != 2 {
		t.Fatalf("withdrawn = %v", st.withdrawn)
	}
}
