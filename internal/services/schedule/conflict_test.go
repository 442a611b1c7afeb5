package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/redteam-region722/TG-bot/internal/storage"
)

func gapDest(gap time.Duration) storage.Destination {
	return storage.Destination{
		ID:             "main",
		ChatID:         -100,
		MinGapSec:      int64(gap / time.Second),
		PostingEnabled: true,
	}
}

func TestCheckConflictAgainstPending(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	dest := gapDest(30 * time.Minute)
	pending := []storage.ScheduledPost{
		{ID: "a", ScheduledAt: base},
		{ID: "b", ScheduledAt: base.Add(2 * time.Hour)},
	}

	tests := []struct {
		name      string
		proposed  time.Time
		conflict  bool
		suggested time.Time
	}{
		{name: "far from both", proposed: base.Add(time.Hour), conflict: false},
		{name: "too close after first", proposed: base.Add(10 * time.Minute), conflict: true, suggested: base.Add(30 * time.Minute)},
		{name: "too close before first", proposed: base.Add(-10 * time.Minute), conflict: true, suggested: base.Add(30 * time.Minute)},
		{name: "too close to second", proposed: base.Add(2*time.Hour + 20*time.Minute), conflict: true, suggested: base.Add(2*time.Hour + 30*time.Minute)},
		{name: "exactly at the gap boundary", proposed: base.Add(30 * time.Minute), conflict: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := CheckConflict(dest, tt.proposed, false, nil, pending)
			if !tt.conflict {
				if err != nil {
					t.Fatalf("unexpected conflict: %v", err)
				}
				return
			}
			var ce *ConflictError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConflictError", err)
			}
			if !ce.Suggested.Equal(tt.suggested) {
				t.Fatalf("Suggested = %v, want %v", ce.Suggested, tt.suggested)
			}
			if ce.Gap != 30*time.Minute {
				t.Fatalf("Gap = %v", ce.Gap)
			}
		})
	}
}

func TestCheckConflictAgainstLastDelivered(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	dest := gapDest(30 * time.Minute)
	last := &storage.PostRecord{ID: 1, PostedAt: base}

	err := CheckConflict(dest, base.Add(15*time.Minute), false, last, nil)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if want := base.Add(30 * time.Minute); !ce.Suggested.Equal(want) {
		t.Fatalf("Suggested = %v, want %v", ce.Suggested, want)
	}

	if err := CheckConflict(dest, base.Add(31*time.Minute), false, last, nil); err != nil {
		t.Fatalf("unexpected conflict past the gap: %v", err)
	}
}

func TestCheckConflictSuggestionUsesFirstCandidate(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	dest := gapDest(30 * time.Minute)
	// Both reserved slots are within the gap; the earlier pending slot wins.
	pending := []storage.ScheduledPost{
		{ID: "a", ScheduledAt: base},
		{ID: "b", ScheduledAt: base.Add(20 * time.Minute)},
	}

	err := CheckConflict(dest, base.Add(10*time.Minute), false, nil, pending)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if want := base.Add(30 * time.Minute); !ce.Suggested.Equal(want) {
		t.Fatalf("Suggested = %v, want %v (first conflicting candidate)", ce.Suggested, want)
	}
}

func TestCheckConflictExemptions(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	pending := []storage.ScheduledPost{{ID: "a", ScheduledAt: base}}
	last := &storage.PostRecord{ID: 1, PostedAt: base}

	// Immediate requests never conflict.
	if err := CheckConflict(gapDest(30*time.Minute), base, true, last, pending); err != nil {
		t.Fatalf("immediate request conflicted: %v", err)
	}
	// A zero gap disables the check entirely.
	if err := CheckConflict(gapDest(0), base, false, last, pending); err != nil {
		t.Fatalf("zero-gap destination conflicted: %v", err)
	}
}
