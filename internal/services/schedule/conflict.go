package schedule

import (
	"fmt"
	"time"

	"github.com/redteam-region722/TG-bot/internal/storage"
)

// ConflictError reports a min-gap collision. Suggested is the first
// conflicting candidate's instant plus the destination's minimum gap.
type ConflictError struct {
	Suggested time.Time
	Gap       time.Duration
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time slot conflicts with an existing post (min gap %s); next available %s",
		e.Gap, e.Suggested.UTC().Format(time.RFC3339))
}

// CheckConflict validates a proposed instant against the destination's
// reserved slots: every non-terminal scheduled post plus the most recent
// delivered post. Literal-now requests are exempt: the delivery happens at
// request time, so no future slot is being reserved.
//
// The suggestion comes from the first conflicting candidate, not from a
// search for the earliest free slot; it may itself collide with another
// candidate, but the next submission is validated again, so the gap
// invariant always holds for accepted requests.
func CheckConflict(dest storage.Destination, proposed time.Time, immediate bool, last *storage.PostRecord, pending []storage.ScheduledPost) error {
	if immediate {
		return nil
	}
	gap := dest.MinGap()
	if gap <= 0 {
		return nil
	}
	for _, p := range pending {
		if absDiff(proposed, p.ScheduledAt) < gap {
			return &ConflictError{Suggested: p.ScheduledAt.Add(gap), Gap: gap}
		}
	}
	if last != nil {
		if absDiff(proposed, last.PostedAt) < gap {
			return &ConflictError{Suggested: last.PostedAt.Add(gap), Gap: gap}
		}
	}
	return nil
}

func absDiff(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d
}
