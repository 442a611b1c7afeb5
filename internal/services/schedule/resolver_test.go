package schedule

import (
	"errors"
	"testing"
	"time"
)

var testZone = time.FixedZone("IST", 5*3600+1800)

func TestResolveNow(t *testing.T) {
	t.Parallel()
	r := NewResolver(testZone)
	now := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC) // 12:00 IST

	for _, raw := range []string{"now", "NOW", "  Now  "} {
		res, err := r.Resolve(raw, now)
		if err != nil {
			t.Fatalf("Resolve(%q) error: %v", raw, err)
		}
		if !res.Immediate {
			t.Fatalf("Resolve(%q): Immediate = false", raw)
		}
		if !res.At.Equal(now) {
			t.Fatalf("Resolve(%q): At = %v, want %v", raw, res.At, now)
		}
	}
}

func TestResolveBareTime(t *testing.T) {
	t.Parallel()
	r := NewResolver(testZone)
	// 2026-03-10 12:00 in the display zone
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, testZone)

	tests := []struct {
		name    string
		raw     string
		want    time.Time
		display string
	}{
		{
			name:    "later today",
			raw:     "18:30",
			want:    time.Date(2026, 3, 10, 18, 30, 0, 0, testZone),
			display: "18:30 IST",
		},
		{
			name:    "earlier today rolls to tomorrow",
			raw:     "09:00",
			want:    time.Date(2026, 3, 11, 9, 0, 0, 0, testZone),
			display: "11/03 09:00 IST",
		},
		{
			name:    "exactly now rolls to tomorrow",
			raw:     "12:00",
			want:    time.Date(2026, 3, 11, 12, 0, 0, 0, testZone),
			display: "11/03 12:00 IST",
		},
		{
			name:    "single digit hour",
			raw:     "13:05",
			want:    time.Date(2026, 3, 10, 13, 5, 0, 0, testZone),
			display: "13:05 IST",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(tt.raw, now)
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", tt.raw, err)
			}
			if res.Immediate {
				t.Fatalf("Resolve(%q): unexpected Immediate", tt.raw)
			}
			if !res.At.Equal(tt.want) {
				t.Fatalf("At = %v, want %v", res.At.In(testZone), tt.want)
			}
			if res.Display != tt.display {
				t.Fatalf("Display = %q, want %q", res.Display, tt.display)
			}
		})
	}
}

func TestResolveExplicitDate(t *testing.T) {
	t.Parallel()
	r := NewResolver(testZone)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, testZone)

	res, err := r.Resolve("25/12 18:30", now)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := time.Date(2026, 12, 25, 18, 30, 0, 0, testZone)
	if !res.At.Equal(want) {
		t.Fatalf("At = %v, want %v (year should default to current)", res.At.In(testZone), want)
	}
	if res.Display != "25/12/2026 18:30 IST" {
		t.Fatalf("Display = %q", res.Display)
	}

	res, err = r.Resolve("01/01/2027 00:30", now)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want = time.Date(2027, 1, 1, 0, 30, 0, 0, testZone)
	if !res.At.Equal(want) {
		t.Fatalf("At = %v, want %v", res.At.In(testZone), want)
	}
}

func TestResolvePastDateFails(t *testing.T) {
	t.Parallel()
	r := NewResolver(testZone)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, testZone)

	// Year defaults to the current one, so January is already behind us.
	for _, raw := range []string{"01/01 10:00", "10/03/2026 11:59", "09/03/2020 10:00"} {
		_, err := r.Resolve(raw, now)
		if !errors.Is(err, ErrPastTime) {
			t.Fatalf("Resolve(%q) = %v, want ErrPastTime", raw, err)
		}
	}
}

func TestResolveBadFormat(t *testing.T) {
	t.Parallel()
	r := NewResolver(testZone)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, testZone)

	bad := []string{
		"",
		"tomorrow",
		"24:00",
		"18:61",
		"1830",
		"25-12 18:30",
		"31/02/2026 10:00", // no such calendar date
		"25/13 10:00",
		"18:30 extra",
	}
	for _, raw := range bad {
		if _, err := r.Resolve(raw, now); !errors.Is(err, ErrBadFormat) {
			t.Fatalf("Resolve(%q) = %v, want ErrBadFormat", raw, err)
		}
	}
}
