package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrBadFormat: the input matches none of the recognized time forms.
	ErrBadFormat = errors.New("unrecognized time format")
	// ErrPastTime: an explicit date+time resolves before the current instant.
	// The bare HH:MM form never produces this; it rolls to the next day.
	ErrPastTime = errors.New("time is in the past")
)

const (
	displayTime  = "15:04 MST"
	displayShort = "02/01 15:04 MST"
	displayFull  = "02/01/2006 15:04 MST"
)

var (
	dateTimeRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{4}))?\s+([01]?\d|2[0-3]):([0-5]\d)$`)
	bareTimeRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
)

// Resolution is a resolved operator time request.
type Resolution struct {
	// At is the absolute target instant, UTC.
	At time.Time
	// Display is the human-readable echo string in the display timezone.
	Display string
	// Immediate marks a literal "now" request, which is exempt from
	// conflict checking.
	Immediate bool
}

// Resolver parses operator-supplied time strings against one fixed display
// timezone. The current instant is always injected by the caller.
type Resolver struct {
	loc *time.Location
}

func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve accepts "now", "HH:MM", "DD/MM HH:MM", and "DD/MM/YYYY HH:MM".
//
// A bare HH:MM that is not strictly in the future today rolls forward exactly
// one calendar day. Explicit dates that resolve before now fail with
// ErrPastTime; a missing year defaults to the current year.
func (r *Resolver) Resolve(raw string, now time.Time) (Resolution, error) {
	in := strings.ToLower(strings.TrimSpace(raw))
	local := now.In(r.loc)

	if in == "now" {
		return Resolution{At: now.UTC(), Display: "now", Immediate: true}, nil
	}

	if m := dateTimeRe.FindStringSubmatch(in); m != nil {
		day, month := atoi(m[1]), atoi(m[2])
		year := local.Year()
		if m[3] != "" {
			year = atoi(m[3])
		}
		hour, minute := atoi(m[4]), atoi(m[5])

		t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, r.loc)
		// time.Date normalizes impossible dates (31/02 becomes March); treat
		// those as format errors, not silent shifts.
		if t.Day() != day || int(t.Month()) != month || t.Year() != year {
			return Resolution{}, fmt.Errorf("%w: no such date %02d/%02d/%04d", ErrBadFormat, day, month, year)
		}
		if t.Before(local) {
			return Resolution{}, fmt.Errorf("%w: %s", ErrPastTime, t.Format(displayFull))
		}
		return Resolution{At: t.UTC(), Display: t.Format(displayFull)}, nil
	}

	if m := bareTimeRe.FindStringSubmatch(in); m != nil {
		hour, minute := atoi(m[1]), atoi(m[2])
		t := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, r.loc)
		if !t.After(local) {
			t = t.AddDate(0, 0, 1)
		}
		disp := t.Format(displayTime)
		// Show the date when the time rolled into tomorrow.
		if t.Year() != local.Year() || t.YearDay() != local.YearDay() {
			disp = t.Format(displayShort)
		}
		return Resolution{At: t.UTC(), Display: disp}, nil
	}

	return Resolution{}, fmt.Errorf("%w: %q", ErrBadFormat, raw)
}

// FormatAt renders an instant in the display timezone, for echoing stored
// times back to operators.
func (r *Resolver) FormatAt(t time.Time) string {
	return t.In(r.loc).Format(displayShort)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
