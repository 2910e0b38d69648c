// Package datetime parses the two accepted event time formats and expands
// date-only values into offset-bearing timestamps.
//
// Accepted inputs:
//   - calendar date: 2025-03-01
//   - timestamp with a mandatory UTC offset: 2025-03-01T19:30+08:00,
//     2025-03-01T19:30:00+08:00, 2025-03-01T11:30:00Z, 2025-03-01T19+08, ...
package datetime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the only accepted date-only form.
	DateLayout = "2006-01-02"
	// CanonicalLayout is the minute-precision form produced by Normalize.
	CanonicalLayout = "2006-01-02T15:04-07:00"
	// CompactLayout is the calendar form, e.g. 20250301T000000+0800.
	CompactLayout = "20060102T150405-0700"
)

var (
	ErrInvalidDate      = errors.New("invalid date, want YYYY-MM-DD")
	ErrInvalidTimestamp = errors.New("invalid ISO datetime")
	ErrMissingOffset    = errors.New("datetime has no UTC offset")
	ErrInvalidOffset    = errors.New("invalid UTC offset")
)

// offsetLayouts covers hour, minute and second precision with +hh:mm,
// +hhmm and +hh offsets.
var offsetLayouts = []string{
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15Z07:00",
	"2006-01-02T15:04-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15-0700",
	"2006-01-02T15:04Z07",
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15Z07",
}

var naiveLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15",
}

// Kind tells Normalize which end of the span a date-only value is.
type Kind int

const (
	Start Kind = iota
	End
)

func (k Kind) String() string {
	if k == End {
		return "end"
	}
	return "start"
}

// IsTimestamp reports whether v carries a time component, i.e. contains
// the literal separator T.
func IsTimestamp(v string) bool {
	return strings.Contains(v, "T")
}

// ParseTimestamp parses an ISO-8601 style timestamp that must carry an offset.
func ParseTimestamp(v string) (time.Time, error) {
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return time.Time{}, fmt.Errorf("%q: %w", v, ErrMissingOffset)
		}
	}
	return time.Time{}, fmt.Errorf("%q: %w", v, ErrInvalidTimestamp)
}

// ParseDate parses YYYY-MM-DD at midnight in loc.
func ParseDate(v string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", v, ErrInvalidDate)
	}
	return t, nil
}

// ParseOffset turns "+08:00", "-0530", "Z" or "UTC" into a fixed zone.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "Z", "UTC", "+00:00", "-00:00", "+0000":
		return time.FixedZone("UTC+00:00", 0), nil
	}
	if len(s) < 3 || (s[0] != '+' && s[0] != '-') {
		return nil, fmt.Errorf("%q: %w", s, ErrInvalidOffset)
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	body := strings.ReplaceAll(s[1:], ":", "")
	if len(body) != 2 && len(body) != 4 {
		return nil, fmt.Errorf("%q: %w", s, ErrInvalidOffset)
	}
	hh, err := strconv.Atoi(body[:2])
	if err != nil || hh > 23 {
		return nil, fmt.Errorf("%q: %w", s, ErrInvalidOffset)
	}
	mm := 0
	if len(body) == 4 {
		mm, err = strconv.Atoi(body[2:])
		if err != nil || mm > 59 {
			return nil, fmt.Errorf("%q: %w", s, ErrInvalidOffset)
		}
	}
	secs := sign * (hh*3600 + mm*60)
	name := fmt.Sprintf("UTC%c%02d:%02d", s[0], hh, mm)
	return time.FixedZone(name, secs), nil
}

// Normalizer expands date-only values using a fixed home zone.
type Normalizer struct {
	home *time.Location
}

// NewNormalizer returns a Normalizer for the given home zone. A nil zone
// means UTC.
func NewNormalizer(home *time.Location) *Normalizer {
	if home == nil {
		home = time.UTC
	}
	return &Normalizer{home: home}
}

// Home returns the zone given to date-only values.
func (n *Normalizer) Home() *time.Location {
	return n.home
}

// Resolve parses v under either accepted format. Date-only starts land on
// 00:00 and date-only ends on 23:59 in the home zone.
func (n *Normalizer) Resolve(v string, kind Kind) (time.Time, error) {
	if IsTimestamp(v) {
		return ParseTimestamp(v)
	}
	d, err := ParseDate(v, n.home)
	if err != nil {
		return time.Time{}, err
	}
	if kind == End {
		d = d.Add(23*time.Hour + 59*time.Minute)
	}
	return d, nil
}

// Normalize returns v unchanged when it already has a time component and
// otherwise the canonical minute-precision timestamp in the home zone.
func (n *Normalizer) Normalize(v string, kind Kind) (string, error) {
	if IsTimestamp(v) {
		return v, nil
	}
	t, err := n.Resolve(v, kind)
	if err != nil {
		return "", fmt.Errorf("normalize %s: %w", kind, err)
	}
	return t.Format(CanonicalLayout), nil
}
