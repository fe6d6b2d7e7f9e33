// Package maildate parses the Date headers seen in real mail, which are
// RFC 2822-ish at best. Bare US timezone abbreviations are resolved through
// a small override table; zoneless values are assumed Pacific, and every
// result is normalized to Pacific time.
package maildate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DisplayFormat is the human-facing layout: MM/DD/YYYY, hh:mm AM/PM TZ.
const DisplayFormat = "01/02/2006, 03:04 PM MST"

// tzOverrides resolves ambiguous US abbreviations to IANA zones.
var tzOverrides = map[string]string{
	"UTC": "UTC",
	"PST": "America/Los_Angeles",
	"PDT": "America/Los_Angeles",
	"MST": "America/Denver",
	"MDT": "America/Denver",
	"CST": "America/Chicago",
	"CDT": "America/Chicago",
	"EST": "America/New_York",
	"EDT": "America/New_York",
}

var (
	locMu    sync.Mutex
	locCache = map[string]*time.Location{}
)

func location(name string) *time.Location {
	locMu.Lock()
	defer locMu.Unlock()
	if loc, ok := locCache[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locCache[name] = loc
	return loc
}

// Pacific is the zone all parsed dates are normalized to.
func Pacific() *time.Location { return location("America/Los_Angeles") }

var commentRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// layouts without any zone designator, tried in a known location.
var nakedLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04",
	"2 Jan 2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// layouts carrying a numeric offset.
var zonedLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04 -0700",
	time.RFC3339,
	time.RFC1123Z,
}

// Parse interprets a Date header and returns a Pacific-time timestamp.
func Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(commentRe.ReplaceAllString(raw, ""))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	// A trailing abbreviation from the override table wins over anything
	// the stdlib would guess for it.
	fields := strings.Fields(s)
	last := fields[len(fields)-1]
	if zone, ok := tzOverrides[strings.ToUpper(last)]; ok {
		base := strings.Join(fields[:len(fields)-1], " ")
		loc := location(zone)
		for _, layout := range nakedLayouts {
			if t, err := time.ParseInLocation(layout, base, loc); err == nil {
				return t.In(Pacific()), nil
			}
		}
	}

	if t, err := mail.ParseDate(s); err == nil {
		return t.In(Pacific()), nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(Pacific()), nil
		}
	}
	// No zone designator at all: assume Pacific.
	for _, layout := range nakedLayouts {
		if t, err := time.ParseInLocation(layout, s, Pacific()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// Format renders a timestamp the way run logs and reports display dates.
func Format(t time.Time) string {
	return t.In(Pacific()).Format(DisplayFormat)
}

// FormatUnix renders a Unix timestamp in the display format.
func FormatUnix(ts float64) string {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return Format(time.Unix(sec, nsec))
}

// AgeDays returns the whole days elapsed between then and now, both taken
// in Pacific time.
func AgeDays(now, then time.Time) int {
	return int(now.In(Pacific()).Sub(then.In(Pacific())).Hours() / 24)
}
