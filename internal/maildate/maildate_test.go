package maildate

import (
	"testing"
	"time"
)

func TestParseZonedFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "rfc2822-offset",
			raw:  "Mon, 15 Jan 2024 10:30:00 -0800",
			want: time.Date(2024, time.January, 15, 10, 30, 0, 0, Pacific()),
		},
		{
			name: "pst-abbreviation",
			raw:  "Mon, 15 Jan 2024 10:30:00 PST",
			want: time.Date(2024, time.January, 15, 10, 30, 0, 0, Pacific()),
		},
		{
			name: "est-abbreviation",
			raw:  "Mon, 15 Jan 2024 13:30:00 EST",
			want: time.Date(2024, time.January, 15, 10, 30, 0, 0, Pacific()),
		},
		{
			name: "utc-comment-suffix",
			raw:  "Mon, 15 Jan 2024 18:30:00 +0000 (UTC)",
			want: time.Date(2024, time.January, 15, 10, 30, 0, 0, Pacific()),
		},
		{
			name: "zoneless-assumes-pacific",
			raw:  "15 Jan 2024 10:30:00",
			want: time.Date(2024, time.January, 15, 10, 30, 0, 0, Pacific()),
		},
		{
			name: "iso-date-only",
			raw:  "2024-01-15",
			want: time.Date(2024, time.January, 15, 0, 0, 0, 0, Pacific()),
		},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("Parse(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a date", "(only a comment)"} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("Parse(%q) should fail", raw)
		}
	}
}

func TestFormat(t *testing.T) {
	ts := time.Date(2024, time.January, 15, 18, 30, 0, 0, time.UTC)
	got := Format(ts)
	want := "01/15/2024, 10:30 AM PST"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatUnix(t *testing.T) {
	// 2024-01-15 18:30:00 UTC
	got := FormatUnix(1705343400)
	want := "01/15/2024, 10:30 AM PST"
	if got != want {
		t.Fatalf("FormatUnix = %q, want %q", got, want)
	}
}

func TestAgeDays(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		then time.Time
		want int
	}{
		{name: "exactly-30", then: now.Add(-30 * 24 * time.Hour), want: 30},
		{name: "just-under-30", then: now.Add(-30*24*time.Hour + time.Hour), want: 29},
		{name: "same-moment", then: now, want: 0},
		{name: "future", then: now.Add(24 * time.Hour), want: -1},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := AgeDays(now, tc.then); got != tc.want {
				t.Fatalf("AgeDays = %d, want %d", got, tc.want)
			}
		})
	}
}
