package rules

import (
	"testing"
)

func TestNormalizeLegacyString(t *testing.T) {
	got, err := Normalize([]any{" noreply@example.com "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(got))
	}
	rule := got[0]
	if rule.Name != "noreply@example.com" {
		t.Fatalf("name = %q", rule.Name)
	}
	if !rule.Actions.SkipAnalysis || !rule.Actions.SkipImport {
		t.Fatalf("legacy string must skip analysis and import")
	}
	if rule.Actions.HasPipelineActions() {
		t.Fatalf("legacy string must carry no pipeline actions")
	}
}

func TestNormalizeObjectVariants(t *testing.T) {
	raw := []any{
		map[string]any{
			"name":              "promo purge",
			"domains":           []any{"@Promos.example.com"},
			"delete_after_days": float64(7),
			"actions":           map[string]any{"mark_as_read": true},
		},
		map[string]any{
			"match":   map[string]any{"subject_contains": []any{"Unsubscribe"}},
			"archive": true,
		},
	}
	got, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	promo := got[0]
	if len(promo.Domains) != 1 || promo.Domains[0] != "promos.example.com" {
		t.Fatalf("domains = %v", promo.Domains)
	}
	if promo.Actions.DeleteAfterDays == nil || *promo.Actions.DeleteAfterDays != 7 {
		t.Fatalf("delete_after_days = %v", promo.Actions.DeleteAfterDays)
	}
	if !promo.Actions.MarkAsRead {
		t.Fatalf("nested actions.mark_as_read should be honored")
	}

	subj := got[1]
	if len(subj.SubjectContains) != 1 || subj.SubjectContains[0] != "Unsubscribe" {
		t.Fatalf("subject tokens = %v", subj.SubjectContains)
	}
	if !subj.Actions.Archive {
		t.Fatalf("top-level archive should be honored")
	}
	if subj.Name != "Unsubscribe" {
		t.Fatalf("default name = %q", subj.Name)
	}
}

func TestNormalizeRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  []any
	}{
		{name: "no-predicate", raw: []any{map[string]any{"mark_as_read": true}}},
		{name: "negative-days", raw: []any{map[string]any{
			"senders": []any{"a@b.com"}, "delete_after_days": float64(-1),
		}}},
		{name: "fractional-days", raw: []any{map[string]any{
			"senders": []any{"a@b.com"}, "delete_after_days": 1.5,
		}}},
		{name: "skip-flags-subject-only", raw: []any{map[string]any{
			"subject_contains": []any{"sale"}, "skip_analysis": true,
		}}},
		{name: "empty-string", raw: []any{"  "}},
		{name: "wrong-type", raw: []any{42.0}},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Normalize(tc.raw); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEngineMatchOrder(t *testing.T) {
	ruleList, err := Normalize([]any{
		map[string]any{"senders": []any{"exact@example.com"}, "mark_as_read": true},
		map[string]any{"domains": []any{"example.com"}, "archive": true},
		map[string]any{"subject_contains": []any{"weekly digest"}, "archive": true},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	engine := NewEngine(ruleList)

	matched := engine.Matches("Sender <EXACT@example.com>", "hello")
	if len(matched) != 2 {
		t.Fatalf("expected sender + domain match, got %d", len(matched))
	}
	if matched[0].Name != "exact@example.com" {
		t.Fatalf("declaration order broken: first match %q", matched[0].Name)
	}

	matched = engine.Matches("other@elsewhere.org", "Your Weekly Digest is here")
	if len(matched) != 1 || matched[0].Name != "weekly digest" {
		t.Fatalf("subject match failed: %v", matched)
	}

	if got := engine.Matches("other@elsewhere.org", ""); got != nil {
		t.Fatalf("empty subject must not match subject rules: %v", got)
	}
}

func TestMatchesSenderParsing(t *testing.T) {
	ruleList, err := Normalize([]any{
		map[string]any{"domains": []any{"example.com"}, "archive": true},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	rule := NewEngine(ruleList).Rules()[0]

	tests := []struct {
		sender string
		want   bool
	}{
		{"Display Name <user@example.com>", true},
		{"user@example.com", true},
		{"user@sub.example.com", false},
		{"user@example.org", false},
		{"not an address", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := rule.MatchesSender(tt.sender); got != tt.want {
			t.Fatalf("MatchesSender(%q) = %t, want %t", tt.sender, got, tt.want)
		}
	}
}

func TestSkipQueries(t *testing.T) {
	ruleList, err := Normalize([]any{
		"legacy@example.com",
		map[string]any{"domains": []any{"tracker.io"}, "skip_analysis": true},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	engine := NewEngine(ruleList)

	if !engine.ShouldSkipAnalysis("legacy@example.com") {
		t.Fatalf("legacy entry should skip analysis")
	}
	if !engine.ShouldSkipImport("legacy@example.com") {
		t.Fatalf("legacy entry should skip import")
	}
	if !engine.ShouldSkipAnalysis("bot@tracker.io") {
		t.Fatalf("domain skip_analysis should apply")
	}
	if engine.ShouldSkipImport("bot@tracker.io") {
		t.Fatalf("domain rule has no skip_import")
	}
}
