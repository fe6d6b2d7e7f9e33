package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testService(t *testing.T, contents string) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gmail_config.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	svc := NewService(path, slogDiscard())
	svc.Clock = func() time.Time { return time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

const messyConfig = `{
	"SENDER_TO_LABELS": {
		"News": [
			{"emails": ["Zeta@example.com", "alpha@example.com", "ALPHA@example.com"]}
		]
	},
	"EMAIL_LIST": ["alpha@example.com", "orphan@example.com"]
}`

func TestAnalyzeFindsEverything(t *testing.T) {
	svc := testService(t, messyConfig)
	doc, err := svc.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	findings := svc.Analyze(doc)
	if findings.Clean() {
		t.Fatalf("messy config should not be clean")
	}

	con := findings.Consistency
	if con.Identical {
		t.Fatalf("sets should differ")
	}
	if len(con.MissingInSender) != 1 || con.MissingInSender[0] != "orphan@example.com" {
		t.Fatalf("missing in sender = %v", con.MissingInSender)
	}
	// Zeta and ALPHA appear only under the label.
	if len(con.MissingInList) != 2 {
		t.Fatalf("missing in list = %v", con.MissingInList)
	}
	if labels := con.EmailToLabels["Zeta@example.com"]; len(labels) != 1 || labels[0] != "News" {
		t.Fatalf("email to labels = %v", labels)
	}

	if len(findings.SortingIssues) != 1 || !strings.Contains(findings.SortingIssues[0], "News[0]") {
		t.Fatalf("sorting issues = %v", findings.SortingIssues)
	}
	if len(findings.CaseIssues) != 1 {
		t.Fatalf("case issues = %v", findings.CaseIssues)
	}
	if len(findings.DuplicateIssues) != 1 {
		t.Fatalf("duplicate issues = %v", findings.DuplicateIssues)
	}
	dup := findings.DuplicateIssues[0]
	if dup.OriginalCount != 3 || dup.UniqueCount != 2 {
		t.Fatalf("duplicate counts = %+v", dup)
	}
	if len(dup.Duplicates) != 1 || dup.Duplicates[0] != "alpha@example.com" {
		t.Fatalf("duplicates = %v", dup.Duplicates)
	}
}

func TestFixesProduceCleanConfig(t *testing.T) {
	svc := testService(t, messyConfig)
	doc, err := svc.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	caseChanges := svc.FixCaseAndDuplicates(doc)
	if len(caseChanges) == 0 {
		t.Fatalf("expected case/duplicate changes")
	}
	sortChanges := svc.FixAlphabetization(doc)
	if len(sortChanges) == 0 {
		t.Fatalf("expected sorting changes")
	}

	findings := svc.Analyze(doc)
	if len(findings.SortingIssues) != 0 || len(findings.CaseIssues) != 0 || len(findings.DuplicateIssues) != 0 {
		t.Fatalf("fixes should clear list findings: %+v", findings)
	}
	// Consistency is a reporting concern, not something fixes touch.
	if findings.Consistency.Identical {
		t.Fatalf("fixes must not invent consistency")
	}

	emails := stringSlice(doc["SENDER_TO_LABELS"].(map[string]any)["News"].([]any)[0].(map[string]any)["emails"])
	want := []string{"alpha@example.com", "zeta@example.com"}
	if len(emails) != len(want) {
		t.Fatalf("emails = %v", emails)
	}
	for i := range want {
		if emails[i] != want[i] {
			t.Fatalf("emails = %v, want %v", emails, want)
		}
	}
}

func TestSaveCreatesBackup(t *testing.T) {
	svc := testService(t, messyConfig)
	doc, err := svc.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := svc.Save(doc, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	backup := svc.Path + ".backup_20240315_120000"
	if _, statErr := os.Stat(backup); statErr != nil {
		t.Fatalf("expected backup at %s: %v", backup, statErr)
	}

	var reloaded Document
	raw, err := os.ReadFile(svc.Path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if err := json.Unmarshal(raw, &reloaded); err != nil {
		t.Fatalf("saved config is not valid JSON: %v", err)
	}
}

func TestShouldFail(t *testing.T) {
	findings := Findings{
		Consistency:   Consistency{Identical: true},
		SortingIssues: []string{"EMAIL_LIST"},
	}
	if findings.ShouldFail(ParseFailOn("consistency,case")) {
		t.Fatalf("no matching findings, should pass")
	}
	if !findings.ShouldFail(ParseFailOn(" Sorting ,duplicates")) {
		t.Fatalf("sorting finding should fail")
	}
	if findings.ShouldFail(nil) {
		t.Fatalf("empty fail-on never fails")
	}
}

func TestCompareLabels(t *testing.T) {
	svc := testService(t, `{
		"SENDER_TO_LABELS": {
			"News": [{"emails": ["news@example.com"]}]
		},
		"EMAIL_LIST": ["news@example.com"]
	}`)
	doc, err := svc.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	labelsPath := filepath.Join(filepath.Dir(svc.Path), "gmail_labels_data.json")
	snapshot := `{
		"SENDER_TO_LABELS": {
			"News": [{"emails": ["news@example.com", "extra@example.com"]}],
			"Fresh": [{"emails": ["fresh@example.com"]}]
		}
	}`
	if err := os.WriteFile(labelsPath, []byte(snapshot), 0o600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	diff, err := svc.CompareLabels(labelsPath, doc)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if diff.Summary.LabelsInSource != 2 || diff.Summary.LabelsInTarget != 1 {
		t.Fatalf("summary = %+v", diff.Summary)
	}
	if diff.Summary.TotalMissingEmails != 2 {
		t.Fatalf("total missing = %d", diff.Summary.TotalMissingEmails)
	}

	news, ok := diff.MissingByName["News"]
	if !ok {
		t.Fatalf("News should be reported: it has a missing email")
	}
	if !news.LabelExistsInTarget || news.MissingCount != 1 || news.MissingEmails[0] != "extra@example.com" {
		t.Fatalf("news diff = %+v", news)
	}

	fresh, ok := diff.MissingByName["Fresh"]
	if !ok {
		t.Fatalf("unknown label should be reported")
	}
	if fresh.LabelExistsInTarget {
		t.Fatalf("Fresh does not exist in the target")
	}
}

func TestWriteReport(t *testing.T) {
	svc := testService(t, messyConfig)
	doc, err := svc.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	findings := svc.Analyze(doc)

	var b strings.Builder
	if err := svc.WriteReport(findings, &b); err != nil {
		t.Fatalf("write report: %v", err)
	}
	out := b.String()
	for _, want := range []string{
		"EMAIL STRUCTURE AND QUALITY REPORT",
		"orphan@example.com",
		"LISTS NOT ALPHABETIZED",
		"LISTS WITH DUPLICATES",
		"-fix-all",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}
