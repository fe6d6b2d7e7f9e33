package audit

import (
	"fmt"
	"strings"
)

// ShouldFail reports whether any of the requested finding categories are
// present. Recognized tokens: consistency, sorting, case, duplicates.
func (f Findings) ShouldFail(failOn []string) bool {
	flags := map[string]bool{
		"consistency": !f.Consistency.Identical,
		"sorting":     len(f.SortingIssues) > 0,
		"case":        len(f.CaseIssues) > 0,
		"duplicates":  len(f.DuplicateIssues) > 0,
	}
	for _, cond := range failOn {
		if flags[strings.TrimSpace(strings.ToLower(cond))] {
			return true
		}
	}
	return false
}

// HumanSummary renders a concise single-screen summary.
func (f Findings) HumanSummary() string {
	if f.Clean() {
		return "configuration clean: consistent, alphabetized, lowercase, unique\n"
	}
	b := &strings.Builder{}
	if !f.Consistency.Identical {
		fmt.Fprintf(b, "consistency: %d only in EMAIL_LIST, %d only in SENDER_TO_LABELS\n",
			len(f.Consistency.MissingInSender), len(f.Consistency.MissingInList))
	}
	if len(f.SortingIssues) > 0 {
		fmt.Fprintf(b, "not alphabetized: %s\n", strings.Join(f.SortingIssues, ", "))
	}
	if len(f.CaseIssues) > 0 {
		fmt.Fprintf(b, "case inconsistencies: %s\n", strings.Join(f.CaseIssues, ", "))
	}
	for _, issue := range f.DuplicateIssues {
		fmt.Fprintf(b, "duplicates in %s: %s\n", issue.Location, strings.Join(issue.Duplicates, ", "))
	}
	return b.String()
}

// ParseFailOn splits a comma separated list into canonical tokens.
func ParseFailOn(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
