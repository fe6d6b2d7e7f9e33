// Package audit validates and repairs the triage configuration document:
// EMAIL_LIST vs SENDER_TO_LABELS consistency, alphabetization, casing,
// and duplicate entries.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

// Service runs analyses and fixes against one configuration file.
type Service struct {
	Path   string
	Logger *slog.Logger
	Clock  func() time.Time
}

// NewService constructs a Service with sane defaults.
func NewService(path string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{Path: path, Logger: logger, Clock: time.Now}
}

// Document is the raw configuration JSON, kept generic so fixes preserve
// every key the pipeline itself does not model.
type Document map[string]any

// Load reads and decodes the configuration file.
func (s *Service) Load() (Document, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read configuration %s: %w", s.Path, err)
	}
	var doc Document
	if decodeErr := json.Unmarshal(raw, &doc); decodeErr != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, decodeErr)
	}
	return doc, nil
}

// Save rewrites the configuration file, first copying the current
// contents to a timestamped backup unless backup is false.
func (s *Service) Save(doc Document, backup bool) error {
	if backup {
		if current, err := os.ReadFile(s.Path); err == nil {
			stamp := s.Clock().Format("20060102_150405")
			backupPath := s.Path + ".backup_" + stamp
			if writeErr := os.WriteFile(backupPath, current, 0o600); writeErr != nil {
				return fmt.Errorf("write backup %s: %w", backupPath, writeErr)
			}
			s.Logger.Info("backup created", "path", backupPath)
		}
	}
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	if writeErr := os.WriteFile(s.Path, append(raw, '\n'), 0o600); writeErr != nil {
		return fmt.Errorf("write %s: %w", s.Path, writeErr)
	}
	s.Logger.Info("updated configuration saved", "path", s.Path)
	return nil
}

// Consistency compares the standalone EMAIL_LIST with the set of
// addresses reachable through SENDER_TO_LABELS.
type Consistency struct {
	EmailListCount    int                 `json:"email_list_count"`
	SenderLabelsCount int                 `json:"sender_labels_count"`
	MissingInSender   []string            `json:"missing_in_sender"`
	MissingInList     []string            `json:"missing_in_list"`
	Identical         bool                `json:"are_identical"`
	EmailToLabels     map[string][]string `json:"email_to_labels"`
}

// DuplicateIssue flags one list holding case-insensitive duplicates.
type DuplicateIssue struct {
	Location      string   `json:"location"`
	Duplicates    []string `json:"duplicates"`
	OriginalCount int      `json:"original_count"`
	UniqueCount   int      `json:"unique_count"`
}

// Findings is everything a full analysis turns up.
type Findings struct {
	Consistency     Consistency      `json:"consistency"`
	SortingIssues   []string         `json:"sorting_issues"`
	CaseIssues      []string         `json:"case_issues"`
	DuplicateIssues []DuplicateIssue `json:"duplicate_issues"`
}

// Clean reports whether the configuration needs no attention at all.
func (f Findings) Clean() bool {
	return f.Consistency.Identical &&
		len(f.SortingIssues) == 0 &&
		len(f.CaseIssues) == 0 &&
		len(f.DuplicateIssues) == 0
}

// Analyze runs every check against the document.
func (s *Service) Analyze(doc Document) Findings {
	return Findings{
		Consistency:     analyzeConsistency(doc),
		SortingIssues:   checkAlphabetization(doc),
		CaseIssues:      checkCase(doc),
		DuplicateIssues: checkDuplicates(doc),
	}
}

func analyzeConsistency(doc Document) Consistency {
	emailList := map[string]struct{}{}
	for _, e := range emailListOf(doc) {
		emailList[strings.TrimSpace(e)] = struct{}{}
	}

	senderEmails := map[string]struct{}{}
	emailToLabels := map[string][]string{}
	visitSenderLists(doc, func(label string, _ int, emails []string) []string {
		for _, e := range emails {
			clean := strings.TrimSpace(e)
			senderEmails[clean] = struct{}{}
			emailToLabels[clean] = append(emailToLabels[clean], label)
		}
		return nil
	})

	out := Consistency{
		EmailListCount:    len(emailList),
		SenderLabelsCount: len(senderEmails),
		MissingInSender:   []string{},
		MissingInList:     []string{},
		EmailToLabels:     emailToLabels,
	}
	for e := range emailList {
		if _, ok := senderEmails[e]; !ok {
			out.MissingInSender = append(out.MissingInSender, e)
		}
	}
	for e := range senderEmails {
		if _, ok := emailList[e]; !ok {
			out.MissingInList = append(out.MissingInList, e)
		}
	}
	sort.Strings(out.MissingInSender)
	sort.Strings(out.MissingInList)
	out.Identical = len(out.MissingInSender) == 0 && len(out.MissingInList) == 0
	return out
}

func checkAlphabetization(doc Document) []string {
	var issues []string
	if list := trimmed(emailListOf(doc)); !sortedFold(list) {
		issues = append(issues, "EMAIL_LIST")
	}
	visitSenderLists(doc, func(label string, index int, emails []string) []string {
		if !sortedFold(trimmed(emails)) {
			issues = append(issues, senderLocation(label, index))
		}
		return nil
	})
	return issues
}

func checkCase(doc Document) []string {
	var issues []string
	if list := emailListOf(doc); !allLower(list) {
		issues = append(issues, "EMAIL_LIST")
	}
	visitSenderLists(doc, func(label string, index int, emails []string) []string {
		if !allLower(emails) {
			issues = append(issues, senderLocation(label, index))
		}
		return nil
	})
	return issues
}

func checkDuplicates(doc Document) []DuplicateIssue {
	var issues []DuplicateIssue
	if issue, ok := duplicateIssue("EMAIL_LIST", emailListOf(doc)); ok {
		issues = append(issues, issue)
	}
	visitSenderLists(doc, func(label string, index int, emails []string) []string {
		if issue, ok := duplicateIssue(senderLocation(label, index), emails); ok {
			issues = append(issues, issue)
		}
		return nil
	})
	return issues
}

func duplicateIssue(location string, emails []string) (DuplicateIssue, bool) {
	seen := map[string]struct{}{}
	dups := map[string]struct{}{}
	for _, e := range emails {
		low := strings.ToLower(strings.TrimSpace(e))
		if _, ok := seen[low]; ok {
			dups[low] = struct{}{}
		}
		seen[low] = struct{}{}
	}
	if len(dups) == 0 {
		return DuplicateIssue{}, false
	}
	sorted := make([]string, 0, len(dups))
	for d := range dups {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)
	return DuplicateIssue{
		Location:      location,
		Duplicates:    sorted,
		OriginalCount: len(emails),
		UniqueCount:   len(seen),
	}, true
}

// visitSenderLists walks every emails list under SENDER_TO_LABELS in
// sorted label order. A non-nil return value from visit replaces the
// list in the document.
func visitSenderLists(doc Document, visit func(label string, index int, emails []string) []string) {
	senderMap, ok := doc["SENDER_TO_LABELS"].(map[string]any)
	if !ok {
		return
	}
	labels := make([]string, 0, len(senderMap))
	for label := range senderMap {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		groups, ok := senderMap[label].([]any)
		if !ok {
			continue
		}
		for i, entry := range groups {
			group, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			emails := stringSlice(group["emails"])
			if replacement := visit(label, i, emails); replacement != nil {
				group["emails"] = toAnySlice(replacement)
			}
		}
	}
}

func senderLocation(label string, index int) string {
	return fmt.Sprintf("SENDER_TO_LABELS.%s[%d].emails", label, index)
}

func emailListOf(doc Document) []string {
	return stringSlice(doc["EMAIL_LIST"])
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func trimmed(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func sortedFold(values []string) bool {
	for i := 1; i < len(values); i++ {
		if strings.ToLower(values[i-1]) > strings.ToLower(values[i]) {
			return false
		}
	}
	return true
}

func allLower(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != strings.ToLower(strings.TrimSpace(v)) {
			return false
		}
	}
	return true
}
