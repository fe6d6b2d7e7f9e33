package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ComparisonSummary heads the label-differences output.
type ComparisonSummary struct {
	SourceFile         string `json:"source_file"`
	TargetFile         string `json:"target_file"`
	LabelsInSource     int    `json:"total_labels_in_source"`
	LabelsInTarget     int    `json:"total_labels_in_target"`
	TotalMissingEmails int    `json:"total_missing_emails"`
}

// LabelDifference lists source emails a target label is missing.
type LabelDifference struct {
	LabelExistsInTarget bool     `json:"label_exists_in_target"`
	EmailsInSource      int      `json:"total_emails_in_source"`
	MissingCount        int      `json:"missing_emails_count"`
	MissingEmails       []string `json:"missing_emails"`
}

// LabelDifferences is the full reconciliation between an extracted
// labels snapshot and the live configuration.
type LabelDifferences struct {
	Summary       ComparisonSummary          `json:"comparison_summary"`
	MissingByName map[string]LabelDifference `json:"missing_emails_by_label"`
}

// CompareLabels reconciles the extracted labels document in labelsPath
// against the configuration: for each extracted label, which of its
// sender addresses appear nowhere in the config.
func (s *Service) CompareLabels(labelsPath string, doc Document) (LabelDifferences, error) {
	raw, err := os.ReadFile(labelsPath)
	if err != nil {
		return LabelDifferences{}, fmt.Errorf("read labels snapshot %s: %w", labelsPath, err)
	}
	var labelsDoc Document
	if decodeErr := json.Unmarshal(raw, &labelsDoc); decodeErr != nil {
		return LabelDifferences{}, fmt.Errorf("parse %s: %w", labelsPath, decodeErr)
	}

	configEmails := map[string]struct{}{}
	for _, e := range emailListOf(doc) {
		configEmails[e] = struct{}{}
	}
	visitSenderLists(doc, func(_ string, _ int, emails []string) []string {
		for _, e := range emails {
			configEmails[e] = struct{}{}
		}
		return nil
	})

	targetLabels, _ := doc["SENDER_TO_LABELS"].(map[string]any)
	sourceLabels, _ := labelsDoc["SENDER_TO_LABELS"].(map[string]any)

	out := LabelDifferences{
		Summary: ComparisonSummary{
			SourceFile:     filepath.Base(labelsPath),
			TargetFile:     filepath.Base(s.Path),
			LabelsInSource: len(sourceLabels),
			LabelsInTarget: len(targetLabels),
		},
		MissingByName: map[string]LabelDifference{},
	}

	visitSenderListsOf(sourceLabels, func(label string, emails map[string]struct{}) {
		var missing []string
		for e := range emails {
			if _, ok := configEmails[e]; !ok {
				missing = append(missing, e)
			}
		}
		sort.Strings(missing)
		_, exists := targetLabels[label]
		if len(missing) == 0 && exists {
			return
		}
		if missing == nil {
			missing = []string{}
		}
		out.MissingByName[label] = LabelDifference{
			LabelExistsInTarget: exists,
			EmailsInSource:      len(emails),
			MissingCount:        len(missing),
			MissingEmails:       missing,
		}
		out.Summary.TotalMissingEmails += len(missing)
	})
	return out, nil
}

// visitSenderListsOf collects the email set per label of one
// SENDER_TO_LABELS object and hands each to visit.
func visitSenderListsOf(senderMap map[string]any, visit func(label string, emails map[string]struct{})) {
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
		emails := map[string]struct{}{}
		for _, entry := range groups {
			group, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			for _, e := range stringSlice(group["emails"]) {
				emails[strings.TrimSpace(e)] = struct{}{}
			}
		}
		visit(label, emails)
	}
}

// WriteDifferences writes the reconciliation as indented JSON.
func WriteDifferences(diff LabelDifferences, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	raw, err := json.MarshalIndent(diff, "", "  ")
	if err != nil {
		return fmt.Errorf("encode differences: %w", err)
	}
	if writeErr := os.WriteFile(path, append(raw, '\n'), 0o600); writeErr != nil {
		return fmt.Errorf("write %s: %w", path, writeErr)
	}
	return nil
}
