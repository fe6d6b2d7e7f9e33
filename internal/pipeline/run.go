package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/inboxtriage/inboxtriage/internal/config"
)

// Run walks every configured category and sender, processing new mail
// since each sender's watermark. Watermarks in lastRuns are advanced in
// place for senders whose pass modified at least one message; the caller
// persists them. Returns whether any watermark moved.
func (s *Service) Run(ctx context.Context, cfg *config.Config, lastRuns map[string]float64) (bool, error) {
	categories := make([]string, 0, len(cfg.SenderToLabels))
	for category := range cfg.SenderToLabels {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	changed := false
	failed := 0
	for _, category := range categories {
		if _, ok := s.ExistingLabels[category]; !ok {
			s.Log.Warn("label does not exist in gmail, skipping category", "label", category)
			continue
		}
		for _, rule := range cfg.SenderToLabels[category] {
			for _, email := range rule.Emails {
				if err := ctx.Err(); err != nil {
					return changed, err
				}
				now := s.Clock()
				modified, err := s.ProcessByCriteria(ctx, email, lastRuns[email], ProcessInput{
					Label:           category,
					MarkRead:        rule.MarkRead,
					DeleteAfterDays: rule.DeleteAfterDays,
				})
				if err != nil {
					s.Log.Error("sender pass failed", "sender", email, "label", category, "error", err)
					failed++
					continue
				}
				if modified {
					lastRuns[email] = float64(now.Unix())
					changed = true
				}
			}
		}
	}

	if !s.DryRun {
		if err := s.Ledger.Save(); err != nil {
			s.Log.Error("failed to save processed id ledger", "error", err)
			failed++
		}
	}

	s.Log.Info("run complete",
		"modified", s.Counts.Modified, "skipped", s.Counts.Skipped,
		"deleted", s.Counts.Deleted, "failed_senders", failed, "dry_run", s.DryRun)
	if failed > 0 {
		return changed, fmt.Errorf("%d sender pass(es) failed", failed)
	}
	return changed, nil
}
