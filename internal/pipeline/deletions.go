package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inboxtriage/inboxtriage/internal/config"
	"github.com/inboxtriage/inboxtriage/internal/gmail"
	"github.com/inboxtriage/inboxtriage/internal/state"
)

// ConfirmationProvider answers yes/no before a configured deletion is
// carried out. A nil provider means no confirmation is required.
type ConfirmationProvider func(prompt string) bool

// ProcessSelectedDeletions handles the explicitly configured deletion
// rules: messages named by ID or matched by a search query. Messages
// carrying a protected label are never touched; defer_until_read rules
// queue unread messages in the deferred map instead of deleting them.
func (s *Service) ProcessSelectedDeletions(
	ctx context.Context,
	deletionRules []config.DeletionRule,
	globalProtected []string,
	deferred map[gmail.MessageID]state.DeferredDeletion,
	confirm ConfirmationProvider,
) error {
	failed := 0
	for _, rule := range deletionRules {
		if !rule.Enabled {
			s.Log.Debug("deletion rule disabled, skipping", "rule", rule.Name)
			continue
		}
		protected := s.resolveProtected(rule.Name, globalProtected, rule.ProtectedLabels)

		ids := make([]gmail.MessageID, 0, len(rule.MessageIDs))
		for _, raw := range rule.MessageIDs {
			ids = append(ids, gmail.MessageID(raw))
		}
		if rule.Query != "" {
			found, err := s.fetchQuery(ctx, rule.Query)
			if err != nil {
				s.Log.Error("deletion rule query failed", "rule", rule.Name, "error", err)
				failed++
				continue
			}
			ids = append(ids, found...)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			meta, err := s.messageMeta(ctx, id)
			if errors.Is(err, gmail.ErrNotFound) {
				s.Log.Debug("message already gone", "rule", rule.Name, "id", id)
				delete(deferred, id)
				continue
			}
			if err != nil {
				s.Log.Error("failed to inspect deletion candidate", "rule", rule.Name, "id", id, "error", err)
				failed++
				continue
			}
			if label, ok := hasProtected(meta, protected); ok {
				s.Log.Info("message carries protected label, skipping",
					"rule", rule.Name, "id", id, "label", label)
				continue
			}
			if rule.DeferUntilRead && meta.IsUnread() {
				if _, queued := deferred[id]; !queued {
					deferred[id] = state.DeferredDeletion{
						RuleName:        rule.Name,
						ProtectedLabels: rule.ProtectedLabels,
						RequestedAt:     s.Clock().UTC().Format(time.RFC3339),
					}
					s.Log.Info("message unread, deletion deferred", "rule", rule.Name, "id", id)
				}
				continue
			}
			if s.deleteSelected(ctx, rule.Name, id, confirm) {
				delete(deferred, id)
			} else {
				failed++
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d selected deletion(s) failed", failed)
	}
	return nil
}

// ProcessDeferredDeletions revisits the defer-until-read queue: entries
// whose message has since been read are deleted and dropped from the
// queue, entries whose message vanished are dropped, and everything else
// stays queued for the next run.
func (s *Service) ProcessDeferredDeletions(
	ctx context.Context,
	deferred map[gmail.MessageID]state.DeferredDeletion,
	globalProtected []string,
	confirm ConfirmationProvider,
) error {
	ids := make([]gmail.MessageID, 0, len(deferred))
	for id := range deferred {
		ids = append(ids, id)
	}

	failed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := deferred[id]
		meta, err := s.messageMeta(ctx, id)
		if errors.Is(err, gmail.ErrNotFound) {
			s.Log.Info("deferred message already deleted elsewhere", "rule", entry.RuleName, "id", id)
			delete(deferred, id)
			continue
		}
		if err != nil {
			s.Log.Error("failed to inspect deferred message", "rule", entry.RuleName, "id", id, "error", err)
			failed++
			continue
		}
		if meta.IsUnread() {
			s.Log.Debug("deferred message still unread", "rule", entry.RuleName, "id", id)
			continue
		}
		protected := s.resolveProtected(entry.RuleName, globalProtected, entry.ProtectedLabels)
		if label, ok := hasProtected(meta, protected); ok {
			s.Log.Info("deferred message gained protected label, dropping from queue",
				"rule", entry.RuleName, "id", id, "label", label)
			delete(deferred, id)
			continue
		}
		if !s.DryRun && s.deleteSelected(ctx, entry.RuleName, id, confirm) {
			delete(deferred, id)
		} else if s.DryRun {
			s.Log.Info("dry run: would delete deferred message", "rule", entry.RuleName, "id", id)
		} else {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d deferred deletion(s) failed", failed)
	}
	return nil
}

// deleteSelected confirms and deletes one configured message. Returns
// true when the message no longer needs handling.
func (s *Service) deleteSelected(ctx context.Context, rule string, id gmail.MessageID, confirm ConfirmationProvider) bool {
	if confirm != nil && !confirm(fmt.Sprintf("Delete message %s (rule %q)?", id, rule)) {
		s.Log.Info("deletion declined", "rule", rule, "id", id)
		return false
	}
	if s.DryRun {
		s.Log.Info("dry run: would delete message", "rule", rule, "id", id)
		s.Counts.Deleted++
		return true
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		s.Log.Error("rate wait failed before delete", "rule", rule, "id", id, "error", err)
		return false
	}
	err := s.Client.Delete(ctx, id)
	switch {
	case err == nil:
		s.Log.Info("message deleted", "rule", rule, "id", id)
		s.Counts.Deleted++
		return true
	case errors.Is(err, gmail.ErrNotFound):
		s.Log.Debug("message already gone", "rule", rule, "id", id)
		return true
	case errors.Is(err, gmail.ErrPermissionDenied):
		s.Log.Warn("insufficient permissions to delete message", "rule", rule, "id", id)
		return false
	default:
		s.Log.Error("failed to delete message", "rule", rule, "id", id, "error", err)
		return false
	}
}

// resolveProtected maps rule-level and global protected label names to
// label IDs, warning once per unknown name.
func (s *Service) resolveProtected(rule string, global, ruleLevel []string) map[gmail.LabelID]string {
	out := map[gmail.LabelID]string{}
	for _, name := range append(append([]string{}, global...), ruleLevel...) {
		id, ok := s.ExistingLabels[name]
		if !ok {
			s.Log.Warn("protected label does not exist in gmail", "rule", rule, "label", name)
			continue
		}
		out[id] = name
	}
	return out
}

func hasProtected(meta gmail.MessageMeta, protected map[gmail.LabelID]string) (string, bool) {
	for _, id := range meta.LabelIDs {
		if name, ok := protected[id]; ok {
			return name, true
		}
	}
	return "", false
}
