package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
	"github.com/inboxtriage/inboxtriage/internal/maildate"
	"github.com/inboxtriage/inboxtriage/internal/rules"
)

// ProcessInput carries the sender-rule context a message is judged under.
type ProcessInput struct {
	ID              gmail.MessageID
	Label           string
	MarkRead        bool
	DeleteAfterDays *int
}

// ProcessEmail runs the per-message state machine: resolve details, check
// ignored rules, check age-based deletion, and otherwise label the
// message. Returns true when the message produced an actionable outcome.
func (s *Service) ProcessEmail(ctx context.Context, in ProcessInput) bool {
	details, ok := s.messageDetails(ctx, in.ID)
	if !ok {
		s.Log.Debug("missing details, skipping", "id", in.ID)
		return false
	}

	if _, seen := s.runSeen[in.ID]; seen {
		s.Log.Debug("already processed in this run, skipping", "id", in.ID)
		return false
	}

	parsedDate, dateErr := maildate.Parse(details.RawDate)

	// Ignored rules are evaluated in declaration order; the first rule
	// carrying pipeline actions is the authoritative outcome.
	if s.Engine != nil {
		for _, rule := range s.Engine.Matches(details.Sender, details.Subject) {
			if !rule.Actions.HasPipelineActions() {
				s.Log.Debug("ignored rule matched without pipeline actions",
					"id", in.ID, "rule", rule.Name)
				continue
			}
			return s.applyIgnoredRule(ctx, in.ID, details, rule, parsedDate, dateErr)
		}
	}

	// Sender-rule age-based deletion.
	if in.DeleteAfterDays != nil {
		deleted, handled := s.maybeDelete(ctx, in.ID, details, *in.DeleteAfterDays, parsedDate, dateErr, "sender rule")
		if handled {
			if deleted {
				s.runSeen[in.ID] = struct{}{}
			}
			return deleted
		}
	}

	return s.applyLabel(ctx, in, details)
}

// applyIgnoredRule carries out the first matching ignored rule with
// pipeline actions. Deletion is exclusive: once a message is deleted no
// label/mark-read/archive action follows.
func (s *Service) applyIgnoredRule(
	ctx context.Context,
	id gmail.MessageID,
	details Details,
	rule *rules.Rule,
	parsedDate time.Time,
	dateErr error,
) bool {
	if rule.Actions.DeleteAfterDays != nil {
		deleted, handled := s.maybeDelete(
			ctx, id, details, *rule.Actions.DeleteAfterDays, parsedDate, dateErr, rule.Name)
		if handled {
			if deleted {
				s.runSeen[id] = struct{}{}
				if !s.DryRun {
					s.Ledger.Add(id)
				}
			}
			return deleted
		}
		// Not old enough (or unparseable date): the rule's remaining
		// actions still apply.
	}

	ops := gmail.ModifyOps{}
	var applied []string
	for _, name := range rule.Actions.ApplyLabels {
		labelID, ok := s.ExistingLabels[name]
		if !ok {
			s.Log.Warn("ignored rule references unknown label", "rule", rule.Name, "label", name)
			continue
		}
		ops.AddLabels = append(ops.AddLabels, labelID)
		applied = append(applied, name)
	}
	if rule.Actions.Archive {
		ops.RemoveLabels = append(ops.RemoveLabels, gmail.LabelInbox)
	}
	if rule.Actions.MarkAsRead {
		ops.RemoveLabels = append(ops.RemoveLabels, gmail.LabelUnread)
	}

	if len(ops.AddLabels) == 0 && len(ops.RemoveLabels) == 0 {
		s.Log.Debug("ignored rule resolved to no effective actions", "id", id, "rule", rule.Name)
		s.runSeen[id] = struct{}{}
		return true
	}

	if s.DryRun {
		s.Log.Info("dry run: would apply ignored rule",
			"id", id, "rule", rule.Name, "sender", details.Sender,
			"labels", strings.Join(applied, ","),
			"archive", rule.Actions.Archive, "mark_read", rule.Actions.MarkAsRead)
		s.runSeen[id] = struct{}{}
		s.Counts.Modified++
		return true
	}

	if err := s.modify(ctx, id, ops); err != nil {
		s.Log.Error("failed to apply ignored rule", "id", id, "rule", rule.Name, "error", err)
		return false
	}
	s.Log.Info("applied ignored rule",
		"id", id, "rule", rule.Name, "sender", details.Sender,
		"labels", strings.Join(applied, ","),
		"archive", rule.Actions.Archive, "mark_read", rule.Actions.MarkAsRead)
	s.runSeen[id] = struct{}{}
	s.Ledger.Add(id)
	s.Counts.Modified++
	return true
}

// maybeDelete applies delete-after-days semantics: 0 deletes now, a
// positive threshold deletes at age >= threshold in whole Pacific days,
// and an unparseable date never deletes. The second return value reports
// whether a deletion was attempted (or would be, in dry-run).
func (s *Service) maybeDelete(
	ctx context.Context,
	id gmail.MessageID,
	details Details,
	threshold int,
	parsedDate time.Time,
	dateErr error,
	source string,
) (deleted, handled bool) {
	if threshold > 0 {
		if dateErr != nil {
			s.Log.Warn("unparseable date, skipping deletion",
				"id", id, "source", source, "date", details.RawDate)
			return false, false
		}
		age := maildate.AgeDays(s.Clock(), parsedDate)
		if age < threshold {
			s.Log.Debug("message too recent to delete",
				"id", id, "source", source, "age_days", age, "threshold", threshold)
			return false, false
		}
	}

	s.Log.Info("deleting message",
		"id", id, "source", source, "sender", details.Sender,
		"subject", details.Subject, "date", details.FormattedDate, "threshold", threshold)
	if s.DryRun {
		s.Log.Info("dry run: message not deleted", "id", id)
		s.Counts.Deleted++
		return true, true
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		s.Log.Error("rate wait failed before delete", "id", id, "error", err)
		return false, true
	}
	if err := s.Client.Delete(ctx, id); err != nil {
		if errors.Is(err, gmail.ErrPermissionDenied) {
			// The message keeps whatever labels it already has; broader
			// Gmail permissions are needed to delete.
			s.Log.Warn("insufficient permissions to delete message", "id", id, "source", source)
			s.Counts.Deleted++
			return true, true
		}
		s.Log.Error("failed to delete message", "id", id, "error", err)
		return false, true
	}
	s.Log.Info("message deleted", "id", id)
	s.Counts.Deleted++
	return true, true
}

// applyLabel is the ordinary outcome: add the category label, remove the
// message from the inbox, and optionally mark it read, all in one modify.
func (s *Service) applyLabel(ctx context.Context, in ProcessInput, details Details) bool {
	meta, err := s.messageMeta(ctx, in.ID)
	if err != nil {
		s.Log.Error("failed to read current labels", "id", in.ID, "error", err)
		return false
	}

	labelID, ok := s.ExistingLabels[in.Label]
	if !ok {
		s.Log.Warn("target label does not exist", "label", in.Label)
		return false
	}

	if meta.HasLabel(labelID) {
		// Already labeled in a previous run; nothing to modify.
		s.runSeen[in.ID] = struct{}{}
		return true
	}

	if s.DryRun {
		s.Log.Info("dry run: would label message",
			"id", in.ID, "sender", details.Sender, "label", in.Label, "mark_read", in.MarkRead)
		s.runSeen[in.ID] = struct{}{}
		s.Counts.Modified++
		return true
	}

	ops := gmail.ModifyOps{
		AddLabels:    []gmail.LabelID{labelID},
		RemoveLabels: []gmail.LabelID{gmail.LabelInbox},
	}
	if in.MarkRead {
		ops.RemoveLabels = append(ops.RemoveLabels, gmail.LabelUnread)
	}
	if err := s.modify(ctx, in.ID, ops); err != nil {
		s.Log.Error("failed to modify message", "id", in.ID, "error", err)
		return false
	}
	s.Log.Info("message labeled",
		"id", in.ID, "sender", details.Sender, "date", details.FormattedDate,
		"subject", details.Subject, "label", in.Label, "mark_read", in.MarkRead)
	s.runSeen[in.ID] = struct{}{}
	s.Ledger.Add(in.ID)
	s.Counts.Modified++
	return true
}

// modify issues one messages.modify call, translating the precondition
// skip signal into a logged no-op.
func (s *Service) modify(ctx context.Context, id gmail.MessageID, ops gmail.ModifyOps) error {
	if err := s.Limiter.Wait(ctx); err != nil {
		return err
	}
	err := s.Client.Modify(ctx, id, ops)
	if errors.Is(err, gmail.ErrPrecondition) {
		s.Log.Warn("precondition check failed, skipping modify", "id", id)
		return err
	}
	return err
}

// ProcessByCriteria fetches all inbox mail from one sender newer than its
// last-run watermark and runs the pipeline over each message. Returns
// true when at least one message was modified, which is what advances the
// sender's watermark.
func (s *Service) ProcessByCriteria(
	ctx context.Context,
	sender string,
	lastRun float64,
	in ProcessInput,
) (bool, error) {
	query := fmt.Sprintf("from:%s label:inbox after:%d", sender, int64(lastRun))
	ids, err := s.fetchQuery(ctx, query)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		s.Log.Info("no emails found for sender", "sender", sender, "label", in.Label)
		return false, nil
	}

	s.batchFetch(ctx, ids)

	modified, skipped := 0, 0
	for _, id := range ids {
		if _, ok := s.metaCache[id]; !ok {
			s.Log.Error("message was not located in batch fetch", "id", id)
			skipped++
			continue
		}
		if _, ok := s.messageDetails(ctx, id); !ok {
			s.Log.Debug("missing details, skipping", "id", id)
			skipped++
			continue
		}
		if s.Ledger.Contains(id) {
			s.Log.Debug("skipping already ledgered message", "id", id)
			skipped++
			continue
		}
		if _, seen := s.runSeen[id]; seen {
			s.Log.Debug("skipping message already handled this run", "id", id)
			skipped++
			continue
		}
		in.ID = id
		if s.ProcessEmail(ctx, in) {
			modified++
		} else {
			skipped++
		}
	}
	s.Counts.Skipped += skipped
	s.Log.Debug("sender pass complete",
		"sender", sender, "label", in.Label, "modified", modified, "skipped", skipped)
	return modified > 0, nil
}
