// Package config loads and validates the triage configuration document.
// All normalization happens here, before any API call: a malformed
// document fails the run immediately.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/inboxtriage/inboxtriage/internal/rules"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// SenderRule assigns a group of sender addresses to the owning label
// category. DeleteAfterDays nil means never delete.
type SenderRule struct {
	Emails          []string
	MarkRead        bool
	DeleteAfterDays *int
}

// DeletionRule is one SELECTED_EMAIL_DELETIONS entry: explicit message IDs
// and/or a search query, deleted instantly or deferred until read.
type DeletionRule struct {
	Name            string
	Enabled         bool
	MessageIDs      []string
	Query           string
	ProtectedLabels []string
	DeferUntilRead  bool
}

// Config is the normalized configuration document.
type Config struct {
	SenderToLabels    map[string][]SenderRule
	EmailList         []string
	Ignored           []rules.Rule
	ProtectedLabels   []string
	SelectedDeletions []DeletionRule
}

// Senders returns the set of all addresses configured for labeling.
func (c *Config) Senders() map[string]struct{} {
	out := map[string]struct{}{}
	for _, ruleList := range c.SenderToLabels {
		for _, rule := range ruleList {
			for _, email := range rule.Emails {
				out[email] = struct{}{}
			}
		}
	}
	return out
}

// Load reads, parses and normalizes the configuration file.
func Load(path string, log *slog.Logger) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	}
	var doc map[string]any
	if decodeErr := json.Unmarshal(raw, &doc); decodeErr != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, decodeErr)
	}
	cfg, err := Normalize(doc, log)
	if err != nil {
		return nil, err
	}
	log.Debug("configuration loaded", "path", path,
		"categories", len(cfg.SenderToLabels), "ignored_rules", len(cfg.Ignored))
	return cfg, nil
}

// Normalize validates a decoded configuration document.
func Normalize(doc map[string]any, log *slog.Logger) (*Config, error) {
	senderRaw, ok := doc["SENDER_TO_LABELS"]
	if !ok {
		return nil, fmt.Errorf("%w: missing required key SENDER_TO_LABELS", ErrInvalid)
	}
	senderMap, ok := senderRaw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: SENDER_TO_LABELS must be an object", ErrInvalid)
	}

	cfg := &Config{SenderToLabels: make(map[string][]SenderRule, len(senderMap))}
	for category, entries := range senderMap {
		list, ok := entries.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: SENDER_TO_LABELS.%s must be a list of rules", ErrInvalid, category)
		}
		for i, entry := range list {
			obj, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: SENDER_TO_LABELS.%s[%d] must be an object", ErrInvalid, category, i)
			}
			rule, err := normalizeSenderRule(category, obj, log)
			if err != nil {
				return nil, err
			}
			cfg.SenderToLabels[category] = append(cfg.SenderToLabels[category], rule)
		}
	}

	cfg.EmailList = stringList(doc["EMAIL_LIST"])

	ignoredRaw, _ := doc["IGNORED_EMAILS"].([]any)
	ignored, err := rules.Normalize(ignoredRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: IGNORED_EMAILS: %v", ErrInvalid, err)
	}
	cfg.Ignored = ignored

	cfg.ProtectedLabels = uniquePreserveOrder(stringList(doc["PROTECTED_LABELS"]))

	if rawDel, ok := doc["SELECTED_EMAIL_DELETIONS"]; ok {
		delList, ok := rawDel.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: SELECTED_EMAIL_DELETIONS must be a list", ErrInvalid)
		}
		for i, entry := range delList {
			rule, err := normalizeDeletionRule(entry, i)
			if err != nil {
				return nil, err
			}
			cfg.SelectedDeletions = append(cfg.SelectedDeletions, rule)
		}
	}

	return cfg, nil
}

func normalizeSenderRule(category string, obj map[string]any, log *slog.Logger) (SenderRule, error) {
	rule := SenderRule{Emails: stringList(obj["emails"])}
	if len(rule.Emails) == 0 {
		return SenderRule{}, fmt.Errorf("%w: SENDER_TO_LABELS.%s rule has no emails", ErrInvalid, category)
	}

	switch v := obj["read_status"].(type) {
	case bool:
		rule.MarkRead = v
	case string:
		rule.MarkRead = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	// A missing or unparseable delete_after_days means "never delete",
	// not an error.
	switch v := obj["delete_after_days"].(type) {
	case nil:
	case float64:
		if v == math.Trunc(v) && v >= 0 {
			days := int(v)
			rule.DeleteAfterDays = &days
		} else {
			log.Warn("invalid delete_after_days, treating as never", "category", category, "value", v)
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "never") {
			break
		}
		days, err := strconv.Atoi(s)
		if err != nil || days < 0 {
			log.Warn("invalid delete_after_days, treating as never", "category", category, "value", v)
			break
		}
		rule.DeleteAfterDays = &days
	default:
		log.Warn("invalid delete_after_days, treating as never", "category", category, "value", v)
	}

	return rule, nil
}

func normalizeDeletionRule(entry any, index int) (DeletionRule, error) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return DeletionRule{}, fmt.Errorf(
			"%w: SELECTED_EMAIL_DELETIONS[%d] must be an object", ErrInvalid, index)
	}
	rule := DeletionRule{
		Enabled:         true,
		MessageIDs:      stringList(obj["message_ids"]),
		ProtectedLabels: stringList(obj["protected_labels"]),
	}
	if name, ok := obj["name"].(string); ok && strings.TrimSpace(name) != "" {
		rule.Name = strings.TrimSpace(name)
	} else {
		rule.Name = fmt.Sprintf("Rule %d", index+1)
	}
	if enabled, ok := obj["enabled"].(bool); ok {
		rule.Enabled = enabled
	}
	if q, ok := obj["query"].(string); ok {
		rule.Query = strings.TrimSpace(q)
	}
	if defer_, ok := obj["defer_until_read"].(bool); ok {
		rule.DeferUntilRead = defer_
	}
	if len(rule.MessageIDs) == 0 && rule.Query == "" {
		return DeletionRule{}, fmt.Errorf(
			"%w: SELECTED_EMAIL_DELETIONS[%d] needs message_ids or a query", ErrInvalid, index)
	}
	return rule, nil
}

func stringList(v any) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(vv)
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func uniquePreserveOrder(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
