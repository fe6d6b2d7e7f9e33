package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize converts raw IGNORED_EMAILS entries (strings or objects, as
// decoded from JSON) into canonical rules. Validation failures are
// configuration errors and abort the load before any API call is made.
func Normalize(raw []any) ([]Rule, error) {
	rules := make([]Rule, 0, len(raw))
	for index, entry := range raw {
		rule, err := normalizeEntry(entry, index)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func normalizeEntry(entry any, index int) (Rule, error) {
	switch v := entry.(type) {
	case string:
		// Legacy shorthand: the string is an exact sender to exclude from
		// analysis and import, with no pipeline actions.
		sender := strings.TrimSpace(v)
		if sender == "" {
			return Rule{}, fmt.Errorf("IGNORED_EMAILS entries cannot be empty strings")
		}
		return Rule{
			Name:    sender,
			Senders: []string{sender},
			Actions: Actions{SkipAnalysis: true, SkipImport: true},
		}, nil
	case map[string]any:
		return normalizeObject(v, index)
	default:
		return Rule{}, fmt.Errorf(
			"IGNORED_EMAILS entries must be strings or objects; got %T at index %d", entry, index)
	}
}

func normalizeObject(data map[string]any, index int) (Rule, error) {
	match, _ := data["match"].(map[string]any)

	senders := uniquePreserveOrder(firstNonEmpty(
		stringList(data["senders"]),
		stringList(data["emails"]),
		stringList(lookup(match, "senders")),
		stringList(lookup(match, "emails")),
	))
	domains := uniquePreserveOrder(cleanDomains(firstNonEmpty(
		stringList(data["domains"]),
		stringList(lookup(match, "domains")),
		stringList(data["domain"]),
		stringList(lookup(match, "domain")),
	)))
	subjects := uniquePreserveOrder(firstNonEmpty(
		stringList(data["subject_contains"]),
		stringList(lookup(match, "subject_contains")),
		stringList(data["subjects"]),
		stringList(lookup(match, "subjects")),
	))

	if len(senders) == 0 && len(domains) == 0 && len(subjects) == 0 {
		return Rule{}, fmt.Errorf(
			"IGNORED_EMAILS rule at index %d must define senders, domains, or subject filters", index)
	}

	actionsMap, _ := data["actions"].(map[string]any)
	actionValue := func(key string) any {
		if v, ok := data[key]; ok {
			return v
		}
		return lookup(actionsMap, key)
	}

	actions := Actions{
		SkipAnalysis: toBool(actionValue("skip_analysis")),
		SkipImport:   toBool(actionValue("skip_import")),
		MarkAsRead:   toBool(actionValue("mark_as_read")),
		Archive:      toBool(actionValue("archive")),
		ApplyLabels:  stringList(actionValue("apply_labels")),
	}

	days, err := parseDeleteAfterDays(actionValue("delete_after_days"))
	if err != nil {
		return Rule{}, fmt.Errorf("IGNORED_EMAILS rule at index %d: %w", index, err)
	}
	actions.DeleteAfterDays = days

	// Skip flags operate on a bare address, so a subject-only rule cannot
	// carry them.
	if (actions.SkipAnalysis || actions.SkipImport) && len(senders) == 0 && len(domains) == 0 {
		return Rule{}, fmt.Errorf(
			"IGNORED_EMAILS rule at index %d: rules that skip analysis or import must specify senders or domains", index)
	}

	name, _ := data["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		switch {
		case len(senders) > 0:
			name = senders[0]
		case len(domains) > 0:
			name = "@" + domains[0]
		default:
			name = subjects[0]
		}
	}

	return Rule{
		Name:            name,
		Senders:         senders,
		Domains:         domains,
		SubjectContains: subjects,
		Actions:         actions,
	}, nil
}

func parseDeleteAfterDays(v any) (*int, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if n != math.Trunc(n) || n < 0 {
			return nil, fmt.Errorf("delete_after_days must be a non-negative integer or null")
		}
		days := int(n)
		return &days, nil
	case int:
		if n < 0 {
			return nil, fmt.Errorf("delete_after_days must be a non-negative integer or null")
		}
		days := n
		return &days, nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		days, err := strconv.Atoi(s)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("delete_after_days must be a non-negative integer or null")
		}
		return &days, nil
	default:
		return nil, fmt.Errorf("delete_after_days must be a non-negative integer or null")
	}
}

func lookup(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

// stringList coerces list-like config values to non-empty strings.
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
	case []string:
		out := make([]string, 0, len(vv))
		for _, s := range vv {
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

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
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

func cleanDomain(v string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v), "@"))
}

func cleanDomains(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if d := cleanDomain(v); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// toBool coerces strings commonly used in configs to booleans.
func toBool(v any) bool {
	switch vv := v.(type) {
	case bool:
		return vv
	case string:
		switch strings.ToLower(strings.TrimSpace(vv)) {
		case "true", "1", "yes", "y":
			return true
		}
	}
	return false
}
