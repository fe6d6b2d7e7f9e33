// Package rules implements the IGNORED_EMAILS rule set: normalization of
// the raw configuration entries into a canonical form, and ordered
// evaluation of those rules against message sender/subject pairs.
package rules

import (
	"net/mail"
	"strings"
)

// Actions is the action bundle attached to an ignored-email rule.
// SkipAnalysis and SkipImport are consumed by the config-audit tooling;
// the rest drive the Gmail pipeline.
type Actions struct {
	SkipAnalysis    bool     `json:"skip_analysis"`
	SkipImport      bool     `json:"skip_import"`
	MarkAsRead      bool     `json:"mark_as_read"`
	ApplyLabels     []string `json:"apply_labels"`
	Archive         bool     `json:"archive"`
	DeleteAfterDays *int     `json:"delete_after_days"`
}

// HasPipelineActions reports whether any action affects the Gmail pipeline.
func (a Actions) HasPipelineActions() bool {
	return a.MarkAsRead || len(a.ApplyLabels) > 0 || a.Archive || a.DeleteAfterDays != nil
}

// Rule is one normalized IGNORED_EMAILS entry. Match predicates are
// case-insensitive; the case-folded forms are computed once at build time.
type Rule struct {
	Name            string   `json:"name"`
	Senders         []string `json:"senders"`
	Domains         []string `json:"domains"`
	SubjectContains []string `json:"subject_contains"`
	Actions         Actions  `json:"actions"`

	sendersCF  map[string]struct{}
	domainsCF  map[string]struct{}
	subjectsCF []string
}

func (r *Rule) fold() {
	r.sendersCF = make(map[string]struct{}, len(r.Senders))
	for _, s := range r.Senders {
		r.sendersCF[strings.ToLower(s)] = struct{}{}
	}
	r.domainsCF = make(map[string]struct{}, len(r.Domains))
	for _, d := range r.Domains {
		r.domainsCF[cleanDomain(d)] = struct{}{}
	}
	r.subjectsCF = make([]string, 0, len(r.SubjectContains))
	for _, s := range r.SubjectContains {
		r.subjectsCF = append(r.subjectsCF, strings.ToLower(s))
	}
}

// extractAddress pulls the bare address out of a From header, which may be
// either "Display Name <addr>" or a plain address.
func extractAddress(sender string) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(sender); err == nil {
		return strings.TrimSpace(addr.Address)
	}
	// Malformed header: fall back to the raw value when it looks like an
	// address at all.
	if strings.Contains(sender, "@") {
		return strings.Trim(sender, "<> ")
	}
	return ""
}

// MatchesSender tests the From header against the rule's sender and
// domain predicates.
func (r *Rule) MatchesSender(sender string) bool {
	address := extractAddress(sender)
	if address == "" {
		return false
	}
	return r.matchesBare(strings.ToLower(address))
}

// MatchesAddress tests a bare, already-extracted address.
func (r *Rule) MatchesAddress(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}
	return r.matchesBare(strings.ToLower(address))
}

func (r *Rule) matchesBare(folded string) bool {
	if _, ok := r.sendersCF[folded]; ok {
		return true
	}
	if len(r.domainsCF) == 0 {
		return false
	}
	at := strings.LastIndex(folded, "@")
	if at == -1 {
		return false
	}
	_, ok := r.domainsCF[folded[at+1:]]
	return ok
}

// MatchesSubject is a case-folded substring test. An empty token set
// never matches.
func (r *Rule) MatchesSubject(subject string) bool {
	if len(r.subjectsCF) == 0 || subject == "" {
		return false
	}
	folded := strings.ToLower(subject)
	for _, token := range r.subjectsCF {
		if strings.Contains(folded, token) {
			return true
		}
	}
	return false
}

// Matches reports whether either the sender or the subject matches.
func (r *Rule) Matches(sender, subject string) bool {
	return r.MatchesSender(sender) || r.MatchesSubject(subject)
}

// Engine evaluates IGNORED_EMAILS rules in declaration order.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine over already-normalized rules.
func NewEngine(ruleList []Rule) *Engine {
	rules := make([]Rule, len(ruleList))
	copy(rules, ruleList)
	for i := range rules {
		rules[i].fold()
	}
	return &Engine{rules: rules}
}

// Rules returns the ordered rule list.
func (e *Engine) Rules() []Rule { return e.rules }

// Matches returns every rule matching the sender/subject pair, in
// declaration order.
func (e *Engine) Matches(sender, subject string) []*Rule {
	var out []*Rule
	for i := range e.rules {
		if e.rules[i].Matches(sender, subject) {
			out = append(out, &e.rules[i])
		}
	}
	return out
}

// ShouldSkipAnalysis reports whether any rule excludes the bare address
// from audit analysis.
func (e *Engine) ShouldSkipAnalysis(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for i := range e.rules {
		if e.rules[i].Actions.SkipAnalysis && e.rules[i].MatchesAddress(email) {
			return true
		}
	}
	return false
}

// ShouldSkipImport reports whether any rule excludes the bare address
// from config import.
func (e *Engine) ShouldSkipImport(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for i := range e.rules {
		if e.rules[i].Actions.SkipImport && e.rules[i].MatchesAddress(email) {
			return true
		}
	}
	return false
}
