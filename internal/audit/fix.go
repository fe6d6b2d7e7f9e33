package audit

import (
	"fmt"
	"sort"
	"strings"
)

// FixCaseAndDuplicates lowercases and trims every email list and drops
// case-insensitive duplicates, keeping first occurrences. Returns the
// locations that changed.
func (s *Service) FixCaseAndDuplicates(doc Document) []string {
	var changes []string

	record := func(location string, removed int, cased bool) {
		switch {
		case removed > 0:
			changes = append(changes, fmt.Sprintf("%s (removed %d duplicates)", location, removed))
		case cased:
			changes = append(changes, location+" (fixed case)")
		}
	}

	if list := emailListOf(doc); len(list) > 0 {
		fixed, removed, cased := normalizeList(list)
		if removed > 0 || cased {
			doc["EMAIL_LIST"] = toAnySlice(fixed)
			record("EMAIL_LIST", removed, cased)
		}
	}
	visitSenderLists(doc, func(label string, index int, emails []string) []string {
		fixed, removed, cased := normalizeList(emails)
		if removed == 0 && !cased {
			return nil
		}
		record(senderLocation(label, index), removed, cased)
		return fixed
	})
	return changes
}

// FixAlphabetization case-insensitively sorts every email list. Returns
// the locations that changed.
func (s *Service) FixAlphabetization(doc Document) []string {
	var changes []string

	if list := trimmed(emailListOf(doc)); len(list) > 0 && !sortedFold(list) {
		doc["EMAIL_LIST"] = toAnySlice(sortFold(list))
		changes = append(changes, "EMAIL_LIST")
	}
	visitSenderLists(doc, func(label string, index int, emails []string) []string {
		clean := trimmed(emails)
		if sortedFold(clean) {
			return nil
		}
		changes = append(changes, senderLocation(label, index))
		return sortFold(clean)
	})
	return changes
}

func normalizeList(values []string) (out []string, removed int, cased bool) {
	seen := map[string]struct{}{}
	out = make([]string, 0, len(values))
	for _, v := range values {
		norm := strings.ToLower(strings.TrimSpace(v))
		if norm != v {
			cased = true
		}
		if _, ok := seen[norm]; ok {
			removed++
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out, removed, cased
}

func sortFold(values []string) []string {
	out := append([]string(nil), values...)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
