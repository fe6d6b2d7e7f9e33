package state

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
)

// Ledger is the on-disk set of message IDs already labeled in a past run.
// A ledgered message is never re-labeled, but age-based deletion checks
// still apply to it.
type Ledger struct {
	path string
	ids  map[gmail.MessageID]struct{}
}

// LoadLedger reads the newline-delimited ID file; a missing file is an
// empty ledger.
func LoadLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, ids: map[gmail.MessageID]struct{}{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			l.ids[gmail.MessageID(line)] = struct{}{}
		}
	}
	return l, nil
}

// Contains reports whether the message was labeled in a past run.
func (l *Ledger) Contains(id gmail.MessageID) bool {
	_, ok := l.ids[id]
	return ok
}

// Add records a labeled message. In-memory only until Save.
func (l *Ledger) Add(id gmail.MessageID) { l.ids[id] = struct{}{} }

// Len returns the number of ledgered IDs.
func (l *Ledger) Len() int { return len(l.ids) }

// Save rewrites the ledger file once, at run end.
func (l *Ledger) Save() error {
	lines := make([]string, 0, len(l.ids))
	for id := range l.ids {
		lines = append(lines, string(id))
	}
	sort.Strings(lines)
	data := strings.Join(lines, "\n")
	if data != "" {
		data += "\n"
	}
	if err := os.WriteFile(l.path, []byte(data), 0o600); err != nil {
		return fmt.Errorf("write ledger %s: %w", l.path, err)
	}
	return nil
}
