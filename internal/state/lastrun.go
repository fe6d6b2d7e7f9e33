// Package state persists the small flat-file stores that make repeated
// runs incremental and idempotent: per-sender last-run timestamps, the
// processed-message-ID ledger, and the deferred-deletion queue. Every
// store is read once at run start and written once at run end.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultLastRun is the "never run" sentinel: far enough in the past that
// the first query for a sender sees their whole inbox history.
var DefaultLastRun = float64(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC).Unix())

const defaultLastRunISO = "2000-01-01T00:00:00Z"

// LastRunStore reads and writes sender watermarks. Zero value is not
// usable; construct with NewLastRunStore.
type LastRunStore struct {
	senderPath string
	globalPath string
	log        *slog.Logger
}

// NewLastRunStore binds a store to its two files: the per-sender JSON map
// and the legacy global marker.
func NewLastRunStore(senderPath, globalPath string, log *slog.Logger) *LastRunStore {
	return &LastRunStore{senderPath: senderPath, globalPath: globalPath, log: log}
}

// SenderTimes returns the last-run timestamp for each requested sender.
// Senders absent from the per-sender file get the default sentinel; when
// the file itself is missing, every sender falls back to the legacy
// global timestamp.
func (s *LastRunStore) SenderTimes(senders map[string]struct{}) map[string]float64 {
	raw, err := os.ReadFile(s.senderPath)
	if err != nil {
		global := s.GlobalTime()
		out := make(map[string]float64, len(senders))
		for sender := range senders {
			out[sender] = global
		}
		return out
	}

	var stored map[string]any
	if decodeErr := json.Unmarshal(raw, &stored); decodeErr != nil {
		s.log.Error("corrupt sender last-run file, using defaults",
			"path", s.senderPath, "error", decodeErr)
		stored = map[string]any{}
	}

	out := make(map[string]float64, len(senders))
	for sender := range senders {
		value, ok := stored[sender]
		if !ok {
			out[sender] = DefaultLastRun
			continue
		}
		ts, err := timestampValue(value)
		if err != nil {
			s.log.Warn("unparseable last-run value, using default",
				"sender", sender, "value", value, "error", err)
			ts = DefaultLastRun
		}
		out[sender] = ts
	}
	return out
}

// SaveSenderTimes rewrites the per-sender file. Timestamps serialize as
// ISO-8601 UTC; the default sentinel keeps its canonical form.
func (s *LastRunStore) SaveSenderTimes(times map[string]float64) error {
	serializable := make(map[string]string, len(times))
	for sender, ts := range times {
		if ts == DefaultLastRun {
			serializable[sender] = defaultLastRunISO
			continue
		}
		serializable[sender] = time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
	}
	raw, err := json.MarshalIndent(serializable, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sender last-run times: %w", err)
	}
	if writeErr := os.WriteFile(s.senderPath, raw, 0o600); writeErr != nil {
		return fmt.Errorf("write %s: %w", s.senderPath, writeErr)
	}
	return nil
}

// GlobalTime reads the legacy single-timestamp marker, returning the
// default sentinel when the file is missing or unreadable.
func (s *LastRunStore) GlobalTime() float64 {
	raw, err := os.ReadFile(s.globalPath)
	if err != nil {
		s.log.Debug("no global last-run file, using default", "path", s.globalPath)
		return DefaultLastRun
	}
	ts, err := timestampValue(strings.TrimSpace(string(raw)))
	if err != nil {
		s.log.Error("unparseable global last-run file, using default",
			"path", s.globalPath, "error", err)
		return DefaultLastRun
	}
	return ts
}

// SaveGlobalTime rewrites the legacy marker as a plain epoch value.
func (s *LastRunStore) SaveGlobalTime(ts float64) error {
	value := strconv.FormatFloat(ts, 'f', -1, 64)
	if err := os.WriteFile(s.globalPath, []byte(value), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.globalPath, err)
	}
	return nil
}

// timestampValue accepts either a numeric epoch or an ISO-8601 string.
func timestampValue(v any) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case string:
		if ts, err := strconv.ParseFloat(value, 64); err == nil {
			return ts, nil
		}
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return 0, fmt.Errorf("not an epoch or RFC 3339 value: %q", value)
		}
		return float64(t.Unix()), nil
	default:
		return 0, fmt.Errorf("unsupported timestamp type %T", v)
	}
}
