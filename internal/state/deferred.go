package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
)

// DeferredDeletion is one queued defer-until-read deletion request.
type DeferredDeletion struct {
	RuleName        string   `json:"rule_name"`
	ProtectedLabels []string `json:"protected_labels,omitempty"`
	RequestedAt     string   `json:"requested_at"`
}

// LoadDeferredDeletions reads the deferred-deletion queue. Corruption is
// logged and treated as an empty queue rather than failing the run.
func LoadDeferredDeletions(path string, log *slog.Logger) map[gmail.MessageID]DeferredDeletion {
	out := map[gmail.MessageID]DeferredDeletion{}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error("failed to load deferred deletions", "path", path, "error", err)
		}
		return out
	}
	if decodeErr := json.Unmarshal(raw, &out); decodeErr != nil {
		log.Error("deferred deletion file contained invalid structure, starting fresh",
			"path", path, "error", decodeErr)
		return map[gmail.MessageID]DeferredDeletion{}
	}
	return out
}

// SaveDeferredDeletions rewrites the queue file.
func SaveDeferredDeletions(path string, queue map[gmail.MessageID]DeferredDeletion) error {
	raw, err := json.MarshalIndent(queue, "", "  ")
	if err != nil {
		return fmt.Errorf("encode deferred deletions: %w", err)
	}
	if writeErr := os.WriteFile(path, raw, 0o600); writeErr != nil {
		return fmt.Errorf("write %s: %w", path, writeErr)
	}
	return nil
}
