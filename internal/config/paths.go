package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Paths locates the runtime files. Every location can be overridden via
// environment variables (a .env file is honored when present), so the
// binaries can run from cron with a shared data directory.
type Paths struct {
	ConfigPath string `env:"INBOXTRIAGE_CONFIG" envDefault:"config/gmail_config.json"`
	DataDir    string `env:"INBOXTRIAGE_DATA_DIR" envDefault:"data"`
	CredDir    string `env:"INBOXTRIAGE_CRED_DIR" envDefault:""`
	HistoryDB  string `env:"INBOXTRIAGE_HISTORY_DB" envDefault:""`
}

// LoadPaths resolves runtime paths from the environment.
func LoadPaths() (Paths, error) {
	_ = godotenv.Load()

	p := Paths{}
	if err := env.Parse(&p); err != nil {
		return Paths{}, fmt.Errorf("parse environment: %w", err)
	}
	if p.CredDir == "" {
		p.CredDir = os.ExpandEnv("$HOME/.gmailctl")
	}
	if p.HistoryDB == "" {
		p.HistoryDB = filepath.Join(p.DataDir, "run_history.db")
	}
	return p, nil
}

// LedgerPath is the processed-message-ID ledger file.
func (p Paths) LedgerPath() string { return filepath.Join(p.DataDir, "processed_email_ids.txt") }

// SenderLastRunPath is the per-sender timestamp store.
func (p Paths) SenderLastRunPath() string { return filepath.Join(p.DataDir, "sender_last_run.json") }

// LastRunPath is the legacy single global last-run marker.
func (p Paths) LastRunPath() string { return filepath.Join(p.DataDir, "last_run.txt") }

// DeferredDeletionsPath is the defer-until-read deletion queue.
func (p Paths) DeferredDeletionsPath() string {
	return filepath.Join(p.DataDir, "deferred_deletions.json")
}

// EnsureDataDir creates the data directory when missing.
func (p Paths) EnsureDataDir() error {
	if err := os.MkdirAll(p.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", p.DataDir, err)
	}
	return nil
}
