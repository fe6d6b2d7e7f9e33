package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/inboxtriage/inboxtriage/internal/config"
	"github.com/inboxtriage/inboxtriage/internal/history"
	"github.com/inboxtriage/inboxtriage/internal/pipeline"
	"github.com/inboxtriage/inboxtriage/internal/rate"
	"github.com/inboxtriage/inboxtriage/internal/rules"
	"github.com/inboxtriage/inboxtriage/internal/runtime"
	"github.com/inboxtriage/inboxtriage/internal/state"
)

// version is set at build time via -ldflags.
var version = "dev"

type triageConfig struct {
	configPath  string
	dataDir     string
	credDir     string
	logLevel    string
	logFile     string
	rps         int
	dryRun      bool
	interactive bool
	showVersion bool
}

func main() {
	cfg := parseFlags()
	if cfg.showVersion {
		fmt.Println("inboxtriage " + version)
		return
	}
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("inboxtriage failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() triageConfig {
	configPath := flag.String("config", "", "configuration file (overrides INBOXTRIAGE_CONFIG)")
	dataDir := flag.String("data-dir", "", "state directory (overrides INBOXTRIAGE_DATA_DIR)")
	credDir := flag.String("cred-dir", "", "gmailctl auth directory (overrides INBOXTRIAGE_CRED_DIR)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "also append logs to this file")
	rps := flag.Int("rps", 4, "max requests per second")
	dryRun := flag.Bool("dry-run", false, "log decisions without modifying anything")
	interactive := flag.Bool("confirm-deletions", false, "prompt before each configured deletion")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	return triageConfig{
		configPath:  *configPath,
		dataDir:     *dataDir,
		credDir:     *credDir,
		logLevel:    *logLevel,
		logFile:     *logFile,
		rps:         *rps,
		dryRun:      *dryRun,
		interactive: *interactive,
		showVersion: *showVersion,
	}
}

func run(cfg triageConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	paths, err := config.LoadPaths()
	if err != nil {
		return err
	}
	if cfg.configPath != "" {
		paths.ConfigPath = cfg.configPath
	}
	if cfg.dataDir != "" {
		paths.DataDir = cfg.dataDir
	}
	if cfg.credDir != "" {
		paths.CredDir = cfg.credDir
	}

	logger, closeLog, err := runtime.NewLogger(cfg.logLevel, cfg.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := paths.EnsureDataDir(); err != nil {
		return err
	}

	doc, err := config.Load(paths.ConfigPath, logger)
	if err != nil {
		return err
	}

	client, err := runtime.NewGmailClient(ctx, paths.CredDir, runtime.ScopeFull, logger)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	var limiter rate.Limiter = rate.NoLimit{}
	if cfg.rps > 0 {
		bucket := rate.NewTokenBucket(cfg.rps)
		defer bucket.Stop()
		limiter = bucket
	}

	labelsByName, _, err := client.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}

	ledger, err := state.LoadLedger(paths.LedgerPath())
	if err != nil {
		return err
	}
	lastRunStore := state.NewLastRunStore(paths.SenderLastRunPath(), paths.LastRunPath(), logger)
	lastRuns := lastRunStore.SenderTimes(doc.Senders())
	deferred := state.LoadDeferredDeletions(paths.DeferredDeletionsPath(), logger)

	svc := pipeline.NewService(client, limiter, logger)
	svc.DryRun = cfg.dryRun
	svc.Engine = rules.NewEngine(doc.Ignored)
	svc.ExistingLabels = labelsByName
	svc.Ledger = ledger

	var confirm pipeline.ConfirmationProvider
	if cfg.interactive {
		confirm = stdinConfirm
	}

	started := svc.Clock()
	changed, runErr := svc.Run(ctx, doc, lastRuns)
	delErr := svc.ProcessSelectedDeletions(ctx, doc.SelectedDeletions, doc.ProtectedLabels, deferred, confirm)
	defErr := svc.ProcessDeferredDeletions(ctx, deferred, doc.ProtectedLabels, confirm)

	if !cfg.dryRun {
		if saveErr := state.SaveDeferredDeletions(paths.DeferredDeletionsPath(), deferred); saveErr != nil {
			logger.Error("failed to save deferred deletions", "error", saveErr)
		}
		if saveErr := lastRunStore.SaveSenderTimes(lastRuns); saveErr != nil {
			logger.Error("failed to save sender timestamps", "error", saveErr)
		}
		if changed {
			if saveErr := lastRunStore.SaveGlobalTime(float64(started.Unix())); saveErr != nil {
				logger.Error("failed to save global last-run marker", "error", saveErr)
			}
		}
	}

	recordRun(ctx, paths.HistoryDB, logger, history.RunRecord{
		StartedAt:  started,
		FinishedAt: svc.Clock(),
		DryRun:     cfg.dryRun,
		Modified:   svc.Counts.Modified,
		Skipped:    svc.Counts.Skipped,
		Deleted:    svc.Counts.Deleted,
	})

	return errors.Join(runErr, delErr, defErr)
}

// recordRun appends the run summary to the sqlite journal. Journal
// trouble never fails the run.
func recordRun(ctx context.Context, path string, logger *slog.Logger, rec history.RunRecord) {
	store, err := history.Open(ctx, path)
	if err != nil {
		logger.Error("failed to open run journal", "error", err)
		return
	}
	defer func() { _ = store.Close() }()
	if err := store.RecordRun(ctx, rec); err != nil {
		logger.Error("failed to record run", "error", err)
	}
}

func stdinConfirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
