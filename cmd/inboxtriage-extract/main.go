package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/inboxtriage/inboxtriage/internal/config"
	"github.com/inboxtriage/inboxtriage/internal/extract"
	"github.com/inboxtriage/inboxtriage/internal/rate"
	"github.com/inboxtriage/inboxtriage/internal/runtime"
)

// version is set at build time via -ldflags.
var version = "dev"

type extractConfig struct {
	credDir     string
	output      string
	batchSize   int
	pageSize    int
	rps         int
	showVersion bool
}

func main() {
	cfg := parseFlags()
	if cfg.showVersion {
		fmt.Println("inboxtriage-extract " + version)
		return
	}
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("inboxtriage-extract failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() extractConfig {
	credDir := flag.String("cred-dir", "", "gmailctl auth directory (overrides INBOXTRIAGE_CRED_DIR)")
	output := flag.String("output", "", "output JSON path (default <config dir>/gmail_labels_data.json)")
	batchSize := flag.Int("batch-size", 5, "labels processed per batch")
	pageSize := flag.Int("page-size", 500, "threads listed per page (<=500)")
	rps := flag.Int("rps", 4, "max requests per second")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	return extractConfig{
		credDir:     *credDir,
		output:      *output,
		batchSize:   *batchSize,
		pageSize:    *pageSize,
		rps:         *rps,
		showVersion: *showVersion,
	}
}

func run(cfg extractConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := runtime.DefaultLogger()

	paths, err := config.LoadPaths()
	if err != nil {
		return err
	}
	if cfg.credDir != "" {
		paths.CredDir = cfg.credDir
	}
	output := cfg.output
	if output == "" {
		output = filepath.Join(filepath.Dir(paths.ConfigPath), "gmail_labels_data.json")
	}

	client, err := runtime.NewGmailClient(ctx, paths.CredDir, runtime.ScopeReadonly, logger)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	var limiter rate.Limiter = rate.NoLimit{}
	if cfg.rps > 0 {
		bucket := rate.NewTokenBucket(cfg.rps)
		defer bucket.Stop()
		limiter = bucket
	}

	svc := extract.NewService(client, limiter, logger)
	seed, err := svc.Run(ctx, extract.Options{BatchSize: cfg.batchSize, PageSize: cfg.pageSize})
	if err != nil {
		return fmt.Errorf("extract labels: %w", err)
	}

	if err := extract.WriteSeed(seed, output); err != nil {
		return err
	}
	logger.Info("extraction complete", "labels", len(seed.SenderToLabels), "output", output)
	return nil
}
