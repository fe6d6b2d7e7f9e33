package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/inboxtriage/inboxtriage/internal/audit"
	"github.com/inboxtriage/inboxtriage/internal/config"
	"github.com/inboxtriage/inboxtriage/internal/runtime"
)

// version is set at build time via -ldflags.
var version = "dev"

type auditConfig struct {
	configPath      string
	fixCase         bool
	fixDuplicates   bool
	fixSorting      bool
	fixAll          bool
	noBackup        bool
	skipReport      bool
	reportPath      string
	skipDifferences bool
	labelsFile      string
	differencesOut  string
	failOn          string
	showVersion     bool
}

func main() {
	cfg := parseFlags()
	if cfg.showVersion {
		fmt.Println("inboxtriage-audit " + version)
		return
	}
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("inboxtriage-audit failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() auditConfig {
	configPath := flag.String("config", "", "configuration file (overrides INBOXTRIAGE_CONFIG)")
	fixCase := flag.Bool("fix-case", false, "lowercase and trim email entries")
	fixDuplicates := flag.Bool("fix-duplicates", false, "remove case-insensitive duplicates")
	fixSorting := flag.Bool("fix-sorting", false, "alphabetize email lists")
	fixAll := flag.Bool("fix-all", false, "apply all fixes (case, duplicates, sorting)")
	noBackup := flag.Bool("no-backup", false, "skip the timestamped backup when rewriting")
	skipReport := flag.Bool("skip-report", false, "skip writing the text report")
	reportPath := flag.String("report", "", "text report path (default alongside the config)")
	skipDifferences := flag.Bool("skip-differences", false, "skip the label-differences JSON")
	labelsFile := flag.String("labels-file", "", "extracted labels snapshot for the differences check")
	differencesOut := flag.String("differences-out", "", "label-differences JSON path")
	failOn := flag.String("fail-on", "", "comma separated findings that force exit 1: consistency,sorting,case,duplicates")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	return auditConfig{
		configPath:      *configPath,
		fixCase:         *fixCase || *fixAll,
		fixDuplicates:   *fixDuplicates || *fixAll,
		fixSorting:      *fixSorting || *fixAll,
		fixAll:          *fixAll,
		noBackup:        *noBackup,
		skipReport:      *skipReport,
		reportPath:      *reportPath,
		skipDifferences: *skipDifferences,
		labelsFile:      *labelsFile,
		differencesOut:  *differencesOut,
		failOn:          *failOn,
		showVersion:     *showVersion,
	}
}

func run(cfg auditConfig) error {
	logger := runtime.DefaultLogger()

	paths, err := config.LoadPaths()
	if err != nil {
		return err
	}
	if cfg.configPath != "" {
		paths.ConfigPath = cfg.configPath
	}
	configDir := filepath.Dir(paths.ConfigPath)

	svc := audit.NewService(paths.ConfigPath, logger)
	doc, err := svc.Load()
	if err != nil {
		return err
	}

	backup := !cfg.noBackup
	if cfg.fixCase || cfg.fixDuplicates {
		if changes := svc.FixCaseAndDuplicates(doc); len(changes) > 0 {
			if saveErr := svc.Save(doc, backup); saveErr != nil {
				return saveErr
			}
			backup = false
			for _, c := range changes {
				logger.Info("case/duplicate fix applied", "change", c)
			}
		}
	}
	if cfg.fixSorting {
		if changes := svc.FixAlphabetization(doc); len(changes) > 0 {
			if saveErr := svc.Save(doc, backup); saveErr != nil {
				return saveErr
			}
			for _, c := range changes {
				logger.Info("sorting fix applied", "change", c)
			}
		}
	}

	findings := svc.Analyze(doc)
	fmt.Print(findings.HumanSummary())

	if !cfg.skipReport {
		reportPath := cfg.reportPath
		if reportPath == "" {
			reportPath = filepath.Join(configDir, "email_quality_report.txt")
		}
		if reportErr := svc.WriteReportFile(findings, reportPath); reportErr != nil {
			return reportErr
		}
		logger.Info("report saved", "path", reportPath)
	}

	if !cfg.skipDifferences {
		labelsFile := cfg.labelsFile
		if labelsFile == "" {
			labelsFile = filepath.Join(configDir, "gmail_labels_data.json")
		}
		if _, statErr := os.Stat(labelsFile); statErr != nil {
			logger.Info("labels snapshot not found, skipping differences", "path", labelsFile)
		} else {
			diff, diffErr := svc.CompareLabels(labelsFile, doc)
			if diffErr != nil {
				return diffErr
			}
			out := cfg.differencesOut
			if out == "" {
				out = filepath.Join(configDir, "email_differences_by_label.json")
			}
			if writeErr := audit.WriteDifferences(diff, out); writeErr != nil {
				return writeErr
			}
			logger.Info("differences saved", "path", out)
		}
	}

	if findings.ShouldFail(audit.ParseFailOn(cfg.failOn)) {
		return fmt.Errorf("configuration findings matched fail-on conditions")
	}
	return nil
}
