package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const reportRule = "======================================================================"

// WriteReport renders the structure-and-quality findings as a plain text
// report.
func (s *Service) WriteReport(findings Findings, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var b strings.Builder
	b.WriteString(reportRule + "\n")
	b.WriteString("EMAIL STRUCTURE AND QUALITY REPORT\n")
	b.WriteString(reportRule + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", s.Clock().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Target: %s\n\n", s.Path)

	con := findings.Consistency
	b.WriteString("CONSISTENCY SUMMARY:\n")
	fmt.Fprintf(&b, "  EMAIL_LIST count          : %d\n", con.EmailListCount)
	fmt.Fprintf(&b, "  SENDER_TO_LABELS email set: %d\n", con.SenderLabelsCount)
	fmt.Fprintf(&b, "  Sets identical            : %t\n\n", con.Identical)

	if len(con.MissingInSender) > 0 {
		fmt.Fprintf(&b, "EMAILS IN EMAIL_LIST BUT NOT IN SENDER_TO_LABELS (%d):\n\n", len(con.MissingInSender))
		for _, e := range con.MissingInSender {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
		b.WriteString("\n")
	}
	if len(con.MissingInList) > 0 {
		fmt.Fprintf(&b, "EMAILS IN SENDER_TO_LABELS BUT NOT IN EMAIL_LIST (%d):\n\n", len(con.MissingInList))
		for _, e := range con.MissingInList {
			labels := con.EmailToLabels[e]
			if len(labels) == 0 {
				labels = []string{"Unknown"}
			}
			fmt.Fprintf(&b, "  - %s (labels: %s)\n", e, strings.Join(labels, ", "))
		}
		b.WriteString("\n")
	}
	if len(findings.SortingIssues) > 0 {
		fmt.Fprintf(&b, "LISTS NOT ALPHABETIZED (%d):\n\n", len(findings.SortingIssues))
		for _, loc := range findings.SortingIssues {
			fmt.Fprintf(&b, "  - %s\n", loc)
		}
		b.WriteString("\n")
	}
	if len(findings.CaseIssues) > 0 {
		fmt.Fprintf(&b, "LISTS WITH CASE INCONSISTENCIES (%d):\n\n", len(findings.CaseIssues))
		for _, loc := range findings.CaseIssues {
			fmt.Fprintf(&b, "  - %s\n", loc)
		}
		b.WriteString("\n")
	}
	if len(findings.DuplicateIssues) > 0 {
		fmt.Fprintf(&b, "LISTS WITH DUPLICATES (%d):\n\n", len(findings.DuplicateIssues))
		for _, issue := range findings.DuplicateIssues {
			fmt.Fprintf(&b, "  - %s (%d duplicates)\n", issue.Location, issue.OriginalCount-issue.UniqueCount)
			for _, d := range issue.Duplicates {
				fmt.Fprintf(&b, "    * %s\n", d)
			}
		}
		b.WriteString("\n")
	}

	if findings.Clean() {
		b.WriteString("STATUS: CLEAN. All lists consistent, alphabetized, lowercase, unique.\n")
	} else {
		b.WriteString("ISSUES FOUND - RECOMMENDATIONS:\n\n")
		b.WriteString("  -fix-all         fix case, duplicates and sorting in one pass\n")
		b.WriteString("  -fix-case        lowercase/trim only, preserving order\n")
		b.WriteString("  -fix-duplicates  remove duplicates only\n")
		b.WriteString("  -fix-sorting     alphabetize only\n")
		b.WriteString("  -no-backup       suppress the timestamped backup\n\n")
		b.WriteString("Re-run without fix flags to regenerate this report.\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteReportFile writes the report to path, creating parent directories.
func (s *Service) WriteReportFile(findings Findings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return s.WriteReport(findings, f)
}
