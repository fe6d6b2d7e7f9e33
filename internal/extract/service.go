// Package extract mines existing Gmail labels and their sender addresses
// into a seed SENDER_TO_LABELS configuration document.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
	"github.com/inboxtriage/inboxtriage/internal/rate"
)

const (
	defaultBatchSize  = 5
	defaultPageSize   = 500
	interBatchPause   = 2 * time.Second
	defaultReadStatus = false
	defaultDeleteDays = 30
)

// Options controls one extraction run.
type Options struct {
	BatchSize int
	PageSize  int
}

// SeedGroup is one generated SENDER_TO_LABELS entry, carrying the
// defaults a newly mined label starts with.
type SeedGroup struct {
	ReadStatus      bool     `json:"read_status"`
	DeleteAfterDays int      `json:"delete_after_days"`
	Emails          []string `json:"emails"`
}

// Seed is the generated configuration document.
type Seed struct {
	SenderToLabels map[string][]SeedGroup `json:"SENDER_TO_LABELS"`
}

// Service walks user labels and the threads beneath them.
type Service struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Logger  *slog.Logger
	Clock   func() time.Time
	Sleep   func(context.Context, time.Duration) error
}

// NewService constructs a Service with sane defaults.
func NewService(client gmail.Client, limiter rate.Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if limiter == nil {
		limiter = rate.NoLimit{}
	}
	return &Service{
		Client:  client,
		Limiter: limiter,
		Logger:  logger,
		Clock:   time.Now,
		Sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run extracts every user label's sender addresses. Labels whose threads
// cannot be listed are skipped with a warning; only labels with at least
// one mined address appear in the seed.
func (s *Service) Run(ctx context.Context, opts Options) (Seed, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	labels, err := s.userLabels(ctx)
	if err != nil {
		return Seed{}, err
	}
	s.Logger.Info("found user labels to process", "count", len(labels))

	seed := Seed{SenderToLabels: map[string][]SeedGroup{}}
	for start := 0; start < len(labels); start += batchSize {
		end := start + batchSize
		if end > len(labels) {
			end = len(labels)
		}
		s.Logger.Info("processing label batch",
			"batch", start/batchSize+1,
			"batches", (len(labels)+batchSize-1)/batchSize)

		for _, label := range labels[start:end] {
			emails, mineErr := s.mineLabel(ctx, label, opts)
			if mineErr != nil {
				if ctx.Err() != nil {
					return Seed{}, mineErr
				}
				s.Logger.Warn("skipping label", "label", label.Name, "error", mineErr)
				continue
			}
			if len(emails) == 0 {
				s.Logger.Info("label has no emails", "label", label.Name)
				continue
			}
			seed.SenderToLabels[label.Name] = []SeedGroup{{
				ReadStatus:      defaultReadStatus,
				DeleteAfterDays: defaultDeleteDays,
				Emails:          emails,
			}}
			s.Logger.Info("label mined", "label", label.Name, "unique_emails", len(emails))
		}

		if end < len(labels) {
			if sleepErr := s.Sleep(ctx, interBatchPause); sleepErr != nil {
				return Seed{}, sleepErr
			}
		}
	}
	return seed, nil
}

// userLabels lists labels of type "user", excluding category and chat
// pseudo-labels.
func (s *Service) userLabels(ctx context.Context) ([]gmail.Label, error) {
	if err := s.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	all, err := s.Client.ListUserLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	out := make([]gmail.Label, 0, len(all))
	for _, label := range all {
		if label.Type != "user" {
			continue
		}
		if strings.HasPrefix(label.Name, "CATEGORY_") || strings.HasPrefix(label.Name, "CHAT") {
			continue
		}
		out = append(out, label)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// mineLabel collects the distinct From addresses across every thread
// carrying the label. Individual thread failures are skipped.
func (s *Service) mineLabel(ctx context.Context, label gmail.Label, opts Options) ([]string, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}

	seen := map[string]struct{}{}
	token := ""
	for {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := s.Client.ListThreads(ctx, label.ID, token, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list threads for %s: %w", label.Name, err)
		}
		for _, threadID := range page.IDs {
			if err := s.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
			detail, getErr := s.Client.GetThread(ctx, threadID)
			if getErr != nil {
				if ctx.Err() != nil {
					return nil, getErr
				}
				s.Logger.Warn("skipping thread", "thread", threadID, "error", getErr)
				continue
			}
			for _, msg := range detail.Messages {
				if addr := senderAddress(msg.Header("From")); addr != "" {
					seen[addr] = struct{}{}
				}
			}
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	emails := make([]string, 0, len(seen))
	for e := range seen {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails, nil
}

// senderAddress pulls the bare address out of a From header value.
func senderAddress(from string) string {
	if from == "" {
		return ""
	}
	if parsed, err := mail.ParseAddress(from); err == nil {
		return parsed.Address
	}
	addr := strings.TrimSpace(from)
	if strings.Contains(addr, "@") {
		return addr
	}
	return ""
}

// WriteSeed saves the generated configuration as indented JSON.
func WriteSeed(seed Seed, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	raw, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		return fmt.Errorf("encode seed configuration: %w", err)
	}
	if writeErr := os.WriteFile(path, append(raw, '\n'), 0o600); writeErr != nil {
		return fmt.Errorf("write %s: %w", path, writeErr)
	}
	return nil
}
