// Package pipeline implements the per-message triage decision flow and
// the run orchestrator that drives it across every configured sender.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
	"github.com/inboxtriage/inboxtriage/internal/maildate"
	"github.com/inboxtriage/inboxtriage/internal/rate"
	"github.com/inboxtriage/inboxtriage/internal/rules"
	"github.com/inboxtriage/inboxtriage/internal/state"
)

// Details is the per-message view the pipeline decides on.
type Details struct {
	Subject       string
	FormattedDate string
	RawDate       string
	Sender        string
	Unread        bool
}

// detailEntry caches one lookup result. Negative results are cached too,
// so a known-bad message costs one API call per run, not one per query.
type detailEntry struct {
	ok      bool
	reason  string
	details Details
}

// Counts aggregates what a run did, for the summary log line and the
// run-history journal.
type Counts struct {
	Modified int
	Skipped  int
	Deleted  int
}

// Service owns one run's worth of pipeline state. All caches are scoped
// to the service instance; construct a fresh one per run.
type Service struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Log     *slog.Logger
	Clock   func() time.Time
	DryRun  bool

	Engine         *rules.Engine
	ExistingLabels map[string]gmail.LabelID
	Ledger         *state.Ledger

	runSeen     map[gmail.MessageID]struct{}
	metaCache   map[gmail.MessageID]gmail.MessageMeta
	detailCache map[gmail.MessageID]detailEntry
	queryDedup  map[string]struct{}

	Counts Counts
}

// NewService constructs a run-scoped pipeline service.
func NewService(client gmail.Client, limiter rate.Limiter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if limiter == nil {
		limiter = rate.NoLimit{}
	}
	return &Service{
		Client:      client,
		Limiter:     limiter,
		Log:         log,
		Clock:       time.Now,
		runSeen:     map[gmail.MessageID]struct{}{},
		metaCache:   map[gmail.MessageID]gmail.MessageMeta{},
		detailCache: map[gmail.MessageID]detailEntry{},
		queryDedup:  map[string]struct{}{},
	}
}

// messageMeta returns the raw message metadata, fetching on cache miss.
func (s *Service) messageMeta(ctx context.Context, id gmail.MessageID) (gmail.MessageMeta, error) {
	if meta, ok := s.metaCache[id]; ok {
		return meta, nil
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return gmail.MessageMeta{}, err
	}
	meta, err := s.Client.Get(ctx, id)
	if err != nil {
		return gmail.MessageMeta{}, err
	}
	s.metaCache[id] = meta
	return meta, nil
}

// messageDetails resolves (subject, date, sender, unread) for a message,
// memoizing both hits and misses for the rest of the run.
func (s *Service) messageDetails(ctx context.Context, id gmail.MessageID) (Details, bool) {
	if entry, ok := s.detailCache[id]; ok {
		if !entry.ok {
			s.Log.Debug("details unavailable (cached)", "id", id, "reason", entry.reason)
		}
		return entry.details, entry.ok
	}

	meta, err := s.messageMeta(ctx, id)
	if err != nil {
		s.Log.Error("failed to get message details", "id", id, "error", err)
		s.detailCache[id] = detailEntry{reason: "fetch failed"}
		return Details{}, false
	}

	subject := meta.Header("Subject")
	rawDate := meta.Header("Date")
	sender := meta.Header("From")
	if subject == "" || rawDate == "" || sender == "" {
		reason := fmt.Sprintf("missing headers (subject=%t date=%t sender=%t)",
			subject != "", rawDate != "", sender != "")
		s.Log.Error("incomplete message details", "id", id, "reason", reason)
		s.detailCache[id] = detailEntry{reason: reason}
		return Details{}, false
	}

	parsed, err := maildate.Parse(rawDate)
	if err != nil {
		s.Log.Error("unparseable date header", "id", id, "date", rawDate, "error", err)
		s.detailCache[id] = detailEntry{reason: "unparseable date"}
		return Details{}, false
	}

	details := Details{
		Subject:       subject,
		FormattedDate: maildate.Format(parsed),
		RawDate:       rawDate,
		Sender:        sender,
		Unread:        meta.IsUnread(),
	}
	s.detailCache[id] = detailEntry{ok: true, details: details}
	return details, true
}

// fetchQuery lists every message ID matching the query, following page
// tokens until exhausted. The same query text is never issued twice in
// one run.
func (s *Service) fetchQuery(ctx context.Context, query string) ([]gmail.MessageID, error) {
	if _, dup := s.queryDedup[query]; dup {
		s.Log.Debug("query already processed this run", "query", query)
		return nil, nil
	}
	s.queryDedup[query] = struct{}{}

	var ids []gmail.MessageID
	pageToken := ""
	for {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := s.Client.List(ctx, gmail.Query{Raw: query}, pageToken, 0)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", query, err)
		}
		ids = append(ids, page.IDs...)
		if page.NextPageToken == "" {
			return ids, nil
		}
		pageToken = page.NextPageToken
	}
}

// batchFetch warms the metadata cache for a batch of IDs. Individual
// failures are logged and leave that ID cold.
func (s *Service) batchFetch(ctx context.Context, ids []gmail.MessageID) {
	for _, id := range ids {
		if _, ok := s.metaCache[id]; ok {
			continue
		}
		if _, err := s.messageMeta(ctx, id); err != nil {
			s.Log.Error("batch fetch failed for message", "id", id, "error", err)
		}
	}
}
