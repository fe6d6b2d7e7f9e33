package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
)

type fakeClient struct {
	labels    []gmail.Label
	threads   map[gmail.LabelID][]gmail.ThreadDetail
	threadErr map[gmail.LabelID]error
}

func (f *fakeClient) List(context.Context, gmail.Query, string, int) (gmail.ListPage, error) {
	return gmail.ListPage{}, nil
}

func (f *fakeClient) Get(context.Context, gmail.MessageID) (gmail.MessageMeta, error) {
	return gmail.MessageMeta{}, nil
}

func (f *fakeClient) Modify(context.Context, gmail.MessageID, gmail.ModifyOps) error { return nil }

func (f *fakeClient) Delete(context.Context, gmail.MessageID) error { return nil }

func (f *fakeClient) ListLabels(context.Context) (map[string]gmail.LabelID, map[gmail.LabelID]string, error) {
	return nil, nil, nil
}

func (f *fakeClient) ListUserLabels(context.Context) ([]gmail.Label, error) {
	return f.labels, nil
}

func (f *fakeClient) ListThreads(_ context.Context, label gmail.LabelID, _ string, _ int) (gmail.ThreadPage, error) {
	if err := f.threadErr[label]; err != nil {
		return gmail.ThreadPage{}, err
	}
	page := gmail.ThreadPage{}
	for _, detail := range f.threads[label] {
		page.IDs = append(page.IDs, detail.ID)
	}
	return page, nil
}

func (f *fakeClient) GetThread(_ context.Context, id gmail.ThreadID) (gmail.ThreadDetail, error) {
	for _, details := range f.threads {
		for _, detail := range details {
			if detail.ID == id {
				return detail, nil
			}
		}
	}
	return gmail.ThreadDetail{}, errors.New("thread not found")
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func thread(id gmail.ThreadID, froms ...string) gmail.ThreadDetail {
	detail := gmail.ThreadDetail{ID: id}
	for i, from := range froms {
		detail.Messages = append(detail.Messages, gmail.MessageMeta{
			ID:      gmail.MessageID(string(id) + "-" + string(rune('a'+i))),
			Headers: map[string]string{"From": from},
		})
	}
	return detail
}

func newTestService(fake *fakeClient) *Service {
	svc := NewService(fake, nil, slogDiscard())
	svc.Sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func TestRunMinesUserLabels(t *testing.T) {
	fake := &fakeClient{
		labels: []gmail.Label{
			{ID: "L1", Name: "News", Type: "user"},
			{ID: "L2", Name: "CATEGORY_SOCIAL", Type: "user"},
			{ID: "L3", Name: "CHAT", Type: "user"},
			{ID: "L4", Name: "INBOX", Type: "system"},
			{ID: "L5", Name: "Empty", Type: "user"},
		},
		threads: map[gmail.LabelID][]gmail.ThreadDetail{
			"L1": {
				thread("t1", "News Desk <news@example.com>", "digest@example.com"),
				thread("t2", "news@example.com", "Broken Header No Address"),
			},
		},
	}
	svc := newTestService(fake)

	seed, err := svc.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seed.SenderToLabels) != 1 {
		t.Fatalf("expected only News in seed, got %v", seed.SenderToLabels)
	}
	groups := seed.SenderToLabels["News"]
	if len(groups) != 1 {
		t.Fatalf("groups = %v", groups)
	}
	group := groups[0]
	if group.ReadStatus || group.DeleteAfterDays != 30 {
		t.Fatalf("defaults = %+v", group)
	}
	want := []string{"digest@example.com", "news@example.com"}
	if len(group.Emails) != len(want) {
		t.Fatalf("emails = %v", group.Emails)
	}
	for i := range want {
		if group.Emails[i] != want[i] {
			t.Fatalf("emails = %v, want %v", group.Emails, want)
		}
	}
}

func TestRunSkipsFailingLabel(t *testing.T) {
	fake := &fakeClient{
		labels: []gmail.Label{
			{ID: "L1", Name: "Broken", Type: "user"},
			{ID: "L2", Name: "News", Type: "user"},
		},
		threads: map[gmail.LabelID][]gmail.ThreadDetail{
			"L2": {thread("t1", "news@example.com")},
		},
		threadErr: map[gmail.LabelID]error{"L1": errors.New("boom")},
	}
	svc := newTestService(fake)

	seed, err := svc.Run(context.Background(), Options{BatchSize: 1})
	if err != nil {
		t.Fatalf("one bad label must not fail the run: %v", err)
	}
	if _, ok := seed.SenderToLabels["Broken"]; ok {
		t.Fatalf("failing label should be skipped")
	}
	if _, ok := seed.SenderToLabels["News"]; !ok {
		t.Fatalf("healthy label should be mined")
	}
}

func TestWriteSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "gmail_labels_data.json")
	seed := Seed{SenderToLabels: map[string][]SeedGroup{
		"News": {{DeleteAfterDays: 30, Emails: []string{"news@example.com"}}},
	}}
	if err := WriteSeed(seed, path); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var decoded map[string]map[string][]SeedGroup
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("seed is not valid JSON: %v", err)
	}
	if len(decoded["SENDER_TO_LABELS"]["News"]) != 1 {
		t.Fatalf("decoded = %v", decoded)
	}
}
