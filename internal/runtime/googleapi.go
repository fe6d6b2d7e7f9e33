// googleapi.go adapts *gmail.Service to the narrow client interface and
// layers bounded-backoff retries over every call.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	gmailapi "google.golang.org/api/gmail/v1"

	gc "github.com/inboxtriage/inboxtriage/internal/gmail"
)

const (
	defaultMaxRetries = 5
	maxBackoff        = 64 * time.Second
)

type googleClient struct {
	svc        *gmailapi.Service
	log        *slog.Logger
	maxRetries int
	sleep      func(context.Context, time.Duration) error
}

// NewGoogleAPIClient wraps an authenticated *gmail.Service.
func NewGoogleAPIClient(svc *gmailapi.Service, log *slog.Logger) *googleClient {
	if log == nil {
		log = DefaultLogger()
	}
	return &googleClient{svc: svc, log: log, maxRetries: defaultMaxRetries, sleep: sleepCtx}
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

// execute runs one prepared API call with bounded exponential backoff.
// 429 and (when retryForbidden) 403 responses wait min(2^attempt+U(0,1), 64s)
// and retry; 400/failedPrecondition maps to gmail.ErrPrecondition, 404 to
// gmail.ErrNotFound; anything else propagates immediately.
func (g *googleClient) execute(ctx context.Context, op string, retryForbidden bool, fn func() error) error {
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		apiErr, ok := err.(*googleapi.Error)
		if !ok {
			return err
		}
		switch {
		case apiErr.Code == 429 || (apiErr.Code == 403 && retryForbidden):
			wait := (1<<attempt)*time.Second + time.Duration(rand.Float64()*float64(time.Second))
			if wait > maxBackoff {
				wait = maxBackoff
			}
			g.log.Warn("rate limited, backing off", "op", op, "status", apiErr.Code, "wait", wait)
			if sleepErr := g.sleep(ctx, wait); sleepErr != nil {
				return sleepErr
			}
		case apiErr.Code == 403:
			return fmt.Errorf("%w: %s: %v", gc.ErrPermissionDenied, op, err)
		case apiErr.Code == 404:
			return fmt.Errorf("%w: %s: %v", gc.ErrNotFound, op, err)
		case apiErr.Code == 400 && hasReason(apiErr, "failedPrecondition"):
			return fmt.Errorf("%w: %s", gc.ErrPrecondition, op)
		default:
			return err
		}
	}
	return fmt.Errorf("%s: max retries exceeded", op)
}

func hasReason(err *googleapi.Error, reason string) bool {
	for _, item := range err.Errors {
		if item.Reason == reason {
			return true
		}
	}
	return strings.Contains(err.Message, reason)
}

func (g *googleClient) List(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List("me").Q(q.Raw)
	if pageSize > 0 {
		call = call.MaxResults(int64(pageSize))
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	var res *gmailapi.ListMessagesResponse
	err := g.execute(ctx, "messages.list", true, func() error {
		var callErr error
		res, callErr = call.Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return gc.ListPage{}, err
	}
	page := gc.ListPage{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, gc.MessageID(m.Id))
	}
	return page, nil
}

func (g *googleClient) Get(ctx context.Context, id gc.MessageID) (gc.MessageMeta, error) {
	var msg *gmailapi.Message
	err := g.execute(ctx, "messages.get", true, func() error {
		var callErr error
		msg, callErr = g.svc.Users.Messages.Get("me", string(id)).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return gc.MessageMeta{}, err
	}
	return toMeta(id, msg), nil
}

func (g *googleClient) Modify(ctx context.Context, id gc.MessageID, ops gc.ModifyOps) error {
	req := &gmailapi.ModifyMessageRequest{
		AddLabelIds:    toStrings(ops.AddLabels),
		RemoveLabelIds: toStrings(ops.RemoveLabels),
	}
	return g.execute(ctx, "messages.modify", true, func() error {
		_, callErr := g.svc.Users.Messages.Modify("me", string(id), req).Context(ctx).Do()
		return callErr
	})
}

func (g *googleClient) Delete(ctx context.Context, id gc.MessageID) error {
	// 403 here means the granted scope cannot delete; never retried.
	return g.execute(ctx, "messages.delete", false, func() error {
		return g.svc.Users.Messages.Delete("me", string(id)).Context(ctx).Do()
	})
}

func (g *googleClient) ListLabels(ctx context.Context) (map[string]gc.LabelID, map[gc.LabelID]string, error) {
	var lr *gmailapi.ListLabelsResponse
	err := g.execute(ctx, "labels.list", true, func() error {
		var callErr error
		lr, callErr = g.svc.Users.Labels.List("me").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, nil, err
	}
	byName := map[string]gc.LabelID{}
	byID := map[gc.LabelID]string{}
	for _, l := range lr.Labels {
		byName[l.Name] = gc.LabelID(l.Id)
		byID[gc.LabelID(l.Id)] = l.Name
	}
	return byName, byID, nil
}

func (g *googleClient) ListUserLabels(ctx context.Context) ([]gc.Label, error) {
	var lr *gmailapi.ListLabelsResponse
	err := g.execute(ctx, "labels.list", true, func() error {
		var callErr error
		lr, callErr = g.svc.Users.Labels.List("me").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, err
	}
	out := make([]gc.Label, 0, len(lr.Labels))
	for _, l := range lr.Labels {
		out = append(out, gc.Label{ID: gc.LabelID(l.Id), Name: l.Name, Type: l.Type})
	}
	return out, nil
}

func (g *googleClient) ListThreads(ctx context.Context, label gc.LabelID, pageToken string, pageSize int) (gc.ThreadPage, error) {
	call := g.svc.Users.Threads.List("me").LabelIds(string(label))
	if pageSize > 0 {
		call = call.MaxResults(int64(pageSize))
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	var res *gmailapi.ListThreadsResponse
	err := g.execute(ctx, "threads.list", true, func() error {
		var callErr error
		res, callErr = call.Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return gc.ThreadPage{}, err
	}
	page := gc.ThreadPage{NextPageToken: res.NextPageToken}
	for _, t := range res.Threads {
		page.IDs = append(page.IDs, gc.ThreadID(t.Id))
	}
	return page, nil
}

func (g *googleClient) GetThread(ctx context.Context, id gc.ThreadID) (gc.ThreadDetail, error) {
	var th *gmailapi.Thread
	err := g.execute(ctx, "threads.get", true, func() error {
		var callErr error
		th, callErr = g.svc.Users.Threads.Get("me", string(id)).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return gc.ThreadDetail{}, err
	}
	detail := gc.ThreadDetail{ID: id}
	for _, m := range th.Messages {
		detail.Messages = append(detail.Messages, toMeta(gc.MessageID(m.Id), m))
	}
	return detail, nil
}

func toMeta(id gc.MessageID, msg *gmailapi.Message) gc.MessageMeta {
	meta := gc.MessageMeta{ID: id, Headers: map[string]string{}}
	for _, lid := range msg.LabelIds {
		meta.LabelIDs = append(meta.LabelIDs, gc.LabelID(lid))
	}
	if msg.Payload != nil {
		for _, hd := range msg.Payload.Headers {
			meta.Headers[hd.Name] = hd.Value
		}
	}
	return meta
}

func toStrings(ids []gc.LabelID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

var _ gc.Client = (*googleClient)(nil)
