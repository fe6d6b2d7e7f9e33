package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	gc "github.com/inboxtriage/inboxtriage/internal/gmail"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(sleeps *[]time.Duration) *googleClient {
	return &googleClient{
		log:        slogDiscard(),
		maxRetries: defaultMaxRetries,
		sleep: func(_ context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		},
	}
}

func TestExecuteRetriesRateLimit(t *testing.T) {
	var sleeps []time.Duration
	g := testClient(&sleeps)

	calls := 0
	err := g.execute(context.Background(), "messages.list", true, func() error {
		calls++
		if calls < 3 {
			return &googleapi.Error{Code: 429}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(sleeps))
	}
	// 2^0 and 2^1 seconds plus up to a second of jitter.
	if sleeps[0] < time.Second || sleeps[0] > 2*time.Second {
		t.Fatalf("first wait %v out of range", sleeps[0])
	}
	if sleeps[1] < 2*time.Second || sleeps[1] > 3*time.Second {
		t.Fatalf("second wait %v out of range", sleeps[1])
	}
}

func TestExecuteGivesUpAfterMaxRetries(t *testing.T) {
	var sleeps []time.Duration
	g := testClient(&sleeps)

	calls := 0
	err := g.execute(context.Background(), "messages.list", true, func() error {
		calls++
		return &googleapi.Error{Code: 429}
	})
	if err == nil {
		t.Fatalf("expected terminal error")
	}
	if calls != defaultMaxRetries {
		t.Fatalf("expected %d attempts, got %d", defaultMaxRetries, calls)
	}
}

func TestExecuteForbiddenHandling(t *testing.T) {
	var sleeps []time.Duration
	g := testClient(&sleeps)

	// With retryForbidden, a 403 backs off like a rate limit.
	calls := 0
	err := g.execute(context.Background(), "messages.modify", true, func() error {
		calls++
		if calls == 1 {
			return &googleapi.Error{Code: 403}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sleeps) != 1 {
		t.Fatalf("expected 1 backoff, got %d", len(sleeps))
	}

	// Without it, 403 maps immediately to the permission sentinel.
	sleeps = sleeps[:0]
	err = g.execute(context.Background(), "messages.delete", false, func() error {
		return &googleapi.Error{Code: 403}
	})
	if !errors.Is(err, gc.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(sleeps) != 0 {
		t.Fatalf("permission denial must not back off")
	}
}

func TestExecuteErrorMapping(t *testing.T) {
	var sleeps []time.Duration
	g := testClient(&sleeps)

	err := g.execute(context.Background(), "messages.modify", true, func() error {
		return &googleapi.Error{
			Code:   400,
			Errors: []googleapi.ErrorItem{{Reason: "failedPrecondition"}},
		}
	})
	if !errors.Is(err, gc.ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}

	err = g.execute(context.Background(), "messages.get", true, func() error {
		return &googleapi.Error{Code: 404}
	})
	if !errors.Is(err, gc.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	plain := errors.New("network down")
	err = g.execute(context.Background(), "messages.get", true, func() error { return plain })
	if !errors.Is(err, plain) {
		t.Fatalf("non-API errors must propagate unchanged, got %v", err)
	}
}
