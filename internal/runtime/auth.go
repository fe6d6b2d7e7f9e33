// internal/runtime/auth.go
package runtime

import (
	"context"
	"log/slog"
	"os"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	gmailapi "google.golang.org/api/gmail/v1"

	gc "github.com/inboxtriage/inboxtriage/internal/gmail"
)

// Scope selects the Gmail OAuth scope requested on first run.
type Scope int

const (
	// ScopeReadonly is enough for the audit and extract tools.
	ScopeReadonly Scope = iota
	// ScopeModify allows labeling, archiving and marking read.
	ScopeModify
	// ScopeFull additionally allows messages.delete.
	ScopeFull
)

// NewGmailClient builds an authenticated client using the localcred
// provider, which stores tokens under cfgDir.
func NewGmailClient(ctx context.Context, cfgDir string, scope Scope, log *slog.Logger) (gc.Client, error) {
	var svc *gmailapi.Service
	var err error
	switch scope {
	case ScopeReadonly:
		svc, err = (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, gmailapi.GmailReadonlyScope)
	case ScopeModify:
		svc, err = (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, gmailapi.GmailModifyScope)
	case ScopeFull:
		svc, err = (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, gmailapi.MailGoogleComScope)
	default:
		panic("unknown scope")
	}
	if err != nil {
		return nil, err
	}
	return NewGoogleAPIClient(svc, log), nil
}

// DefaultLogger matches the binaries' stderr text logger.
func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
