package gmail

import (
	"context"
	"errors"
)

// ErrPrecondition signals a modify call the API rejected with a
// failedPrecondition reason. The operation must be skipped, not retried.
var ErrPrecondition = errors.New("gmail: failed precondition")

// ErrPermissionDenied signals a delete the granted OAuth scope does not
// allow. Callers downgrade this to a warning; the run continues.
var ErrPermissionDenied = errors.New("gmail: permission denied")

// ErrNotFound signals a message that no longer exists, typically one
// already deleted through another client.
var ErrNotFound = errors.New("gmail: message not found")

// Client is the narrow Gmail surface required by inboxtriage.
type Client interface {
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	Get(ctx context.Context, id MessageID) (MessageMeta, error)
	Modify(ctx context.Context, id MessageID, ops ModifyOps) error
	Delete(ctx context.Context, id MessageID) error
	ListLabels(ctx context.Context) (map[string]LabelID, map[LabelID]string, error)
	ListUserLabels(ctx context.Context) ([]Label, error)
	ListThreads(ctx context.Context, label LabelID, pageToken string, pageSize int) (ThreadPage, error)
	GetThread(ctx context.Context, id ThreadID) (ThreadDetail, error)
}
