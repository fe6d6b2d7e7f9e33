package gmail

import "strings"

// MessageID is the opaque Gmail message identifier.
type MessageID string

// LabelID is the opaque Gmail label identifier.
type LabelID string

// ThreadID is the opaque Gmail thread identifier.
type ThreadID string

// Well-known system labels consumed by the pipeline.
const (
	LabelInbox  LabelID = "INBOX"
	LabelUnread LabelID = "UNREAD"
)

// MessageMeta is the slice of a Gmail message the pipeline observes:
// headers (keyed by canonical header name) and the current label set.
// Messages are mutated only through Modify/Delete.
type MessageMeta struct {
	ID       MessageID
	LabelIDs []LabelID
	Headers  map[string]string // Subject, Date, From, ...
}

// Header returns the first header whose name matches case-insensitively,
// or "" when absent.
func (m MessageMeta) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HasLabel reports whether the message currently carries the label.
func (m MessageMeta) HasLabel(id LabelID) bool {
	for _, l := range m.LabelIDs {
		if l == id {
			return true
		}
	}
	return false
}

// IsUnread reports whether the UNREAD system label is present.
func (m MessageMeta) IsUnread() bool { return m.HasLabel(LabelUnread) }

// ModifyOps describes a single combined messages.modify call.
type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
}

// Query is a fully formed Gmail search string
// (e.g. `from:foo@example.com label:inbox after:1726440000`).
type Query struct {
	Raw string
}

// ListPage is one page of a messages.list response.
type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

// ThreadPage is one page of a threads.list response.
type ThreadPage struct {
	IDs           []ThreadID
	NextPageToken string
}

// ThreadDetail carries the per-message metadata of a thread, enough for
// the label-extraction tool to mine sender addresses.
type ThreadDetail struct {
	ID       ThreadID
	Messages []MessageMeta
}

// Label pairs a label's identity with its type as reported by labels.list.
type Label struct {
	ID   LabelID
	Name string
	Type string // "user" or "system"
}
