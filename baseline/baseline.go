// Package baseline resolves, downloads, and watches the committed version of
// a local file that gutter classifications are computed against.
package baseline

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound means no baseline is mapped to the path. It is not
	// transient: the document has no baseline to compare against.
	ErrNotFound = errors.New("baseline: not found")

	// ErrServiceUnavailable means the baseline service could not be reached.
	// It is transient and retried on the next poll.
	ErrServiceUnavailable = errors.New("baseline: service unavailable")
)

// Item is one committed version of a server item. Items are replaced
// wholesale, never mutated.
type Item struct {
	ServerPath string
	Encoding   string
	// CommitTime identifies the committed version. A different CommitTime
	// means different content.
	CommitTime time.Time
	// Content is nil until the item is fetched.
	Content []byte
}

// Same reports whether two items refer to the same committed version.
func (it *Item) Same(other *Item) bool {
	if it == nil || other == nil {
		return it == other
	}
	return it.ServerPath == other.ServerPath && it.CommitTime.Equal(other.CommitTime)
}

// Token returns a string that changes whenever the committed version does.
func (it *Item) Token() string {
	if it == nil {
		return ""
	}
	return it.ServerPath + "@" + it.CommitTime.UTC().Format(time.RFC3339Nano)
}

// Rename is a local rename that has not been committed yet.
type Rename struct {
	SourceServerPath string
	TargetServerPath string
}

// CommitEvent reports that a commit touched a server item.
type CommitEvent struct {
	ServerPath string
	CommitTime time.Time
}

// Repository is the source of truth for committed items. Implementations
// return ErrNotFound and ErrServiceUnavailable (possibly wrapped) for the
// corresponding conditions.
type Repository interface {
	// ServerPath maps a local path to its server item path.
	ServerPath(ctx context.Context, localPath string) (string, error)
	// PendingRenames lists uncommitted renames whose target is localPath.
	PendingRenames(ctx context.Context, localPath string) ([]Rename, error)
	// Item returns the metadata of the latest commit of serverPath.
	Item(ctx context.Context, serverPath string) (*Item, error)
	// Open streams the content of item.
	Open(ctx context.Context, item *Item) (io.ReadCloser, error)
	// Subscribe registers fn for commit notifications. fn must not block.
	Subscribe(fn func(CommitEvent)) (cancel func())
}
