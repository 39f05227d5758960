// Package baselinetest provides an in-memory baseline.Repository for tests.
package baselinetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gossip-lsp/gutter/baseline"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Repository is an in-memory baseline.Repository with controllable failures.
type Repository struct {
	mu          sync.Mutex
	paths       map[string]string
	items       map[string][]*baseline.Item
	renames     map[string][]baseline.Rename
	unavailable bool
	openErr     error
	opens       int
	clock       time.Time
	subs        map[int]func(baseline.CommitEvent)
	nextSub     int
}

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		paths:   make(map[string]string),
		items:   make(map[string][]*baseline.Item),
		renames: make(map[string][]baseline.Rename),
		clock:   epoch,
		subs:    make(map[int]func(baseline.CommitEvent)),
	}
}

// Map maps localPath to serverPath.
func (r *Repository) Map(localPath, serverPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[localPath] = serverPath
}

// Unmap removes the mapping of localPath.
func (r *Repository) Unmap(localPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, localPath)
}

// AddRename records a pending rename targeting localPath.
func (r *Repository) AddRename(localPath string, rename baseline.Rename) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renames[localPath] = append(r.renames[localPath], rename)
}

// SetUnavailable makes every call fail with ErrServiceUnavailable.
func (r *Repository) SetUnavailable(unavailable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = unavailable
}

// FailOpen makes Open fail with err; nil restores it.
func (r *Repository) FailOpen(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openErr = err
}

// Opens returns how many times Open succeeded.
func (r *Repository) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// Put stores a new UTF-8 version of serverPath without notifying
// subscribers, as if the commit happened while nobody was listening.
func (r *Repository) Put(serverPath, content string) *baseline.Item {
	return r.PutEncoded(serverPath, "utf-8", []byte(content))
}

// PutEncoded is Put with explicit encoding and raw bytes.
func (r *Repository) PutEncoded(serverPath, encoding string, content []byte) *baseline.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = r.clock.Add(time.Second)
	item := &baseline.Item{
		ServerPath: serverPath,
		Encoding:   encoding,
		CommitTime: r.clock,
		Content:    bytes.Clone(content),
	}
	r.items[serverPath] = append(r.items[serverPath], item)
	return item
}

// Commit stores a new version of serverPath and notifies subscribers.
func (r *Repository) Commit(serverPath, content string) *baseline.Item {
	item := r.Put(serverPath, content)

	r.mu.Lock()
	ids := slices.Sorted(maps.Keys(r.subs))
	fns := make([]func(baseline.CommitEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.subs[id])
	}
	r.mu.Unlock()

	ev := baseline.CommitEvent{ServerPath: item.ServerPath, CommitTime: item.CommitTime}
	for _, fn := range fns {
		fn(ev)
	}
	return item
}

func (r *Repository) ServerPath(ctx context.Context, localPath string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return "", baseline.ErrServiceUnavailable
	}
	sp, ok := r.paths[localPath]
	if !ok {
		return "", fmt.Errorf("%s: %w", localPath, baseline.ErrNotFound)
	}
	return sp, nil
}

func (r *Repository) PendingRenames(ctx context.Context, localPath string) ([]baseline.Rename, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return nil, baseline.ErrServiceUnavailable
	}
	return slices.Clone(r.renames[localPath]), nil
}

func (r *Repository) Item(ctx context.Context, serverPath string) (*baseline.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return nil, baseline.ErrServiceUnavailable
	}
	versions := r.items[serverPath]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%s: %w", serverPath, baseline.ErrNotFound)
	}
	item := versions[len(versions)-1]
	return &baseline.Item{ServerPath: item.ServerPath, Encoding: item.Encoding, CommitTime: item.CommitTime}, nil
}

func (r *Repository) Open(ctx context.Context, item *baseline.Item) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return nil, baseline.ErrServiceUnavailable
	}
	if r.openErr != nil {
		return nil, r.openErr
	}
	for _, stored := range r.items[item.ServerPath] {
		if stored.CommitTime.Equal(item.CommitTime) {
			r.opens++
			return io.NopCloser(bytes.NewReader(stored.Content)), nil
		}
	}
	return nil, fmt.Errorf("%s at %s: %w", item.ServerPath, item.CommitTime, baseline.ErrNotFound)
}

func (r *Repository) Subscribe(fn func(baseline.CommitEvent)) (cancel func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Subscribers returns the number of live subscriptions.
func (r *Repository) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
