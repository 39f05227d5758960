package baseline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// Provider resolves local paths to baseline items on top of a Repository.
type Provider struct {
	repo   Repository
	logger *slog.Logger
}

// NewProvider creates a provider backed by repo.
func NewProvider(repo Repository, opts ...Option) *Provider {
	p := &Provider{repo: repo, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Resolve returns the metadata of the committed version mapped to localPath.
// When exactly one pending rename targets the path, the item is looked up
// under the rename's source path, since the new path has no commits yet.
func (p *Provider) Resolve(ctx context.Context, localPath string) (*Item, error) {
	renames, err := p.repo.PendingRenames(ctx, localPath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: pending renames: %w", localPath, err)
	}

	var serverPath string
	if len(renames) == 1 {
		serverPath = renames[0].SourceServerPath
		p.logger.Debug("resolving through pending rename",
			"path", localPath, "source", serverPath, "target", renames[0].TargetServerPath)
	} else {
		serverPath, err = p.repo.ServerPath(ctx, localPath)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", localPath, err)
		}
	}

	item, err := p.repo.Item(ctx, serverPath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: item %s: %w", localPath, serverPath, err)
	}
	return &Item{ServerPath: item.ServerPath, Encoding: item.Encoding, CommitTime: item.CommitTime}, nil
}

// Download streams the content of item. Failures are returned as is; the
// caller decides whether to retry.
func (p *Provider) Download(ctx context.Context, item *Item) (io.ReadCloser, error) {
	rc, err := p.repo.Open(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", item.ServerPath, err)
	}
	return rc, nil
}

// Fetch downloads item and returns a copy of it with Content filled in.
func (p *Provider) Fetch(ctx context.Context, item *Item) (*Item, error) {
	rc, err := p.Download(ctx, item)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", item.ServerPath, err)
	}
	fetched := *item
	fetched.Content = content
	return &fetched, nil
}

// WatchCommits calls fn for every commit the repository reports. The
// returned function stops the notifications.
func (p *Provider) WatchCommits(fn func(CommitEvent)) (unsubscribe func()) {
	return p.repo.Subscribe(fn)
}
