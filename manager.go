package gutter

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gossip-lsp/gutter/baseline"
	"github.com/gossip-lsp/gutter/document"
	"github.com/gossip-lsp/gutter/protocol"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger handed to every controller.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithManagerPool sets the pool shared by all controllers.
func WithManagerPool(p *Pool) ManagerOption {
	return func(m *Manager) { m.pool = p }
}

// WithManagerSettings makes every controller follow s.
func WithManagerSettings(s SettingsWatcher) ManagerOption {
	return func(m *Manager) { m.settings = s }
}

// WithManagerPollInterval sets the baseline poll interval of every
// controller.
func WithManagerPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.interval = d }
}

// Manager keeps one Controller per open document of a document.Store.
// Opening a document creates and activates its controller, edits and saves
// are forwarded, and closing disposes it.
type Manager struct {
	docs     *document.Store
	provider *baseline.Provider
	notifier *Notifier
	settings SettingsWatcher
	pool     *Pool
	logger   *slog.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	controllers map[protocol.DocumentURI]*Controller
	closed      bool
}

// NewManager attaches a manager to docs.
func NewManager(docs *document.Store, provider *baseline.Provider, notifier *Notifier, opts ...ManagerOption) *Manager {
	m := &Manager{
		docs:        docs,
		provider:    provider,
		notifier:    notifier,
		logger:      slog.Default(),
		interval:    baseline.DefaultInterval,
		controllers: make(map[protocol.DocumentURI]*Controller),
	}
	for _, o := range opts {
		o(m)
	}
	if m.pool == nil {
		m.pool = NewPool(0)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	docs.OnOpen(m.opened)
	docs.OnChange(func(snap *document.Snapshot) {
		if c := m.Controller(snap.URI()); c != nil {
			m.report("documentChanged", c, c.DocumentChanged(m.ctx, snap))
		}
	})
	docs.OnSave(func(snap *document.Snapshot) {
		if c := m.Controller(snap.URI()); c != nil {
			m.report("fileReloaded", c, c.FileReloaded(m.ctx, snap))
		}
	})
	docs.OnClose(m.closedDoc)
	return m
}

// Pool returns the pool shared by the manager's controllers.
func (m *Manager) Pool() *Pool { return m.pool }

func (m *Manager) opened(snap *document.Snapshot) {
	uri := snap.URI()
	opts := []ControllerOption{
		WithControllerLogger(m.logger),
		WithControllerPool(m.pool),
		WithControllerPollInterval(m.interval),
	}
	if m.settings != nil {
		opts = append(opts, WithControllerSettings(m.settings))
	}
	c := NewController(uri, LocalPath(uri), m.provider, m.notifier, opts...)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	prev := m.controllers[uri]
	m.controllers[uri] = c
	m.mu.Unlock()

	if prev != nil {
		prev.Dispose()
	}
	m.report("activate", c, c.Activate(m.ctx, snap))
}

func (m *Manager) closedDoc(uri protocol.DocumentURI) {
	m.mu.Lock()
	c := m.controllers[uri]
	delete(m.controllers, uri)
	m.mu.Unlock()
	if c != nil {
		c.Dispose()
	}
}

func (m *Manager) report(op string, c *Controller, err error) {
	if err == nil || errors.Is(err, ErrDisposed) || errors.Is(err, context.Canceled) {
		return
	}
	m.logger.Error("gutter operation failed", "op", op, "uri", string(c.URI()), "error", err)
}

// Controller returns the controller of uri, or nil if it is not open.
func (m *Manager) Controller(uri protocol.DocumentURI) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controllers[uri]
}

// Controllers returns all controllers ordered by URI.
func (m *Manager) Controllers() []*Controller {
	m.mu.Lock()
	out := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		out = append(out, c)
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b *Controller) int { return strings.Compare(string(a.uri), string(b.uri)) })
	return out
}

func (m *Manager) each(fn func(*Controller) error) error {
	var errs []error
	for _, c := range m.Controllers() {
		if err := fn(c); err != nil && !errors.Is(err, ErrDisposed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) one(uri protocol.DocumentURI, fn func(*Controller) error) error {
	c := m.Controller(uri)
	if c == nil {
		return nil
	}
	if err := fn(c); err != nil && !errors.Is(err, ErrDisposed) {
		return err
	}
	return nil
}

// ViewReflowed forwards a layout change of the view showing uri.
func (m *Manager) ViewReflowed(ctx context.Context, uri protocol.DocumentURI, hasTextImpact bool) error {
	return m.one(uri, func(c *Controller) error { return c.ViewReflowed(ctx, hasTextImpact) })
}

// ZoomChanged forwards a zoom change of the view showing uri.
func (m *Manager) ZoomChanged(ctx context.Context, uri protocol.DocumentURI) error {
	return m.one(uri, func(c *Controller) error { return c.ZoomChanged(ctx) })
}

// FormatMapChanged forwards a color or font change to every controller.
func (m *Manager) FormatMapChanged(ctx context.Context) error {
	return m.each(func(c *Controller) error { return c.FormatMapChanged(ctx) })
}

// RefreshBaseline re-resolves the baseline of uri, or of every document
// when uri is empty.
func (m *Manager) RefreshBaseline(ctx context.Context, uri protocol.DocumentURI) error {
	if uri == "" {
		return m.each(func(c *Controller) error { return c.RefreshBaseline(ctx) })
	}
	return m.one(uri, func(c *Controller) error { return c.RefreshBaseline(ctx) })
}

// ProjectContextChanged reactivates every controller from scratch.
func (m *Manager) ProjectContextChanged(ctx context.Context) error {
	return m.each(func(c *Controller) error { return c.ProjectContextChanged(ctx) })
}

// Close disposes every controller. Documents opened afterwards get none.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	cs := m.controllers
	m.controllers = make(map[protocol.DocumentURI]*Controller)
	m.mu.Unlock()

	m.cancel()
	for _, c := range cs {
		c.Dispose()
	}
}

// LocalPath converts a document URI to the local path the baseline
// repository knows it by. Non-file URIs are returned unchanged.
func LocalPath(uri protocol.DocumentURI) string {
	s := string(uri)
	if !strings.HasPrefix(s, "file://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return strings.TrimPrefix(s, "file://")
	}
	return filepath.FromSlash(u.Path)
}
