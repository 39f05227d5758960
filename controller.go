package gutter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/gossip-lsp/gutter/baseline"
	"github.com/gossip-lsp/gutter/classify"
	"github.com/gossip-lsp/gutter/document"
	"github.com/gossip-lsp/gutter/linediff"
	"github.com/gossip-lsp/gutter/protocol"
)

// Cache is a published classification together with the key it was
// computed from. It is never modified after it is stored.
type Cache struct {
	Classification   *classify.Classification
	BaselineToken    string
	Version          int32
	IgnoreWhitespace bool
}

func (c *Cache) sameKey(token string, version int32, ignore bool) bool {
	return c != nil && c.BaselineToken == token && c.Version == version && c.IgnoreWhitespace == ignore
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the controller's logger.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithControllerSettings makes the controller follow s. Without it the
// controller uses DefaultSettings and changes only through SettingsChanged.
func WithControllerSettings(s SettingsWatcher) ControllerOption {
	return func(c *Controller) { c.settings = s }
}

// WithControllerPool shares p with other controllers. By default each
// controller gets a pool of its own.
func WithControllerPool(p *Pool) ControllerOption {
	return func(c *Controller) { c.pool = p }
}

// WithControllerPollInterval sets the baseline poll interval.
func WithControllerPollInterval(d time.Duration) ControllerOption {
	return func(c *Controller) { c.interval = d }
}

// section is a lock whose acquisition honors a context.
type section struct{ sem *semaphore.Weighted }

func (s section) Lock(ctx context.Context) error { return s.sem.Acquire(ctx, 1) }
func (s section) Unlock()                        { s.sem.Release(1) }

// Controller keeps the classification of one document up to date. All
// state transitions, baseline swaps, diffs and publishes happen inside a
// per-controller critical section; readers use the atomically swapped
// Cache without locking.
//
// Recomputing operations first take a slot from the shared Pool and then
// the critical section. Nothing acquires them in the other order.
type Controller struct {
	id       string
	uri      protocol.DocumentURI
	path     string
	provider *baseline.Provider
	notifier *Notifier
	settings SettingsWatcher
	pool     *Pool
	logger   *slog.Logger
	interval time.Duration

	cs section

	state    atomic.Int32
	disposed atomic.Bool
	busy     atomic.Bool
	ignoreWS atomic.Bool
	snap     atomic.Pointer[document.Snapshot]
	base     atomic.Pointer[baseline.Item]
	cache    atomic.Pointer[Cache]

	computations atomic.Int64
	inFlight     atomic.Int32
	peak         atomic.Int32

	// guarded by cs
	serverPath string
	stopPoll   context.CancelFunc
	pollDone   chan struct{}
	unsubs     []func()
}

// NewController returns an inactive controller for the document at uri,
// backed by the local file localPath.
func NewController(uri protocol.DocumentURI, localPath string, provider *baseline.Provider, notifier *Notifier, opts ...ControllerOption) *Controller {
	c := &Controller{
		id:       uuid.NewString(),
		uri:      uri,
		path:     localPath,
		provider: provider,
		notifier: notifier,
		logger:   slog.Default(),
		interval: baseline.DefaultInterval,
		cs:       section{sem: semaphore.NewWeighted(1)},
	}
	for _, o := range opts {
		o(c)
	}
	if c.pool == nil {
		c.pool = NewPool(1)
	}
	c.logger = c.logger.With("controller", c.id, "uri", string(uri))
	if c.settings != nil {
		c.ignoreWS.Store(c.settings.Get().IgnoreLeadingTrailingWhitespace)
	} else {
		c.ignoreWS.Store(DefaultSettings().IgnoreLeadingTrailingWhitespace)
	}
	return c
}

// ID returns the controller's instance id.
func (c *Controller) ID() string { return c.id }

// URI returns the document URI.
func (c *Controller) URI() protocol.DocumentURI { return c.uri }

// Path returns the local path of the document.
func (c *Controller) Path() string { return c.path }

// State returns the current activation state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Busy reports whether a recomputation is in flight.
func (c *Controller) Busy() bool { return c.busy.Load() }

// Cache returns the current cache, or nil when nothing has been computed
// since activation.
func (c *Controller) Cache() *Cache { return c.cache.Load() }

// Baseline returns the baseline item currently diffed against.
func (c *Controller) Baseline() *baseline.Item { return c.base.Load() }

// Snapshot returns the newest snapshot the controller has seen.
func (c *Controller) Snapshot() *document.Snapshot { return c.snap.Load() }

// IgnoreWhitespace reports the whitespace mode used for the next diff.
func (c *Controller) IgnoreWhitespace() bool { return c.ignoreWS.Load() }

// LineChange returns the classification of line in the given document
// version. It fails with ErrStaleSnapshot when version is not the version
// of both the current snapshot and the cache, or when line is outside the
// snapshot.
func (c *Controller) LineChange(line int, version int32) (classify.LineChange, bool, error) {
	cache := c.cache.Load()
	snap := c.snap.Load()
	if cache == nil || snap == nil {
		return classify.LineChange{}, false, nil
	}
	if cache.Version != version || snap.Version() != version || line < 0 || line >= snap.LineCount() {
		return classify.LineChange{}, false, fmt.Errorf("line %d of version %d: %w", line, version, ErrStaleSnapshot)
	}
	lc, ok := cache.Classification.Line(line)
	return lc, ok, nil
}

// Classification returns the cached classification if it was computed for
// version. It fails with ErrStaleSnapshot for any other version, and
// returns nil when the controller has nothing cached.
func (c *Controller) Classification(version int32) (*classify.Classification, error) {
	cache := c.cache.Load()
	if cache == nil {
		return nil, nil
	}
	if cache.Version != version {
		return nil, fmt.Errorf("version %d, cached %d: %w", version, cache.Version, ErrStaleSnapshot)
	}
	return cache.Classification, nil
}

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }

// offerSnapshot replaces the current snapshot unless it is newer than snap.
func (c *Controller) offerSnapshot(snap *document.Snapshot) {
	if snap == nil {
		return
	}
	for {
		cur := c.snap.Load()
		if cur != nil && cur.Version() > snap.Version() {
			return
		}
		if c.snap.CompareAndSwap(cur, snap) {
			return
		}
	}
}

// enter takes a pool slot (when compute is set) and the critical section.
// The returned function releases both.
func (c *Controller) enter(ctx context.Context, compute bool) (func(), error) {
	if compute {
		if err := c.pool.Lock(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.cs.Lock(ctx); err != nil {
		if compute {
			c.pool.Unlock()
		}
		return nil, err
	}
	if c.disposed.Load() {
		c.cs.Unlock()
		if compute {
			c.pool.Unlock()
		}
		return nil, ErrDisposed
	}
	return func() {
		c.cs.Unlock()
		if compute {
			c.pool.Unlock()
		}
	}, nil
}

// Activate resolves the baseline for the document, starts observing it
// and publishes the first classification. A document without a baseline,
// or an unreachable baseline service, leaves the controller inactive
// without error. Activating an active controller only records snap.
func (c *Controller) Activate(ctx context.Context, snap *document.Snapshot) error {
	c.offerSnapshot(snap)
	leave, err := c.enter(ctx, true)
	if err != nil {
		return err
	}
	defer leave()
	if c.State() != StateInactive {
		return nil
	}
	return c.activateLocked(ctx)
}

func (c *Controller) activateLocked(ctx context.Context) error {
	c.setState(StateActivating)

	item, err := c.provider.Resolve(ctx, c.path)
	if err == nil {
		item, err = c.provider.Fetch(ctx, item)
	}
	if err != nil {
		c.setState(StateInactive)
		switch {
		case errors.Is(err, baseline.ErrNotFound):
			c.logger.Debug("no baseline, staying inactive", "path", c.path)
			return nil
		case errors.Is(err, baseline.ErrServiceUnavailable):
			c.logger.Info("baseline service unavailable, staying inactive", "path", c.path, "error", err)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}
		return c.fail("activate", err)
	}

	c.base.Store(item)
	c.serverPath = item.ServerPath
	if c.settings != nil {
		c.ignoreWS.Store(c.settings.Get().IgnoreLeadingTrailingWhitespace)
		c.unsubs = append(c.unsubs, c.settings.OnChange(func(_, _ *Settings) {
			go c.followSettings()
		}))
	}
	c.unsubs = append(c.unsubs, c.provider.WatchCommits(func(ev baseline.CommitEvent) {
		go func() {
			if err := c.BaselineCommitted(context.Background(), ev.ServerPath); err != nil && !errors.Is(err, ErrDisposed) {
				c.logger.Error("handling baseline commit", "path", c.path, "error", err)
			}
		}()
	}))
	c.startPoller()
	c.setState(StateActive)
	c.logger.Info("activated", "path", c.path, "serverPath", item.ServerPath, "commit", item.CommitTime)

	return c.recomputeLocked(ctx, ReasonInternal)
}

func (c *Controller) followSettings() {
	ignore := c.settings.Get().IgnoreLeadingTrailingWhitespace
	if err := c.SettingsChanged(context.Background(), ignore); err != nil && !errors.Is(err, ErrDisposed) {
		c.logger.Error("applying settings", "path", c.path, "error", err)
	}
}

func (c *Controller) startPoller() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	obs := &baseline.Observer{
		Provider:  c.provider,
		LocalPath: c.path,
		Target:    pollTarget{c},
		Lock:      c.cs,
		Slots:     c.pool,
		Interval:  c.interval,
		Logger:    c.logger,
	}
	go func() {
		defer close(done)
		_ = obs.Run(ctx)
	}()
	c.stopPoll = cancel
	c.pollDone = done
}

// teardownLocked stops the poller, drops subscriptions and clears the
// cache. The returned channel, if any, closes once the poller has exited.
func (c *Controller) teardownLocked() <-chan struct{} {
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
	done := c.pollDone
	c.pollDone = nil
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.cache.Store(nil)
	c.base.Store(nil)
	c.serverPath = ""
	c.setState(StateInactive)
	return done
}

// recomputeLocked publishes the classification of the current snapshot
// against the current baseline. When neither has changed since the last
// computation the cached classification is republished.
func (c *Controller) recomputeLocked(ctx context.Context, reason Reason) error {
	snap := c.snap.Load()
	base := c.base.Load()
	if snap == nil || base == nil {
		return nil
	}
	ignore := c.ignoreWS.Load()
	token := base.Token()

	if cur := c.cache.Load(); cur.sameKey(token, snap.Version(), ignore) {
		c.publishLocked(cur, reason)
		return nil
	}

	c.setState(StateRefreshing)
	c.busy.Store(true)
	cls, err := c.compute(base, snap, ignore)
	c.busy.Store(false)
	c.setState(StateActive)
	if err != nil {
		return c.fail("recompute", err)
	}

	cache := &Cache{
		Classification:   cls,
		BaselineToken:    token,
		Version:          snap.Version(),
		IgnoreWhitespace: ignore,
	}
	c.cache.Store(cache)
	c.logger.Debug("classification computed", "version", cache.Version, "reason", reason.String(), "lines", cls.Len())
	c.publishLocked(cache, reason)
	return nil
}

func (c *Controller) compute(base *baseline.Item, snap *document.Snapshot, ignore bool) (cls *classify.Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during diff: %v", r)
		}
	}()
	c.computations.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}

	entries, err := linediff.Diff(base.Content, base.Encoding, []byte(snap.Text()), "utf-8", ignore)
	if err != nil {
		return nil, err
	}
	return classify.Classify(entries, snap.LineCount(), snap.Version()), nil
}

func (c *Controller) publishLocked(cache *Cache, reason Reason) {
	c.notifier.PublishRedraw(RedrawEvent{
		URI:            c.uri,
		Version:        cache.Version,
		Reason:         reason,
		Classification: cache.Classification,
	})
}

// publishCleared tells the renderer the document has no markers anymore.
func (c *Controller) publishCleared(reason Reason) {
	var version int32
	if snap := c.snap.Load(); snap != nil {
		version = snap.Version()
	}
	c.publishLocked(&Cache{Classification: classify.Empty(version), Version: version}, reason)
}

// reportedError marks an error that has already gone through the notifier
// without being handled.
type reportedError struct{ err *OpError }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// fail publishes err as an ErrorEvent. It returns nil when a subscriber
// handled the event and the wrapped error otherwise.
func (c *Controller) fail(op string, err error) error {
	var reported *reportedError
	if errors.As(err, &reported) {
		return err
	}
	opErr := &OpError{Op: op, Path: c.path, Err: err}
	ev := &ErrorEvent{Err: opErr, URI: c.uri, Path: c.path, Op: op}
	if c.notifier.PublishError(ev) {
		c.logger.Warn("controller error handled by subscriber", "op", op, "path", c.path, "error", err)
		return nil
	}
	return &reportedError{err: opErr}
}

// recompute is the shared path of every trigger that may need a new diff.
func (c *Controller) recompute(ctx context.Context, reason Reason) error {
	leave, err := c.enter(ctx, true)
	if err != nil {
		return err
	}
	defer leave()
	if c.State() != StateActive {
		return nil
	}
	return c.recomputeLocked(ctx, reason)
}

// republish sends the cached classification again without diffing.
func (c *Controller) republish(ctx context.Context, reason Reason) error {
	leave, err := c.enter(ctx, false)
	if err != nil {
		return err
	}
	defer leave()
	cache := c.cache.Load()
	if c.State() != StateActive || cache == nil {
		return nil
	}
	c.publishLocked(cache, reason)
	return nil
}

// DocumentChanged records an edited snapshot and recomputes.
func (c *Controller) DocumentChanged(ctx context.Context, snap *document.Snapshot) error {
	c.offerSnapshot(snap)
	return c.recompute(ctx, ReasonTextChanged)
}

// FileReloaded records the snapshot produced by a save or a reload from
// disk and recomputes.
func (c *Controller) FileReloaded(ctx context.Context, snap *document.Snapshot) error {
	c.offerSnapshot(snap)
	return c.recompute(ctx, ReasonFileAction)
}

// ViewReflowed reacts to a layout change of the view. Only a reflow that
// changed text triggers a new diff.
func (c *Controller) ViewReflowed(ctx context.Context, hasTextImpact bool) error {
	if hasTextImpact {
		return c.recompute(ctx, ReasonTextChanged)
	}
	return c.republish(ctx, ReasonLayoutOnly)
}

// ZoomChanged republishes the cached classification.
func (c *Controller) ZoomChanged(ctx context.Context) error {
	return c.republish(ctx, ReasonZoomChanged)
}

// FormatMapChanged republishes the cached classification.
func (c *Controller) FormatMapChanged(ctx context.Context) error {
	return c.republish(ctx, ReasonFormatMapChanged)
}

// SettingsChanged switches the whitespace mode. Nothing happens when the
// mode is unchanged. An inactive controller only records the new mode.
func (c *Controller) SettingsChanged(ctx context.Context, ignoreWhitespace bool) error {
	leave, err := c.enter(ctx, true)
	if err != nil {
		return err
	}
	defer leave()
	if c.ignoreWS.Load() == ignoreWhitespace {
		return nil
	}
	c.ignoreWS.Store(ignoreWhitespace)
	c.logger.Debug("whitespace mode changed", "ignore", ignoreWhitespace)
	if c.State() != StateActive {
		return nil
	}
	return c.recomputeLocked(ctx, ReasonSettingsChanged)
}

// BaselineCommitted reacts to a commit notification. Commits of other
// server items are ignored.
func (c *Controller) BaselineCommitted(ctx context.Context, serverPath string) error {
	leave, err := c.enter(ctx, true)
	if err != nil {
		return err
	}
	defer leave()
	if c.State() != StateActive || serverPath != c.serverPath {
		return nil
	}
	return c.refreshBaselineLocked(ctx)
}

// RefreshBaseline re-resolves the baseline now instead of waiting for the
// next poll.
func (c *Controller) RefreshBaseline(ctx context.Context) error {
	leave, err := c.enter(ctx, true)
	if err != nil {
		return err
	}
	defer leave()
	if c.State() != StateActive {
		return nil
	}
	return c.refreshBaselineLocked(ctx)
}

func (c *Controller) refreshBaselineLocked(ctx context.Context) error {
	item, err := c.provider.Resolve(ctx, c.path)
	if err == nil && !item.Same(c.base.Load()) {
		item, err = c.provider.Fetch(ctx, item)
		if err == nil {
			c.base.Store(item)
			c.serverPath = item.ServerPath
		}
	}
	switch {
	case err == nil:
		return c.recomputeLocked(ctx, ReasonBaselineChanged)
	case errors.Is(err, baseline.ErrNotFound):
		c.baselineMissingLocked()
		return nil
	case errors.Is(err, baseline.ErrServiceUnavailable):
		c.logger.Debug("baseline service unavailable, keeping current baseline", "path", c.path, "error", err)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return c.fail("refreshBaseline", err)
}

// baselineMissingLocked deactivates and clears the renderer's markers. The
// poller is not waited for since it may be the caller.
func (c *Controller) baselineMissingLocked() {
	c.logger.Info("baseline gone, deactivating", "path", c.path)
	c.teardownLocked()
	c.publishCleared(ReasonBaselineChanged)
}

// ProjectContextChanged deactivates the controller and activates it again
// from scratch.
func (c *Controller) ProjectContextChanged(ctx context.Context) error {
	if err := c.pool.Lock(ctx); err != nil {
		return err
	}
	defer c.pool.Unlock()
	if err := c.cs.Lock(ctx); err != nil {
		return err
	}
	if c.disposed.Load() {
		c.cs.Unlock()
		return ErrDisposed
	}
	if done := c.teardownLocked(); done != nil {
		// The poller may be waiting for the critical section.
		c.cs.Unlock()
		<-done
		if err := c.cs.Lock(ctx); err != nil {
			return err
		}
	}
	defer c.cs.Unlock()
	if c.disposed.Load() {
		return ErrDisposed
	}
	if c.State() != StateInactive {
		return nil
	}
	c.logger.Debug("project context changed, reactivating", "path", c.path)
	return c.activateLocked(ctx)
}

// Dispose deactivates the controller for good. It waits for the poller to
// exit; no RedrawEvent is published once it returns. Later calls of any
// trigger return ErrDisposed.
func (c *Controller) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	_ = c.cs.Lock(context.Background())
	done := c.teardownLocked()
	c.cs.Unlock()
	if done != nil {
		<-done
	}
	c.logger.Debug("disposed", "path", c.path)
}

// pollTarget adapts a Controller to baseline.Target. The observer calls
// BaselineMissing and BaselineChanged inside the critical section.
type pollTarget struct{ c *Controller }

func (t pollTarget) CurrentBaseline() *baseline.Item { return t.c.base.Load() }

func (t pollTarget) BaselineMissing(context.Context) {
	if t.c.disposed.Load() || t.c.State() != StateActive {
		return
	}
	t.c.baselineMissingLocked()
}

func (t pollTarget) BaselineChanged(ctx context.Context, item *baseline.Item) error {
	c := t.c
	if c.disposed.Load() || c.State() != StateActive {
		return nil
	}
	c.base.Store(item)
	c.serverPath = item.ServerPath
	return c.recomputeLocked(ctx, ReasonBaselineChanged)
}

func (t pollTarget) ObserverFailed(err error) bool {
	return t.c.fail("poll", err) == nil
}
