package baseline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/gossip-lsp/gutter/baseline"
	"github.com/gossip-lsp/gutter/baseline/baselinetest"
)

type semLocker struct{ sem *semaphore.Weighted }

func newLocker() semLocker { return semLocker{sem: semaphore.NewWeighted(1)} }

func (l semLocker) Lock(ctx context.Context) error { return l.sem.Acquire(ctx, 1) }
func (l semLocker) Unlock()                        { l.sem.Release(1) }

type fakeTarget struct {
	mu       sync.Mutex
	current  *baseline.Item
	changed  chan *baseline.Item
	missing  chan struct{}
	failures chan error
	handle   bool
	fail     error
}

func newFakeTarget(current *baseline.Item) *fakeTarget {
	return &fakeTarget{
		current:  current,
		changed:  make(chan *baseline.Item, 8),
		missing:  make(chan struct{}, 1),
		failures: make(chan error, 8),
	}
}

func (f *fakeTarget) CurrentBaseline() *baseline.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeTarget) BaselineMissing(context.Context) { f.missing <- struct{}{} }

func (f *fakeTarget) BaselineChanged(_ context.Context, item *baseline.Item) error {
	f.mu.Lock()
	f.current = item
	err := f.fail
	f.mu.Unlock()
	f.changed <- item
	return err
}

func (f *fakeTarget) ObserverFailed(err error) bool {
	f.failures <- err
	return f.handle
}

func startObserver(t *testing.T, repo *baselinetest.Repository, target *fakeTarget, lock semLocker) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	o := &baseline.Observer{
		Provider:  baseline.NewProvider(repo),
		LocalPath: "/w/a.txt",
		Target:    target,
		Lock:      lock,
		Interval:  5 * time.Millisecond,
	}
	ch := make(chan error, 1)
	go func() { ch <- o.Run(ctx) }()
	t.Cleanup(cancelCtx)
	return cancelCtx, ch
}

func TestObserverDetectsCommit(t *testing.T) {
	repo := baselinetest.New()
	repo.Map("/w/a.txt", "$/a.txt")
	current := repo.Put("$/a.txt", "one\n")
	target := newFakeTarget(current)

	cancel, done := startObserver(t, repo, target, newLocker())
	repo.Put("$/a.txt", "two\n")

	select {
	case item := <-target.changed:
		require.Equal(t, "two\n", string(item.Content))
	case <-time.After(5 * time.Second):
		t.Fatal("observer did not report the new commit")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("observer did not stop after cancel")
	}
}

func TestObserverUnchangedBaselineIsNotRefetched(t *testing.T) {
	repo := baselinetest.New()
	repo.Map("/w/a.txt", "$/a.txt")
	current := repo.Put("$/a.txt", "one\n")
	target := newFakeTarget(current)

	startObserver(t, repo, target, newLocker())
	time.Sleep(50 * time.Millisecond)

	require.Zero(t, repo.Opens())
	require.Empty(t, target.changed)
}

func TestObserverStopsWhenBaselineMissing(t *testing.T) {
	repo := baselinetest.New()
	repo.Map("/w/a.txt", "$/a.txt")
	target := newFakeTarget(repo.Put("$/a.txt", "one\n"))

	_, done := startObserver(t, repo, target, newLocker())
	repo.Unmap("/w/a.txt")

	select {
	case <-target.missing:
	case <-time.After(5 * time.Second):
		t.Fatal("observer did not report the missing baseline")
	}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("observer kept running after the baseline went missing")
	}
}

func TestObserverSkipsUnavailableCycles(t *testing.T) {
	repo := baselinetest.New()
	repo.Map("/w/a.txt", "$/a.txt")
	target := newFakeTarget(repo.Put("$/a.txt", "one\n"))
	repo.SetUnavailable(true)

	startObserver(t, repo, target, newLocker())
	repo.Put("$/a.txt", "two\n")
	time.Sleep(30 * time.Millisecond)
	require.Empty(t, target.changed)
	require.Empty(t, target.failures)

	repo.SetUnavailable(false)
	select {
	case item := <-target.changed:
		require.Equal(t, "two\n", string(item.Content))
	case <-time.After(5 * time.Second):
		t.Fatal("observer did not recover after the service came back")
	}
}

func TestObserverUnhandledFailureStopsLoop(t *testing.T) {
	repo := baselinetest.New()
	repo.Map("/w/a.txt", "$/a.txt")
	target := newFakeTarget(repo.Put("$/a.txt", "one\n"))
	target.fail = errors.New("recompute exploded")

	_, done := startObserver(t, repo, target, newLocker())
	repo.Put("$/a.txt", "two\n")

	select {
	case err := <-done:
		require.ErrorIs(t, err, target.fail)
	case <-time.After(5 * time.Second):
		t.Fatal("observer did not stop on an unhandled failure")
	}
}

func TestObserverCancelWhileWaitingForLock(t *testing.T) {
	repo := baselinetest.New()
	repo.Map("/w/a.txt", "$/a.txt")
	target := newFakeTarget(repo.Put("$/a.txt", "one\n"))
	repo.Put("$/a.txt", "two\n")

	lock := newLocker()
	require.NoError(t, lock.Lock(context.Background()))
	defer lock.Unlock()

	cancel, done := startObserver(t, repo, target, lock)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("observer blocked on the lock after cancel")
	}
	require.Empty(t, target.changed)
}
