package gutter_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gossip-lsp/gutter"
	"github.com/gossip-lsp/gutter/baseline"
	"github.com/gossip-lsp/gutter/baseline/baselinetest"
	"github.com/gossip-lsp/gutter/classify"
	"github.com/gossip-lsp/gutter/document"
	"github.com/gossip-lsp/gutter/linediff"
	"github.com/gossip-lsp/gutter/protocol"
)

const (
	testURI    = protocol.DocumentURI("file:///work/a.txt")
	testPath   = "/work/a.txt"
	testServer = "$/proj/a.txt"
)

// recorder collects everything a Notifier publishes.
type recorder struct {
	mu      sync.Mutex
	redraws []gutter.RedrawEvent
	errs    []*gutter.ErrorEvent
	handle  bool
}

func record(t *testing.T, n *gutter.Notifier, handleErrors bool) *recorder {
	t.Helper()
	r := &recorder{handle: handleErrors}
	rs := n.SubscribeRedraw(func(ev gutter.RedrawEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.redraws = append(r.redraws, ev)
	})
	es := n.SubscribeErrors(func(ev *gutter.ErrorEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, ev)
		if r.handle {
			ev.Handled = true
		}
	})
	t.Cleanup(func() {
		rs.Unsubscribe()
		es.Unsubscribe()
	})
	return r
}

func (r *recorder) Redraws() []gutter.RedrawEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gutter.RedrawEvent(nil), r.redraws...)
}

func (r *recorder) Errors() []*gutter.ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*gutter.ErrorEvent(nil), r.errs...)
}

func (r *recorder) Last(t *testing.T) gutter.RedrawEvent {
	t.Helper()
	evs := r.Redraws()
	require.NotEmpty(t, evs, "no redraw published")
	return evs[len(evs)-1]
}

func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.redraws)
}

type fixture struct {
	repo     *baselinetest.Repository
	notifier *gutter.Notifier
	rec      *recorder
	ctl      *gutter.Controller
}

func newFixture(t *testing.T, baselineText string, opts ...gutter.ControllerOption) *fixture {
	t.Helper()
	repo := baselinetest.New()
	repo.Map(testPath, testServer)
	repo.Put(testServer, baselineText)

	n := gutter.NewNotifier()
	rec := record(t, n, false)
	opts = append([]gutter.ControllerOption{gutter.WithControllerPollInterval(time.Hour)}, opts...)
	c := gutter.NewController(testURI, testPath, baseline.NewProvider(repo), n, opts...)
	t.Cleanup(c.Dispose)
	return &fixture{repo: repo, notifier: n, rec: rec, ctl: c}
}

func snapshot(version int32, text string) *document.Snapshot {
	return document.NewSnapshot(testURI, "plaintext", version, text)
}

// kinds flattens a classification to line -> type.
func kinds(cls *classify.Classification) map[int]linediff.Type {
	out := make(map[int]linediff.Type)
	for line, lc := range cls.All() {
		out[line] = lc.Type
	}
	return out
}
