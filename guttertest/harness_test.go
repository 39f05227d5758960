package guttertest_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gossip-lsp/gutter"
	"github.com/gossip-lsp/gutter/baseline"
	"github.com/gossip-lsp/gutter/baseline/baselinetest"
	"github.com/gossip-lsp/gutter/guttertest"
	"github.com/gossip-lsp/gutter/protocol"
)

const serverPath = "$/proj/a.txt"

func newServer(t *testing.T, base string, opts ...gutter.Option) (*gutter.Server, *baselinetest.Repository, string) {
	t.Helper()
	repo := baselinetest.New()
	uri := guttertest.FileURI("/work/a.txt")
	repo.Map(gutter.LocalPath(protocol.DocumentURI(uri)), serverPath)
	repo.Put(serverPath, base)

	opts = append([]gutter.Option{
		gutter.WithConfigFile(""),
		gutter.WithPollInterval(time.Hour),
	}, opts...)
	s := gutter.NewServer("test-gutter", "0.1.0", baseline.NewProvider(repo), opts...)
	return s, repo, uri
}

func TestInitializeAdvertisesCapabilities(t *testing.T) {
	s, _, _ := newServer(t, "a\n")
	c := guttertest.NewClient(t, s)

	res := c.InitializeResult()
	if res.ServerInfo == nil || res.ServerInfo.Name != "test-gutter" {
		t.Errorf("unexpected server info: %+v", res.ServerInfo)
	}
	exp := res.Capabilities.Experimental
	if exp == nil || !exp.LineChangesProvider {
		t.Fatalf("lineChanges not advertised: %+v", exp)
	}
	if len(exp.RedrawReasons) != len(gutter.Reasons()) {
		t.Errorf("expected %d redraw reasons, got %v", len(gutter.Reasons()), exp.RedrawReasons)
	}
	if sync := res.Capabilities.TextDocumentSync; sync == nil || sync.Change != protocol.SyncIncremental {
		t.Errorf("expected incremental sync, got %+v", sync)
	}

	if err := c.Call(protocol.MethodInitialize, &protocol.InitializeParams{}, nil); err == nil {
		t.Error("second initialize should fail")
	}

	changes, err := c.LineChanges("file:///nowhere.txt", 1)
	if err != nil {
		t.Fatalf("lineChanges on unknown document: %v", err)
	}
	if changes != nil {
		t.Errorf("expected null for unknown document, got %v", changes)
	}
}

func TestOpenPublishesRedraw(t *testing.T) {
	s, _, uri := newServer(t, "a\nb\nc\n")
	c := guttertest.NewClient(t, s)

	c.Open(uri, "a\nX\nc\n")
	p := c.WaitForReason(uri, "internal", 1)
	guttertest.AssertLineKinds(t, p.Changes, map[uint32]protocol.LineChangeKind{1: protocol.LineChanged})

	changes, err := c.LineChanges(uri, 1)
	if err != nil {
		t.Fatal(err)
	}
	guttertest.AssertLineKinds(t, changes, map[uint32]protocol.LineChangeKind{1: protocol.LineChanged})
}

func TestEditsRecompute(t *testing.T) {
	s, _, uri := newServer(t, "a\nb\n")
	c := guttertest.NewClient(t, s)

	c.Open(uri, "a\nb\n")
	p := c.WaitForReason(uri, "internal", 1)
	guttertest.AssertNoChanges(t, p.Changes)

	c.ChangeIncremental(uri, 2, guttertest.Rng(2, 0, 2, 0), "c\n")
	p = c.WaitForReason(uri, "textChanged", 2)
	guttertest.AssertLineKinds(t, p.Changes, map[uint32]protocol.LineChangeKind{2: protocol.LineInserted})

	c.Change(uri, 3, "a\n")
	p = c.WaitForReason(uri, "textChanged", 3)
	guttertest.AssertLineKinds(t, p.Changes, map[uint32]protocol.LineChangeKind{0: protocol.LineDeleted})
	guttertest.AssertOrdered(t, p.Changes)
}

func TestLineChangesStaleVersion(t *testing.T) {
	s, _, uri := newServer(t, "a\n")
	c := guttertest.NewClient(t, s)

	c.Open(uri, "a\nb\n")
	c.WaitForReason(uri, "internal", 1)

	changes, err := c.LineChanges(uri, 7)
	if err != nil {
		t.Fatal(err)
	}
	if changes != nil {
		t.Errorf("expected null for stale version, got %v", changes)
	}
}

func TestConfigurationToggle(t *testing.T) {
	s, _, uri := newServer(t, "a\nb\n")
	c := guttertest.NewClient(t, s)

	c.Open(uri, "  a\nb\n")
	p := c.WaitForReason(uri, "internal", 1)
	guttertest.AssertNoChanges(t, p.Changes)

	c.SetIgnoreWhitespace(false)
	p = c.WaitForReason(uri, "settingsChanged", 1)
	guttertest.AssertLineKinds(t, p.Changes, map[uint32]protocol.LineChangeKind{0: protocol.LineChanged})

	if s.Settings().Get().IgnoreLeadingTrailingWhitespace {
		t.Error("settings store not updated")
	}
}

func TestInitializationOptions(t *testing.T) {
	s, _, uri := newServer(t, "a\n")
	ignore := false
	c := guttertest.NewClient(t, s, func(p *protocol.InitializeParams) {
		p.InitializationOptions = &protocol.GutterSettings{IgnoreLeadingTrailingWhitespace: &ignore}
	})

	c.Open(uri, "a \n")
	p := c.WaitForReason(uri, "internal", 1)
	guttertest.AssertLineKinds(t, p.Changes, map[uint32]protocol.LineChangeKind{0: protocol.LineChanged})
}

func TestLayoutNotifications(t *testing.T) {
	s, _, uri := newServer(t, "a\n")
	c := guttertest.NewClient(t, s)

	c.Open(uri, "a\nb\n")
	c.WaitForReason(uri, "internal", 1)

	c.ZoomChanged(uri)
	c.WaitForReason(uri, "zoomChanged", 1)

	c.FormatMapChanged()
	c.WaitForReason(uri, "formatMapChanged", 1)

	c.ViewReflowed(uri, false)
	p := c.WaitForReason(uri, "layoutOnly", 1)
	guttertest.AssertLineKinds(t, p.Changes, map[uint32]protocol.LineChangeKind{1: protocol.LineInserted})
}

func TestRefreshBaselineAfterCommit(t *testing.T) {
	s, repo, uri := newServer(t, "a\n")
	c := guttertest.NewClient(t, s)

	c.Open(uri, "a\nb\n")
	c.WaitForReason(uri, "internal", 1)

	// The commit alone redraws; the explicit refresh then finds nothing new.
	repo.Commit(serverPath, "a\nb\n")
	c.RefreshBaseline(uri)
	p := c.WaitForReason(uri, "baselineChanged", 1)
	guttertest.AssertNoChanges(t, p.Changes)
}

func TestBaselineRemovedClearsGutter(t *testing.T) {
	s, repo, uri := newServer(t, "a\n")
	c := guttertest.NewClient(t, s)

	c.Open(uri, "b\n")
	c.WaitForReason(uri, "internal", 1)

	repo.Unmap(gutter.LocalPath(protocol.DocumentURI(uri)))
	c.RefreshBaseline("")
	p := c.WaitForReason(uri, "baselineChanged", 1)
	guttertest.AssertNoChanges(t, p.Changes)

	ctl := s.Manager().Controller(protocol.DocumentURI(uri))
	if ctl == nil || ctl.State() != gutter.StateInactive {
		t.Fatalf("expected inactive controller, got %v", ctl)
	}
}

func TestCloseDisposesController(t *testing.T) {
	s, _, uri := newServer(t, "a\n")
	c := guttertest.NewClient(t, s)

	c.Open(uri, "a\n")
	c.WaitForReason(uri, "internal", 1)
	c.Close(uri)

	deadline := time.Now().Add(2 * time.Second)
	for s.Manager().Controller(protocol.DocumentURI(uri)) != nil {
		if time.Now().After(deadline) {
			t.Fatal("controller not disposed after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestErrorsForwarded(t *testing.T) {
	s, repo, uri := newServer(t, "a\n")
	c := guttertest.NewClient(t, s)

	c.Open(uri, "a\n")
	c.WaitForReason(uri, "internal", 1)

	repo.FailOpen(os.ErrPermission)
	repo.Commit(serverPath, "b\n")
	c.RefreshBaseline(uri)

	deadline := time.Now().Add(2 * time.Second)
	for len(c.Errors()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no gutter/error received")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if e := c.Errors()[0]; e.URI != protocol.DocumentURI(uri) || e.Message == "" {
		t.Errorf("unexpected error notification: %+v", e)
	}
}

func TestWorkspaceConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := "ignore_leading_trailing_whitespace = false\nworkers = 2\n"
	if err := os.WriteFile(filepath.Join(dir, gutter.DefaultConfigFile), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	s, _, _ := newServer(t, "a\n", gutter.WithConfigFile(gutter.DefaultConfigFile))
	guttertest.NewClient(t, s, guttertest.WithRoot(dir))

	if s.Settings().Get().IgnoreLeadingTrailingWhitespace {
		t.Error("config file settings not applied")
	}
	if got := s.Manager().Pool().Size(); got != 2 {
		t.Errorf("expected 2 workers, got %d", got)
	}
}

func TestCustomRequest(t *testing.T) {
	s, _, _ := newServer(t, "a\n")
	s.HandleRequest("custom/open", func(ctx *gutter.Context, _ json.RawMessage) (any, error) {
		return len(ctx.Documents.URIs()), nil
	})
	c := guttertest.NewClient(t, s)

	uri := guttertest.FileURI("/work/b.txt")
	c.Open(uri, "x\n")
	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int
		if err := c.Call("custom/open", nil, &n); err != nil {
			t.Fatal(err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 open document, got %d", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := c.Call("custom/missing", nil, nil); err == nil {
		t.Error("expected method not found")
	}
}

func TestHandlerSeesMethod(t *testing.T) {
	s, _, _ := newServer(t, "a\n")
	s.HandleRequest("custom/method", func(ctx *gutter.Context, _ json.RawMessage) (any, error) {
		return ctx.Method(), nil
	})
	c := guttertest.NewClient(t, s)

	var got string
	if err := c.Call("custom/method", nil, &got); err != nil {
		t.Fatal(err)
	}
	if got != "custom/method" {
		t.Errorf("Method() = %q, want %q", got, "custom/method")
	}
}
