package sqlstore

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gossip-lsp/gutter/baseline"
)

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "baseline.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func readAll(t *testing.T, s *Store, item *baseline.Item) string {
	t.Helper()
	rc, err := s.Open(context.Background(), item)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestCommitAndResolve(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Map(ctx, "/w/a.txt", "$/a.txt"))
	first, err := s.Commit(ctx, "$/a.txt", "utf-8", []byte("one\n"))
	require.NoError(t, err)

	p := baseline.NewProvider(s)
	item, err := p.Resolve(ctx, "/w/a.txt")
	require.NoError(t, err)
	require.True(t, item.Same(first))
	require.Equal(t, "utf-8", item.Encoding)

	fetched, err := p.Fetch(ctx, item)
	require.NoError(t, err)
	require.Equal(t, "one\n", string(fetched.Content))
}

func TestOlderVersionsStayReadable(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := openStore(t, WithClock(func() time.Time { return fixed }))

	first, err := s.Commit(ctx, "$/a.txt", "utf-8", []byte("one\n"))
	require.NoError(t, err)
	second, err := s.Commit(ctx, "$/a.txt", "utf-8", []byte("two\n"))
	require.NoError(t, err)
	require.True(t, second.CommitTime.After(first.CommitTime), "commit times must increase under a stuck clock")

	latest, err := s.Item(ctx, "$/a.txt")
	require.NoError(t, err)
	require.True(t, latest.Same(second))

	require.Equal(t, "one\n", readAll(t, s, first))
	require.Equal(t, "two\n", readAll(t, s, second))
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.ServerPath(ctx, "/w/none.txt")
	require.ErrorIs(t, err, baseline.ErrNotFound)

	_, err = s.Item(ctx, "$/none.txt")
	require.ErrorIs(t, err, baseline.ErrNotFound)

	_, err = s.Open(ctx, &baseline.Item{ServerPath: "$/none.txt", CommitTime: time.Now()})
	require.ErrorIs(t, err, baseline.ErrNotFound)

	require.NoError(t, s.Map(ctx, "/w/a.txt", "$/a.txt"))
	require.NoError(t, s.Unmap(ctx, "/w/a.txt"))
	_, err = s.ServerPath(ctx, "/w/a.txt")
	require.True(t, errors.Is(err, baseline.ErrNotFound))
}

func TestRenames(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	r := baseline.Rename{SourceServerPath: "$/old.txt", TargetServerPath: "$/new.txt"}
	require.NoError(t, s.AddRename(ctx, "/w/new.txt", r))
	renames, err := s.PendingRenames(ctx, "/w/new.txt")
	require.NoError(t, err)
	require.Equal(t, []baseline.Rename{r}, renames)

	_, err = s.Commit(ctx, "$/old.txt", "utf-8", []byte("old\n"))
	require.NoError(t, err)
	item, err := baseline.NewProvider(s).Resolve(ctx, "/w/new.txt")
	require.NoError(t, err)
	require.Equal(t, "$/old.txt", item.ServerPath)

	require.NoError(t, s.ClearRenames(ctx, "/w/new.txt"))
	renames, err = s.PendingRenames(ctx, "/w/new.txt")
	require.NoError(t, err)
	require.Empty(t, renames)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	var got []baseline.CommitEvent
	cancel := s.Subscribe(func(ev baseline.CommitEvent) { got = append(got, ev) })
	item, err := s.Commit(ctx, "$/a.txt", "utf-8", []byte("x"))
	require.NoError(t, err)
	cancel()
	_, err = s.Commit(ctx, "$/a.txt", "utf-8", []byte("y"))
	require.NoError(t, err)

	require.Len(t, got, 1)
	require.Equal(t, item.ServerPath, got[0].ServerPath)
	require.True(t, item.CommitTime.Equal(got[0].CommitTime))
}
