// Package sqlstore is a baseline.Repository kept in a local SQLite database.
// Every commit is stored as a new version so downloads of an older item
// still succeed after a newer commit.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/gossip-lsp/gutter/baseline"
)

const schema = `
CREATE TABLE IF NOT EXISTS mappings (
	local_path  TEXT PRIMARY KEY,
	server_path TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS versions (
	server_path TEXT    NOT NULL,
	commit_time INTEGER NOT NULL,
	encoding    TEXT    NOT NULL,
	content     BLOB    NOT NULL,
	PRIMARY KEY (server_path, commit_time)
);
CREATE TABLE IF NOT EXISTS renames (
	local_path         TEXT NOT NULL,
	source_server_path TEXT NOT NULL,
	target_server_path TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS renames_local ON renames (local_path);
`

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock used to stamp commits.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is a SQLite-backed baseline.Repository.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	commitMu sync.Mutex

	mu      sync.Mutex
	subs    map[int]func(baseline.CommitEvent)
	nextSub int
}

var _ baseline.Repository = (*Store)(nil)

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// private in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening baseline database %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
		subs:   make(map[int]func(baseline.CommitEvent)),
	}
	for _, o := range opts {
		o(s)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			s.logger.Debug("pragma rejected", "pragma", pragma, "error", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating baseline schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Map maps localPath to serverPath, replacing any previous mapping.
func (s *Store) Map(ctx context.Context, localPath, serverPath string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mappings (local_path, server_path) VALUES (?, ?)
		 ON CONFLICT(local_path) DO UPDATE SET server_path = excluded.server_path`,
		localPath, serverPath)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", localPath, err)
	}
	return nil
}

// Unmap removes the mapping of localPath.
func (s *Store) Unmap(ctx context.Context, localPath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mappings WHERE local_path = ?`, localPath); err != nil {
		return fmt.Errorf("unmapping %s: %w", localPath, err)
	}
	return nil
}

// AddRename records a pending rename targeting localPath.
func (s *Store) AddRename(ctx context.Context, localPath string, r baseline.Rename) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO renames (local_path, source_server_path, target_server_path) VALUES (?, ?, ?)`,
		localPath, r.SourceServerPath, r.TargetServerPath)
	if err != nil {
		return fmt.Errorf("recording rename of %s: %w", localPath, err)
	}
	return nil
}

// ClearRenames drops the pending renames of localPath.
func (s *Store) ClearRenames(ctx context.Context, localPath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM renames WHERE local_path = ?`, localPath); err != nil {
		return fmt.Errorf("clearing renames of %s: %w", localPath, err)
	}
	return nil
}

// Commit stores content as the newest version of serverPath and notifies
// subscribers. Commit times are strictly increasing per store.
func (s *Store) Commit(ctx context.Context, serverPath, encoding string, content []byte) (*baseline.Item, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	at := s.now().UTC()
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(commit_time) FROM versions WHERE server_path = ?`, serverPath).Scan(&last); err != nil {
		return nil, fmt.Errorf("committing %s: %w", serverPath, err)
	}
	if last.Valid && at.UnixNano() <= last.Int64 {
		at = time.Unix(0, last.Int64+1).UTC()
	}

	if content == nil {
		content = []byte{}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO versions (server_path, commit_time, encoding, content) VALUES (?, ?, ?, ?)`,
		serverPath, at.UnixNano(), encoding, content); err != nil {
		return nil, fmt.Errorf("committing %s: %w", serverPath, err)
	}

	item := &baseline.Item{ServerPath: serverPath, Encoding: encoding, CommitTime: at}
	s.logger.Debug("baseline committed", "path", serverPath, "commit", at)
	s.notify(baseline.CommitEvent{ServerPath: serverPath, CommitTime: at})
	return item, nil
}

func (s *Store) notify(ev baseline.CommitEvent) {
	s.mu.Lock()
	ids := slices.Sorted(maps.Keys(s.subs))
	fns := make([]func(baseline.CommitEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Store) ServerPath(ctx context.Context, localPath string) (string, error) {
	var serverPath string
	err := s.db.QueryRowContext(ctx,
		`SELECT server_path FROM mappings WHERE local_path = ?`, localPath).Scan(&serverPath)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", localPath, baseline.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", localPath, err)
	}
	return serverPath, nil
}

func (s *Store) PendingRenames(ctx context.Context, localPath string) ([]baseline.Rename, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_server_path, target_server_path FROM renames WHERE local_path = ? ORDER BY rowid`, localPath)
	if err != nil {
		return nil, fmt.Errorf("listing renames of %s: %w", localPath, err)
	}
	defer rows.Close()

	var renames []baseline.Rename
	for rows.Next() {
		var r baseline.Rename
		if err := rows.Scan(&r.SourceServerPath, &r.TargetServerPath); err != nil {
			return nil, fmt.Errorf("listing renames of %s: %w", localPath, err)
		}
		renames = append(renames, r)
	}
	return renames, rows.Err()
}

func (s *Store) Item(ctx context.Context, serverPath string) (*baseline.Item, error) {
	var (
		encoding string
		at       int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT encoding, commit_time FROM versions WHERE server_path = ?
		 ORDER BY commit_time DESC LIMIT 1`, serverPath).Scan(&encoding, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", serverPath, baseline.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up item %s: %w", serverPath, err)
	}
	return &baseline.Item{ServerPath: serverPath, Encoding: encoding, CommitTime: time.Unix(0, at).UTC()}, nil
}

func (s *Store) Open(ctx context.Context, item *baseline.Item) (io.ReadCloser, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM versions WHERE server_path = ? AND commit_time = ?`,
		item.ServerPath, item.CommitTime.UnixNano()).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s at %s: %w", item.ServerPath, item.CommitTime, baseline.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", item.ServerPath, err)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (s *Store) Subscribe(fn func(baseline.CommitEvent)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
