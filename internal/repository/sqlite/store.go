// Package sqlite implements the versioned document store on an embedded
// SQLite database. It suits single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/migrate"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/repository"
	"github.com/and161185/sitecfg/internal/tree"
)

// Store implements repository.VersionedStore on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.VersionedStore = (*Store)(nil)

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %v", errs.ErrUnavailable, err)
	}

	// One writer at a time; a single connection also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := migrate.Up(ctx, db, migrate.SQLite); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping sqlite: %v", errs.ErrUnavailable, err)
	}
	return nil
}

// GetDocument returns the current document stored under key.
func (s *Store) GetDocument(ctx context.Context, key string) (*model.Document, error) {
	var (
		raw       sql.NullString
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM config_documents WHERE key = ?`, key,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !raw.Valid) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v, err := tree.Parse([]byte(raw.String))
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", key, err)
	}
	return &model.Document{Key: key, Value: v, UpdatedAt: time.UnixMicro(updatedAt).UTC()}, nil
}

// Commit replaces the document under key and appends a revision in one
// transaction. An unchanged, already stored document writes nothing and
// returns a nil revision.
func (s *Store) Commit(
	ctx context.Context, key string, next *tree.Node, meta model.CommitMeta,
) (rev *model.Revision, err error) {
	if next == nil {
		return nil, fmt.Errorf("%w: document is absent", errs.ErrMalformedDocument)
	}
	if meta.Action == "" {
		meta.Action = model.ActionUpdate
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", errs.ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = e
			rev = nil
		}
	}()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT value FROM config_documents WHERE key = ?`, key).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	err = nil

	var prev *tree.Node
	if raw.Valid {
		if prev, err = tree.Parse([]byte(raw.String)); err != nil {
			return nil, fmt.Errorf("document %q: %w", key, err)
		}
	}

	ops := diff.Diff(prev, next)
	if prev != nil && len(ops) == 0 {
		return nil, nil
	}
	diffArg, err := repository.DiffArg(ops)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC().Truncate(time.Microsecond)
	const upsert = `
INSERT INTO config_documents (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err = tx.ExecContext(ctx, upsert, key, next.String(), at.UnixMicro()); err != nil {
		return nil, err
	}

	const ins = `
INSERT INTO config_revisions
	(key, value, previous_value, diff, action, actor_id, actor_username, actor_email, actor_role, source_path, note, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	a := meta.Actor
	res, err := tx.ExecContext(ctx, ins,
		key, next.String(), repository.NodeArg(prev), diffArg, string(meta.Action),
		a.ID, a.Username, a.Email, a.Role, meta.SourcePath, meta.Note, at.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &model.Revision{
		ID:            id,
		Key:           key,
		Value:         next,
		PreviousValue: prev,
		Diff:          ops,
		Action:        meta.Action,
		Actor:         meta.Actor,
		SourcePath:    meta.SourcePath,
		Note:          meta.Note,
		CreatedAt:     at,
	}, nil
}

// ListByKey returns revisions of key, newest first.
func (s *Store) ListByKey(ctx context.Context, key string, limit int) ([]model.Revision, error) {
	q := `SELECT ` + repository.RevisionColumns + ` FROM config_revisions
WHERE key = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	return s.queryRevisions(ctx, q, key, repository.ClampLimit(limit))
}

// ListRecent returns revisions of every key, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]model.Revision, error) {
	q := `SELECT ` + repository.RevisionColumns + ` FROM config_revisions
ORDER BY created_at DESC, id DESC LIMIT ?`
	return s.queryRevisions(ctx, q, repository.ClampLimit(limit))
}

// GetRevision returns one revision by id.
func (s *Store) GetRevision(ctx context.Context, id int64) (*model.Revision, error) {
	q := `SELECT ` + repository.RevisionColumns + ` FROM config_revisions WHERE id = ?`
	rev, err := scanRevision(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return rev, err
}

func (s *Store) queryRevisions(ctx context.Context, q string, args ...any) ([]model.Revision, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rev)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanRevision(row scanner) (*model.Revision, error) {
	var (
		rev       model.Revision
		value     string
		prev      sql.NullString
		diffRaw   string
		action    string
		createdAt int64
	)
	err := row.Scan(
		&rev.ID, &rev.Key, &value, &prev, &diffRaw, &action,
		&rev.Actor.ID, &rev.Actor.Username, &rev.Actor.Email, &rev.Actor.Role,
		&rev.SourcePath, &rev.Note, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	rev.Action = model.Action(action)
	rev.CreatedAt = time.UnixMicro(createdAt).UTC()

	raw := repository.RawRevision{Value: []byte(value), Diff: []byte(diffRaw)}
	if prev.Valid {
		raw.PreviousValue = []byte(prev.String)
	}
	if err := raw.Decode(&rev); err != nil {
		return nil, err
	}
	return &rev, nil
}
