package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/repository"
	"github.com/and161185/sitecfg/internal/tree"
)

// Store implements repository.VersionedStore using PostgreSQL.
type Store struct{ db *DB }

// NewStore constructs a versioned document store.
func NewStore(db *DB) *Store { return &Store{db: db} }

var _ repository.VersionedStore = (*Store)(nil)

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

// GetDocument returns the current document stored under key.
func (s *Store) GetDocument(ctx context.Context, key string) (*model.Document, error) {
	const q = `SELECT value, updated_at FROM config_documents WHERE key=$1`
	var (
		raw []byte
		doc = model.Document{Key: key}
	)
	err := s.db.Pool.QueryRow(ctx, q, key).Scan(&raw, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	if raw == nil {
		return nil, errs.ErrNotFound
	}
	if doc.Value, err = tree.Parse(raw); err != nil {
		return nil, fmt.Errorf("document %q: %w", key, err)
	}
	return &doc, nil
}

// Commit replaces the document under key and appends a revision, all in one
// transaction. The row is locked before the prior value is read so concurrent
// commits to one key serialize. When the document already existed and next
// equals it, nothing is written and the returned revision is nil.
func (s *Store) Commit(
	ctx context.Context, key string, next *tree.Node, meta model.CommitMeta,
) (rev *model.Revision, err error) {
	if next == nil {
		return nil, fmt.Errorf("%w: document is absent", errs.ErrMalformedDocument)
	}
	if meta.Action == "" {
		meta.Action = model.ActionUpdate
	}

	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", errs.ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			err = classify(err)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = classify(e)
			rev = nil
		}
	}()

	const ensure = `INSERT INTO config_documents (key, value) VALUES ($1, NULL) ON CONFLICT (key) DO NOTHING`
	const sel = `SELECT value FROM config_documents WHERE key=$1 FOR UPDATE`
	const upd = `UPDATE config_documents SET value=$2::jsonb, updated_at=now() WHERE key=$1`
	const ins = `
INSERT INTO config_revisions
	(key, value, previous_value, diff, action, actor_id, actor_username, actor_email, actor_role, source_path, note)
VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, created_at`

	if _, err = tx.Exec(ctx, ensure, key); err != nil {
		return nil, err
	}
	var raw []byte
	if err = tx.QueryRow(ctx, sel, key).Scan(&raw); err != nil {
		return nil, err
	}
	prev, err := repository.ScanNode(raw)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", key, err)
	}

	ops := diff.Diff(prev, next)
	if prev != nil && len(ops) == 0 {
		return nil, nil
	}
	diffArg, err := repository.DiffArg(ops)
	if err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, upd, key, next.String()); err != nil {
		return nil, err
	}

	rev = &model.Revision{
		Key:           key,
		Value:         next,
		PreviousValue: prev,
		Diff:          ops,
		Action:        meta.Action,
		Actor:         meta.Actor,
		SourcePath:    meta.SourcePath,
		Note:          meta.Note,
	}
	a := meta.Actor
	err = tx.QueryRow(ctx, ins,
		key, next.String(), repository.NodeArg(prev), diffArg, string(meta.Action),
		a.ID, a.Username, a.Email, a.Role, meta.SourcePath, meta.Note,
	).Scan(&rev.ID, &rev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rev, nil
}
