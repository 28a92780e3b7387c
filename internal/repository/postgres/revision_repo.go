package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/repository"
)

// ListByKey returns revisions of key, newest first.
func (s *Store) ListByKey(ctx context.Context, key string, limit int) ([]model.Revision, error) {
	q := `SELECT ` + repository.RevisionColumns + ` FROM config_revisions
WHERE key=$1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return s.queryRevisions(ctx, q, key, repository.ClampLimit(limit))
}

// ListRecent returns revisions of every key, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]model.Revision, error) {
	q := `SELECT ` + repository.RevisionColumns + ` FROM config_revisions
ORDER BY created_at DESC, id DESC LIMIT $1`
	return s.queryRevisions(ctx, q, repository.ClampLimit(limit))
}

// GetRevision returns one revision by id.
func (s *Store) GetRevision(ctx context.Context, id int64) (*model.Revision, error) {
	q := `SELECT ` + repository.RevisionColumns + ` FROM config_revisions WHERE id=$1`
	rev, err := scanRevision(s.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return rev, nil
}

func (s *Store) queryRevisions(ctx context.Context, q string, args ...any) ([]model.Revision, error) {
	rows, err := s.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *rev)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func scanRevision(row pgx.Row) (*model.Revision, error) {
	var (
		rev    model.Revision
		raw    repository.RawRevision
		action string
	)
	err := row.Scan(
		&rev.ID, &rev.Key, &raw.Value, &raw.PreviousValue, &raw.Diff, &action,
		&rev.Actor.ID, &rev.Actor.Username, &rev.Actor.Email, &rev.Actor.Role,
		&rev.SourcePath, &rev.Note, &rev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rev.Action = model.Action(action)
	if err := raw.Decode(&rev); err != nil {
		return nil, err
	}
	return &rev, nil
}
