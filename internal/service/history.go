package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/metrics"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/repository"
)

// HistoryService answers audit history queries and restores old revisions.
type HistoryService interface {
	// ListByKey returns revisions of key, newest first.
	ListByKey(ctx context.Context, key string, limit int) ([]model.Revision, error)
	// ListRecent returns revisions of all keys, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.Revision, error)
	// LatestPerKey returns the newest revision of each recently changed key.
	LatestPerKey(ctx context.Context, limit int) ([]model.Revision, error)
	// Filter returns recent revisions whose key matches a glob pattern.
	Filter(ctx context.Context, pattern string, limit int) ([]model.Revision, error)
	// GetByID returns a single revision.
	GetByID(ctx context.Context, id int64) (*model.Revision, error)
	// Restore commits the value of an earlier revision as a new revision.
	Restore(ctx context.Context, key string, revisionID int64, meta model.CommitMeta) (model.CommitResult, error)
	// VerifyChain reports revisions of key whose previous value does not
	// match the value of the revision before them.
	VerifyChain(ctx context.Context, key string, limit int) ([]model.ChainBreak, error)
}

type HistoryServiceImpl struct {
	revs    repository.RevisionReader
	docs    DocumentService
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewHistoryService constructs HistoryService. revs may be nil, in which case
// list queries answer empty and lookups report errs.ErrUnavailable.
func NewHistoryService(
	revs repository.RevisionReader, docs DocumentService, m *metrics.Metrics, log *zap.Logger,
) *HistoryServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &HistoryServiceImpl{revs: revs, docs: docs, metrics: m, log: log}
}

// degrade turns an unavailable history store into an empty answer.
func (s *HistoryServiceImpl) degrade(op string, revs []model.Revision, err error) ([]model.Revision, error) {
	if err == nil {
		if revs == nil {
			revs = []model.Revision{}
		}
		return revs, nil
	}
	if errors.Is(err, errs.ErrUnavailable) {
		s.metrics.HistoryDegradedRead(op)
		s.log.Warn("history store unavailable, answering empty", zap.String("op", op), zap.Error(err))
		return []model.Revision{}, nil
	}
	return nil, err
}

func (s *HistoryServiceImpl) noStore(op string) ([]model.Revision, error) {
	return s.degrade(op, nil, fmt.Errorf("%w: no history store configured", errs.ErrUnavailable))
}

// ListByKey returns revisions of key, newest first.
func (s *HistoryServiceImpl) ListByKey(ctx context.Context, key string, limit int) ([]model.Revision, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.revs == nil {
		return s.noStore("list_by_key")
	}
	revs, err := s.revs.ListByKey(ctx, key, repository.ClampLimit(limit))
	return s.degrade("list_by_key", revs, err)
}

// ListRecent returns revisions of all keys, newest first.
func (s *HistoryServiceImpl) ListRecent(ctx context.Context, limit int) ([]model.Revision, error) {
	if s.revs == nil {
		return s.noStore("list_recent")
	}
	revs, err := s.revs.ListRecent(ctx, repository.ClampLimit(limit))
	return s.degrade("list_recent", revs, err)
}

// LatestPerKey groups the most recent revisions by key and keeps the newest
// of each, ordered newest first. limit bounds the number of keys.
func (s *HistoryServiceImpl) LatestPerKey(ctx context.Context, limit int) ([]model.Revision, error) {
	recent, err := s.ListRecent(ctx, repository.MaxLimit)
	if err != nil {
		return nil, err
	}
	limit = repository.ClampLimit(limit)
	seen := make(map[string]struct{})
	out := make([]model.Revision, 0, min(limit, len(recent)))
	for _, r := range recent {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Filter returns recent revisions whose key matches pattern, e.g. "pages/**".
func (s *HistoryServiceImpl) Filter(ctx context.Context, pattern string, limit int) ([]model.Revision, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: bad key pattern %q", errs.ErrValidation, pattern)
	}
	recent, err := s.ListRecent(ctx, repository.MaxLimit)
	if err != nil {
		return nil, err
	}
	limit = repository.ClampLimit(limit)
	out := make([]model.Revision, 0)
	for _, r := range recent {
		if ok, _ := doublestar.Match(pattern, r.Key); ok {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// GetByID returns one revision or errs.ErrNotFound.
func (s *HistoryServiceImpl) GetByID(ctx context.Context, id int64) (*model.Revision, error) {
	if id <= 0 {
		return nil, errs.ErrNotFound
	}
	if s.revs == nil {
		return nil, fmt.Errorf("%w: no history store configured", errs.ErrUnavailable)
	}
	return s.revs.GetRevision(ctx, id)
}

// Restore re-commits the value of revision revisionID under key. The audit
// trail is append-only: the restore becomes a new revision with action
// "restore" and earlier revisions stay as they are.
func (s *HistoryServiceImpl) Restore(
	ctx context.Context, key string, revisionID int64, meta model.CommitMeta,
) (model.CommitResult, error) {
	if err := ValidateKey(key); err != nil {
		return model.CommitResult{}, err
	}
	rev, err := s.GetByID(ctx, revisionID)
	if err != nil {
		return model.CommitResult{}, err
	}
	if rev.Key != key {
		return model.CommitResult{}, fmt.Errorf("revision %d of key %q: %w", revisionID, key, errs.ErrNotFound)
	}

	meta.Action = model.ActionRestore
	if meta.Note == "" {
		meta.Note = fmt.Sprintf("restore of revision %d", rev.ID)
	}
	res, err := s.docs.Commit(ctx, key, rev.Value, meta)
	if err != nil {
		return model.CommitResult{}, err
	}
	s.log.Info("revision restored",
		zap.String("key", key), zap.Int64("from", rev.ID), zap.String("actor", meta.Actor.Username))
	return res, nil
}

// VerifyChain walks up to limit revisions of key oldest to newest and reports
// every pair where the newer revision's previous value differs from the
// older revision's value.
func (s *HistoryServiceImpl) VerifyChain(ctx context.Context, key string, limit int) ([]model.ChainBreak, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.revs == nil {
		return nil, fmt.Errorf("%w: no history store configured", errs.ErrUnavailable)
	}
	revs, err := s.revs.ListByKey(ctx, key, repository.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	slices.Reverse(revs)

	breaks := []model.ChainBreak{}
	for i := 1; i < len(revs); i++ {
		older, newer := revs[i-1], revs[i]
		want, got := older.Value.Digest(), newer.PreviousValue.Digest()
		if want != got {
			breaks = append(breaks, model.ChainBreak{
				RevisionID:     newer.ID,
				PreviousID:     older.ID,
				ExpectedDigest: want,
				ActualDigest:   got,
			})
		}
	}
	if len(breaks) > 0 {
		s.log.Warn("revision chain broken", zap.String("key", key), zap.Int("breaks", len(breaks)))
	}
	return breaks, nil
}
