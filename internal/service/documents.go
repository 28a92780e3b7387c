package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/metrics"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/repository"
	"github.com/and161185/sitecfg/internal/tree"
)

// DocumentService commits and reads configuration documents.
type DocumentService interface {
	// Commit stores doc under key and records a revision when it changed.
	Commit(ctx context.Context, key string, doc *tree.Node, meta model.CommitMeta) (model.CommitResult, error)
	// Get returns the current document of key.
	Get(ctx context.Context, key string) (*model.Document, error)
}

// DocumentCache is a read-through cache for current documents.
type DocumentCache interface {
	Get(ctx context.Context, key string) (*model.Document, bool, error)
	// Generation returns a token that changes on every Invalidate of key.
	Generation(ctx context.Context, key string) (int64, error)
	// Set stores doc unless its key was invalidated after gen was taken.
	Set(ctx context.Context, doc *model.Document, gen int64) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

// DocumentDeps wires DocumentServiceImpl. At least one of Store and Local is required.
type DocumentDeps struct {
	Store   repository.VersionedStore
	Local   repository.DocumentWriter
	Cache   DocumentCache
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// FallbackOnUnavailable lets commits land in Local, without an audit
	// record, when Store is unreachable. Meant for development setups.
	FallbackOnUnavailable bool
}

type DocumentServiceImpl struct {
	store    repository.VersionedStore
	local    repository.DocumentWriter
	cache    DocumentCache
	metrics  *metrics.Metrics
	log      *zap.Logger
	fallback bool
}

// NewDocumentService constructs DocumentService.
func NewDocumentService(d DocumentDeps) (*DocumentServiceImpl, error) {
	if d.Store == nil && d.Local == nil {
		return nil, errors.New("document service: no store configured")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &DocumentServiceImpl{
		store:    d.Store,
		local:    d.Local,
		cache:    d.Cache,
		metrics:  d.Metrics,
		log:      d.Logger,
		fallback: d.FallbackOnUnavailable && d.Local != nil,
	}, nil
}

// Commit validates the request and writes it through the versioned store.
// Without a versioned store, or on an unreachable one when fallback is
// enabled, the document goes to local storage and the result is degraded.
func (s *DocumentServiceImpl) Commit(
	ctx context.Context, key string, doc *tree.Node, meta model.CommitMeta,
) (model.CommitResult, error) {
	if err := validateStruct(commitInput{Key: key, Meta: meta}); err != nil {
		return model.CommitResult{}, err
	}
	if doc == nil {
		return model.CommitResult{}, fmt.Errorf("%w: document is absent", errs.ErrMalformedDocument)
	}
	if meta.Action == "" {
		meta.Action = model.ActionUpdate
	}

	if s.store == nil {
		return s.commitLocal(ctx, key, doc)
	}

	start := time.Now()
	rev, err := s.store.Commit(ctx, key, doc, meta)
	if err != nil {
		s.metrics.ObserveCommit(model.ModeTransactional, metrics.OutcomeError, time.Since(start), nil)
		if s.fallback && errors.Is(err, errs.ErrUnavailable) {
			s.log.Warn("versioned store unavailable, committing without audit",
				zap.String("key", key), zap.Error(err))
			return s.commitLocal(ctx, key, doc)
		}
		return model.CommitResult{}, err
	}

	if rev == nil {
		s.metrics.ObserveCommit(model.ModeTransactional, metrics.OutcomeUnchanged, time.Since(start), nil)
		s.log.Debug("commit unchanged", zap.String("key", key))
		return model.CommitResult{Mode: model.ModeTransactional}, nil
	}

	s.metrics.ObserveCommit(model.ModeTransactional, metrics.OutcomeWritten, time.Since(start), rev.Diff)
	s.invalidate(ctx, key)
	s.log.Info("document committed",
		zap.String("key", key),
		zap.Int64("revision", rev.ID),
		zap.String("action", string(rev.Action)),
		zap.String("actor", rev.Actor.Username),
		zap.Int("changes", len(rev.Diff)),
	)
	return model.CommitResult{Mode: model.ModeTransactional, Revision: rev}, nil
}

func (s *DocumentServiceImpl) commitLocal(ctx context.Context, key string, doc *tree.Node) (model.CommitResult, error) {
	if s.local == nil {
		return model.CommitResult{}, fmt.Errorf("%w: no local storage configured", errs.ErrUnavailable)
	}
	start := time.Now()
	if err := s.local.PutDocument(ctx, key, doc); err != nil {
		s.metrics.ObserveCommit(model.ModeDegraded, metrics.OutcomeError, time.Since(start), nil)
		return model.CommitResult{}, err
	}
	s.metrics.ObserveCommit(model.ModeDegraded, metrics.OutcomeWritten, time.Since(start), nil)
	s.invalidate(ctx, key)
	s.log.Warn("document stored without audit record", zap.String("key", key))
	return model.CommitResult{Mode: model.ModeDegraded}, nil
}

func (s *DocumentServiceImpl) invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

// Get returns the current document, consulting the cache first.
func (s *DocumentServiceImpl) Get(ctx context.Context, key string) (*model.Document, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	if s.cache == nil {
		return s.read(ctx, key)
	}

	doc, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.CacheLookup(metrics.CacheError)
		s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return s.read(ctx, key)
	case ok:
		s.metrics.CacheLookup(metrics.CacheHit)
		return doc, nil
	}
	s.metrics.CacheLookup(metrics.CacheMiss)

	// The generation is taken before the read so a commit landing in
	// between keeps the superseded document out of the cache.
	gen, genErr := s.cache.Generation(ctx, key)
	doc, err = s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		s.log.Warn("cache generation read failed", zap.String("key", key), zap.Error(genErr))
		return doc, nil
	}
	stored, err := s.cache.Set(ctx, doc, gen)
	switch {
	case err != nil:
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	case !stored:
		s.log.Debug("cache write skipped, document changed during read", zap.String("key", key))
	}
	return doc, nil
}

func (s *DocumentServiceImpl) read(ctx context.Context, key string) (*model.Document, error) {
	if s.store == nil {
		return s.local.GetDocument(ctx, key)
	}
	doc, err := s.store.GetDocument(ctx, key)
	if err != nil && s.fallback && errors.Is(err, errs.ErrUnavailable) {
		s.log.Warn("versioned store unavailable, reading local storage", zap.String("key", key), zap.Error(err))
		return s.local.GetDocument(ctx, key)
	}
	return doc, err
}
