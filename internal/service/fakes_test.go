package service

import (
	"context"
	"sort"
	"sync"

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/repository"
	"github.com/and161185/sitecfg/internal/tree"
)

// fakeStore is an in-memory VersionedStore.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]*tree.Node
	revs []model.Revision

	commitErr error
	readErr   error
	commits   int
}

var _ repository.VersionedStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore { return &fakeStore{docs: map[string]*tree.Node{}} }

func (f *fakeStore) Commit(_ context.Context, key string, next *tree.Node, meta model.CommitMeta) (*model.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	prev := f.docs[key]
	ops := diff.Diff(prev, next)
	if prev != nil && len(ops) == 0 {
		return nil, nil
	}
	f.docs[key] = next.Clone()
	rev := model.Revision{
		ID: int64(len(f.revs) + 1), Key: key, Value: next.Clone(), PreviousValue: prev,
		Diff: ops, Action: meta.Action, Actor: meta.Actor, SourcePath: meta.SourcePath, Note: meta.Note,
	}
	f.revs = append(f.revs, rev)
	return &rev, nil
}

func (f *fakeStore) GetDocument(_ context.Context, key string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	d, ok := f.docs[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &model.Document{Key: key, Value: d.Clone()}, nil
}

func (f *fakeStore) newestFirst(keep func(model.Revision) bool, limit int) []model.Revision {
	out := []model.Revision{}
	for i := len(f.revs) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(f.revs[i]) {
			out = append(out, f.revs[i])
		}
	}
	return out
}

func (f *fakeStore) ListByKey(_ context.Context, key string, limit int) ([]model.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.newestFirst(func(r model.Revision) bool { return r.Key == key }, limit), nil
}

func (f *fakeStore) ListRecent(_ context.Context, limit int) ([]model.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.newestFirst(func(model.Revision) bool { return true }, limit), nil
}

func (f *fakeStore) GetRevision(_ context.Context, id int64) (*model.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	if id < 1 || int(id) > len(f.revs) {
		return nil, errs.ErrNotFound
	}
	r := f.revs[id-1]
	return &r, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.readErr }

// fakeLocal is an in-memory DocumentWriter.
type fakeLocal struct {
	docs map[string]*tree.Node
	err  error
}

var _ repository.DocumentWriter = (*fakeLocal)(nil)

func (f *fakeLocal) GetDocument(_ context.Context, key string) (*model.Document, error) {
	d, ok := f.docs[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &model.Document{Key: key, Value: d}, nil
}

func (f *fakeLocal) PutDocument(_ context.Context, key string, doc *tree.Node) error {
	if f.err != nil {
		return f.err
	}
	if f.docs == nil {
		f.docs = map[string]*tree.Node{}
	}
	f.docs[key] = doc
	return nil
}

// fakeCache records cache traffic.
type fakeCache struct {
	docs        map[string]*model.Document
	gens        map[string]int64
	getErr      error
	invalidated []string
}

var _ DocumentCache = (*fakeCache)(nil)

func (f *fakeCache) Get(_ context.Context, key string) (*model.Document, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	d, ok := f.docs[key]
	return d, ok, nil
}

func (f *fakeCache) Generation(_ context.Context, key string) (int64, error) {
	return f.gens[key], nil
}

func (f *fakeCache) Set(_ context.Context, doc *model.Document, gen int64) (bool, error) {
	if f.gens[doc.Key] != gen {
		return false, nil
	}
	if f.docs == nil {
		f.docs = map[string]*model.Document{}
	}
	f.docs[doc.Key] = doc
	return true, nil
}

func (f *fakeCache) Invalidate(_ context.Context, key string) error {
	f.invalidated = append(f.invalidated, key)
	delete(f.docs, key)
	if f.gens == nil {
		f.gens = map[string]int64{}
	}
	f.gens[key]++
	return nil
}

func (f *fakeCache) invalidatedSorted() []string {
	out := append([]string(nil), f.invalidated...)
	sort.Strings(out)
	return out
}
