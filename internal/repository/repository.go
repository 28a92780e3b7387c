// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/tree"
)

// DocumentReader loads the current document of a key.
type DocumentReader interface {
	// GetDocument returns errs.ErrNotFound when the key has no document.
	GetDocument(ctx context.Context, key string) (*model.Document, error)
}

// DocumentWriter persists documents without history.
type DocumentWriter interface {
	DocumentReader
	// PutDocument overwrites the document of key.
	PutDocument(ctx context.Context, key string, doc *tree.Node) error
}

// RevisionReader provides read access to the audit history.
type RevisionReader interface {
	// ListByKey returns revisions of key, newest first.
	ListByKey(ctx context.Context, key string, limit int) ([]model.Revision, error)
	// ListRecent returns revisions of all keys, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.Revision, error)
	// GetRevision returns a single revision or errs.ErrNotFound.
	GetRevision(ctx context.Context, id int64) (*model.Revision, error)
}

// VersionedStore writes documents and their audit records atomically.
type VersionedStore interface {
	DocumentReader
	RevisionReader

	// Commit loads the current document of key, stores next, diffs the two and
	// records a revision, all in one transaction. It returns nil when a prior
	// document existed and nothing changed.
	Commit(ctx context.Context, key string, next *tree.Node, meta model.CommitMeta) (*model.Revision, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
