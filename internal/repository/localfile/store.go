// Package localfile keeps documents in a single JSON or YAML file. It is the
// degraded write path used when no versioned store is reachable: there is no
// audit trail and the whole file is rewritten on every put.
package localfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/repository"
	"github.com/and161185/sitecfg/internal/tree"
)

// TempFilePrefix names the temporary files used for atomic rewrites.
const TempFilePrefix = ".sitecfg-tmp-"

// Format selects the on-disk encoding.
type Format int

// Supported formats.
const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return 0, fmt.Errorf("localfile: unsupported extension %q", filepath.Ext(path))
}

// Store implements repository.DocumentWriter over one file.
type Store struct {
	path   string
	format Format
	mu     sync.Mutex
}

var _ repository.DocumentWriter = (*Store)(nil)

// New returns a store backed by path. The file is created on first write.
func New(path string) (*Store, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, format: f}, nil
}

// GetDocument returns the document stored under key.
func (s *Store) GetDocument(_ context.Context, key string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load()
	if err != nil {
		return nil, err
	}
	v, ok := docs[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	doc := &model.Document{Key: key, Value: v}
	if st, err := os.Stat(s.path); err == nil {
		doc.UpdatedAt = st.ModTime().UTC()
	}
	return doc, nil
}

// PutDocument replaces the document under key and rewrites the file.
func (s *Store) PutDocument(ctx context.Context, key string, doc *tree.Node) error {
	if doc == nil {
		return fmt.Errorf("%w: document is absent", errs.ErrMalformedDocument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load()
	if err != nil {
		return err
	}
	docs[key] = doc.Clone()

	data, err := s.encode(docs)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data, 0o644)
}

func (s *Store) load() (map[string]*tree.Node, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*tree.Node{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errs.ErrUnavailable, s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]*tree.Node{}, nil
	}

	var root *tree.Node
	switch s.format {
	case FormatYAML:
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errs.ErrMalformedDocument, s.path, err)
		}
		root, err = tree.FromValue(raw)
	default:
		root, err = tree.Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if root.Kind() != tree.KindObject {
		return nil, fmt.Errorf("%w: %s: top level must be an object", errs.ErrMalformedDocument, s.path)
	}

	docs := make(map[string]*tree.Node, root.Len())
	for _, k := range root.Keys() {
		docs[k] = root.Get(k)
	}
	return docs, nil
}

func (s *Store) encode(docs map[string]*tree.Node) ([]byte, error) {
	root := tree.Object(docs)
	if s.format == FormatYAML {
		return yaml.Marshal(root.Value())
	}
	b, err := root.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", errs.ErrUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", filename, err)
	}
	return nil
}
