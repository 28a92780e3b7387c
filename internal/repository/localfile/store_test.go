package localfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/tree"
)

func TestStore_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fallback.json")
	s, err := New(path)
	require.NoError(t, err)

	_, err = s.GetDocument(ctx, "home")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.PutDocument(ctx, "home", tree.MustParse(`{"hero":{"title":"A"}}`)))
	require.NoError(t, s.PutDocument(ctx, "nav", tree.MustParse(`{"links":[]}`)))
	require.NoError(t, s.PutDocument(ctx, "home", tree.MustParse(`{"hero":{"title":"B"}}`)))

	doc, err := s.GetDocument(ctx, "home")
	require.NoError(t, err)
	require.Equal(t, `{"hero":{"title":"B"}}`, doc.Value.String())
	require.False(t, doc.UpdatedAt.IsZero())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\"home\":{\"hero\":{\"title\":\"B\"}},\"nav\":{\"links\":[]}}\n", string(data))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStore_YAML(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fallback.yaml")
	require.NoError(t, os.WriteFile(path, []byte("home:\n  hero:\n    title: Hi\n    count: 2\n"), 0o600))

	s, err := New(path)
	require.NoError(t, err)
	doc, err := s.GetDocument(ctx, "home")
	require.NoError(t, err)
	require.Equal(t, `{"hero":{"count":2,"title":"Hi"}}`, doc.Value.String())

	require.NoError(t, s.PutDocument(ctx, "footer", tree.MustParse(`{"note":null,"on":true}`)))

	again, err := New(path)
	require.NoError(t, err)
	doc, err = again.GetDocument(ctx, "footer")
	require.NoError(t, err)
	require.Equal(t, `{"note":null,"on":true}`, doc.Value.String())
	doc, err = again.GetDocument(ctx, "home")
	require.NoError(t, err)
	require.Equal(t, float64(2), doc.Value.Get("hero").Get("count").AsNumber())
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := New(filepath.Join(dir, "fallback.txt"))
	require.Error(t, err)

	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2]`), 0o600))
	s, err := New(path)
	require.NoError(t, err)
	_, err = s.GetDocument(ctx, "x")
	require.ErrorIs(t, err, errs.ErrMalformedDocument)

	require.ErrorIs(t, s.PutDocument(ctx, "x", nil), errs.ErrMalformedDocument)
}
