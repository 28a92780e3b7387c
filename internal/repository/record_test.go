package repository

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/tree"
)

func TestNodeAndDiffArgs(t *testing.T) {
	t.Parallel()

	require.Nil(t, NodeArg(nil))
	require.Equal(t, "null", NodeArg(tree.Null()))
	require.Equal(t, `{"a":1}`, NodeArg(tree.MustParse(`{ "a" : 1 }`)))

	s, err := DiffArg(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", s)
}

func TestRawRevision_Decode(t *testing.T) {
	t.Parallel()

	ops := diff.Diff(tree.MustParse(`{"t":"A"}`), tree.MustParse(`{"t":"B"}`))
	d, err := DiffArg(ops)
	require.NoError(t, err)

	rev := model.Revision{ID: 3}
	raw := RawRevision{Value: []byte(`{"t":"B"}`), PreviousValue: []byte(`{"t":"A"}`), Diff: []byte(d)}
	require.NoError(t, raw.Decode(&rev))
	require.Equal(t, ops, rev.Diff)
	require.True(t, tree.Equal(tree.MustParse(`{"t":"A"}`), rev.PreviousValue))

	first := model.Revision{ID: 1}
	require.NoError(t, RawRevision{Value: []byte(`1`), Diff: []byte(`[]`)}.Decode(&first))
	require.Nil(t, first.PreviousValue)
	require.Empty(t, first.Diff)

	err = RawRevision{Value: []byte(`{`)}.Decode(&first)
	require.ErrorIs(t, err, errs.ErrMalformedDocument)
	err = RawRevision{Value: []byte(`1`), Diff: []byte(`{"op":"x"}`)}.Decode(&first)
	require.ErrorIs(t, err, errs.ErrMalformedDocument)
}
