package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/sitecfg/internal/api/configv1"
	"github.com/and161185/sitecfg/internal/convert"
	"github.com/and161185/sitecfg/internal/describe"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/repository/sqlite"
	"github.com/and161185/sitecfg/internal/service"
)

const bufSize = 1 << 20

type testEnv struct {
	client *configv1.ConfigServiceClient
	token  string
}

func startBufGRPC(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	store, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	docs, err := service.NewDocumentService(service.DocumentDeps{Store: store, Logger: log})
	require.NoError(t, err)
	history := service.NewHistoryService(store, docs, nil, log)
	auth := service.NewAuthService([]byte("test-secret"), time.Minute)
	d := &describe.Describer{Labels: map[string]string{"hero": "Hero", "title": "Title"}}

	lis := bufconn.Listen(bufSize)
	gs := NewGRPCServer(New(docs, history, d, log), auth, log)
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })

	tok, _, err := auth.IssueToken(model.Actor{ID: "7", Username: "editor", Role: "admin"})
	require.NoError(t, err)
	return &testEnv{client: configv1.NewConfigServiceClient(cc), token: tok}
}

func (e *testEnv) ctx() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+e.token)
}

func req(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := convert.NewRequest(fields)
	require.NoError(t, err)
	return s
}

func field(s *structpb.Struct, path ...string) *structpb.Value {
	var v *structpb.Value
	for _, p := range path {
		v = s.GetFields()[p]
		s = v.GetStructValue()
	}
	return v
}

func TestServer_E2E_CommitHistoryRestore(t *testing.T) {
	t.Parallel()
	env := startBufGRPC(t)
	ctx := env.ctx()
	cl := env.client

	doc := func(title string) map[string]any {
		return map[string]any{"hero": map[string]any{"title": title}}
	}

	r1, err := cl.Commit(ctx, req(t, map[string]any{"key": "home", "document": doc("A"), "sourcePath": "/admin/home"}))
	require.NoError(t, err)
	require.Equal(t, "transactional", field(r1, "mode").GetStringValue())
	require.Equal(t, "editor", field(r1, "revision", "actor", "username").GetStringValue())
	firstID := field(r1, "revision", "id").GetNumberValue()

	r2, err := cl.Commit(ctx, req(t, map[string]any{"key": "home", "document": doc("B")}))
	require.NoError(t, err)
	ops := field(r2, "revision", "diff").GetListValue().GetValues()
	require.Len(t, ops, 1)
	require.Equal(t, "/hero/title", ops[0].GetStructValue().GetFields()["path"].GetStringValue())
	require.Equal(t, "Hero › Title", ops[0].GetStructValue().GetFields()["label"].GetStringValue())

	same, err := cl.Commit(ctx, req(t, map[string]any{"key": "home", "document": doc("B")}))
	require.NoError(t, err)
	_, isNull := field(same, "revision").GetKind().(*structpb.Value_NullValue)
	require.True(t, isNull)

	restored, err := cl.Restore(ctx, req(t, map[string]any{"key": "home", "revisionId": firstID}))
	require.NoError(t, err)
	require.Equal(t, "restore", field(restored, "revision", "action").GetStringValue())

	got, err := cl.GetDocument(ctx, req(t, map[string]any{"key": "home"}))
	require.NoError(t, err)
	require.Equal(t, "A", field(got, "document", "hero", "title").GetStringValue())

	hist, err := cl.ListHistory(ctx, req(t, map[string]any{"key": "home", "limit": 10}))
	require.NoError(t, err)
	require.Len(t, field(hist, "revisions").GetListValue().GetValues(), 3)

	_, err = cl.Commit(ctx, req(t, map[string]any{"key": "pages/about", "document": map[string]any{"x": 1}}))
	require.NoError(t, err)
	filtered, err := cl.ListRecent(ctx, req(t, map[string]any{"pattern": "pages/**"}))
	require.NoError(t, err)
	require.Len(t, field(filtered, "revisions").GetListValue().GetValues(), 1)

	latest, err := cl.LatestPerKey(ctx, req(t, map[string]any{}))
	require.NoError(t, err)
	require.Len(t, field(latest, "revisions").GetListValue().GetValues(), 2)

	rev, err := cl.GetRevision(ctx, req(t, map[string]any{"id": firstID}))
	require.NoError(t, err)
	require.Equal(t, "home", field(rev, "key").GetStringValue())

	chain, err := cl.VerifyChain(ctx, req(t, map[string]any{"key": "home"}))
	require.NoError(t, err)
	require.True(t, field(chain, "ok").GetBoolValue())

	label, err := cl.Describe(ctx, req(t, map[string]any{"key": "home", "path": "/hero/0"}))
	require.NoError(t, err)
	require.Equal(t, "Hero › item 1", field(label, "label").GetStringValue())
}

func TestServer_E2E_Errors(t *testing.T) {
	t.Parallel()
	env := startBufGRPC(t)
	ctx := env.ctx()
	cl := env.client

	_, err := cl.GetDocument(context.Background(), req(t, map[string]any{"key": "home"}))
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = cl.GetDocument(ctx, req(t, map[string]any{"key": "missing"}))
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = cl.Commit(ctx, req(t, map[string]any{"key": "home"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = cl.Commit(ctx, req(t, map[string]any{"key": "", "document": 1}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = cl.GetRevision(ctx, req(t, map[string]any{"id": 1.5}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = cl.Restore(ctx, req(t, map[string]any{"key": "home", "revisionId": 99}))
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = cl.ListRecent(ctx, req(t, map[string]any{"pattern": "pages/["}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	var header metadata.MD
	_, err = cl.ListRecent(ctx, req(t, map[string]any{}), grpc.Header(&header))
	require.NoError(t, err)
	require.Len(t, header.Get(RequestIDHeader), 1)
}
