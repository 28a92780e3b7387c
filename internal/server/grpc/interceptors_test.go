package grpcserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/sitecfg/internal/api/configv1"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/service"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func TestLoggingUnary_Passthrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := LoggingUnary(log)

	ctx := peer.NewContext(WithRequestID(context.Background(), "r-1"), &peer.Peer{Addr: fakeAddr{}})

	h := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/sitecfg.v1.ConfigService/Method"}

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s, _ := resp.(string); s != "ok" {
		t.Fatalf("resp mismatch: %v", resp)
	}

	wantErr := errors.New("boom")
	hErr := func(ctx context.Context, req any) (any, error) { return nil, wantErr }
	_, err = ic(ctx, "req", info, hErr)
	if !errors.Is(err, wantErr) {
		t.Fatalf("want original error, got: %v", err)
	}
}

func TestRecoverUnary_CatchesPanic(t *testing.T) {
	t.Parallel()

	ic := RecoverUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/sitecfg.v1.ConfigService/Panic"}

	panicH := func(ctx context.Context, req any) (any, error) {
		panic("oh no")
	}

	_, err := ic(context.Background(), "req", info, panicH)
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want codes.Internal, got: %v", err)
	}

	resp, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { return 42, nil })
	if err != nil || resp.(int) != 42 {
		t.Fatalf("unexpected result: %v, %v", resp, err)
	}
}

func TestLoggingUnary_DurationFieldDoesNotBlock(t *testing.T) {
	t.Parallel()

	ic := LoggingUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/sitecfg.v1.ConfigService/Sleep"}
	h := func(ctx context.Context, req any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "done", nil
	}

	start := time.Now()
	resp, err := ic(context.Background(), "req", info, h)
	if err != nil || resp.(string) != "done" {
		t.Fatalf("unexpected result: %v, %v", resp, err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("duration should reflect handler time")
	}
}

func TestRequestIDUnary(t *testing.T) {
	t.Parallel()

	ic := RequestIDUnary()
	info := &grpc.UnaryServerInfo{FullMethod: "/x/y"}
	var seen string
	h := func(ctx context.Context, req any) (any, error) {
		seen = RequestIDFromCtx(ctx)
		return nil, nil
	}

	if _, err := ic(context.Background(), nil, info, h); err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.FromString(seen); err != nil {
		t.Fatalf("generated id is not a uuid: %q", seen)
	}

	want := uuid.Must(uuid.NewV4()).String()
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDHeader, want))
	_, _ = ic(ctx, nil, info, h)
	if seen != want {
		t.Fatalf("client id not reused: %q", seen)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDHeader, "not-a-uuid"))
	_, _ = ic(ctx, nil, info, h)
	if seen == "not-a-uuid" {
		t.Fatalf("malformed client id must be replaced")
	}
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()

	auth := service.NewAuthService([]byte("secret"), time.Minute)
	tok, _, err := auth.IssueToken(model.Actor{ID: "1", Username: "ed", Role: "editor"})
	if err != nil {
		t.Fatal(err)
	}
	ic := AuthUnary(auth)
	info := &grpc.UnaryServerInfo{FullMethod: configv1.MethodCommit}

	var got model.Actor
	h := func(ctx context.Context, req any) (any, error) {
		got, _ = ActorFromCtx(ctx)
		return "ok", nil
	}

	if _, err := ic(ctxWithAuth(tok), nil, info, h); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if got.Username != "ed" || got.Role != "editor" {
		t.Fatalf("actor not propagated: %+v", got)
	}

	if _, err := ic(context.Background(), nil, info, h); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated without token, got %v", err)
	}
	if _, err := ic(ctxWithAuth("junk"), nil, info, h); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated for junk token, got %v", err)
	}

	health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	if _, err := ic(context.Background(), nil, health, h); err != nil {
		t.Fatalf("health check must not need a token: %v", err)
	}
}
