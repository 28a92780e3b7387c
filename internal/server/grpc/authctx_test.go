package grpcserver

import (
	"context"
	"testing"

	"github.com/and161185/sitecfg/internal/model"
)

func TestWithActor_And_ActorFromCtx(t *testing.T) {
	t.Parallel()

	if _, ok := ActorFromCtx(context.Background()); ok {
		t.Fatalf("expected no actor in empty ctx")
	}

	want := model.Actor{ID: "1", Username: "ed"}
	got, ok := ActorFromCtx(WithActor(context.Background(), want))
	if !ok || got != want {
		t.Fatalf("mismatch: got %+v, want %+v", got, want)
	}

	bad := context.WithValue(context.Background(), actorKey, "not-an-actor")
	if _, ok := ActorFromCtx(bad); ok {
		t.Fatalf("expected miss on wrong typed value")
	}

	if RequestIDFromCtx(context.Background()) != "" {
		t.Fatalf("expected empty request id")
	}
	if RequestIDFromCtx(WithRequestID(context.Background(), "r-1")) != "r-1" {
		t.Fatalf("request id lost")
	}
}
