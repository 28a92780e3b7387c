// Package grpcserver exposes the configuration admin gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/sitecfg/internal/api/configv1"
	"github.com/and161185/sitecfg/internal/convert"
	"github.com/and161185/sitecfg/internal/describe"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/service"
)

// Server wires services into gRPC handlers.
type Server struct {
	docs     service.DocumentService
	history  service.HistoryService
	describe *describe.Describer
	log      *zap.Logger
}

var _ configv1.ConfigServiceServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(docs service.DocumentService, history service.HistoryService, d *describe.Describer, log *zap.Logger) *Server {
	if d == nil {
		d = &describe.Describer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{docs: docs, history: history, describe: d, log: log}
}

// NewGRPCServer builds a grpc.Server with the standard interceptor chain and
// registers s on it.
func NewGRPCServer(s *Server, auth service.AuthService, log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		RequestIDUnary(),
		RecoverUnary(log),
		LoggingUnary(log),
		AuthUnary(auth),
	))
	gs := grpc.NewServer(opts...)
	configv1.RegisterConfigServiceServer(gs, s)
	return gs
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrMalformedDocument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrUnavailable):
		return status.Error(codes.Unavailable, "store unavailable")
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	return status.Errorf(codes.Internal, "%s: %v", op, err)
}

func (s *Server) labels(r model.Revision) []string { return s.describe.DescribeOps(r.Key, r.Diff) }

func (s *Server) commitResult(res model.CommitResult) *structpb.Struct {
	var labels []string
	if res.Revision != nil {
		labels = s.labels(*res.Revision)
	}
	return convert.CommitResultToStruct(res, labels)
}

func limitOf(req *structpb.Struct) (int, error) {
	n, err := convert.Int(req, "limit", 0)
	if err != nil {
		return 0, status.Error(codes.InvalidArgument, err.Error())
	}
	return int(n), nil
}

func (s *Server) metaFrom(ctx context.Context, req *structpb.Struct) model.CommitMeta {
	actor, _ := ActorFromCtx(ctx)
	return model.CommitMeta{
		Actor:      actor,
		SourcePath: convert.String(req, "sourcePath"),
		Note:       convert.String(req, "note"),
	}
}

// Commit stores a document and returns the recorded revision, if any.
func (s *Server) Commit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := convert.Node(req, "document")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if doc == nil {
		return nil, status.Error(codes.InvalidArgument, "empty document")
	}
	meta := s.metaFrom(ctx, req)
	meta.Action = model.Action(convert.String(req, "action"))

	res, err := s.docs.Commit(ctx, convert.String(req, "key"), doc, meta)
	if err != nil {
		return nil, toStatus("commit", err)
	}
	return s.commitResult(res), nil
}

// GetDocument returns the current document of a key.
func (s *Server) GetDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := s.docs.Get(ctx, convert.String(req, "key"))
	if err != nil {
		return nil, toStatus("get document", err)
	}
	return convert.DocumentToStruct(doc), nil
}

// ListHistory returns revisions of one key, newest first.
func (s *Server) ListHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := limitOf(req)
	if err != nil {
		return nil, err
	}
	revs, err := s.history.ListByKey(ctx, convert.String(req, "key"), limit)
	if err != nil {
		return nil, toStatus("list history", err)
	}
	return convert.RevisionsToStruct(revs, s.labels), nil
}

// ListRecent returns recent revisions of all keys, optionally filtered by a key glob.
func (s *Server) ListRecent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := limitOf(req)
	if err != nil {
		return nil, err
	}
	var revs []model.Revision
	if pattern := convert.String(req, "pattern"); pattern != "" {
		revs, err = s.history.Filter(ctx, pattern, limit)
	} else {
		revs, err = s.history.ListRecent(ctx, limit)
	}
	if err != nil {
		return nil, toStatus("list recent", err)
	}
	return convert.RevisionsToStruct(revs, s.labels), nil
}

// LatestPerKey returns the newest revision of each recently changed key.
func (s *Server) LatestPerKey(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := limitOf(req)
	if err != nil {
		return nil, err
	}
	revs, err := s.history.LatestPerKey(ctx, limit)
	if err != nil {
		return nil, toStatus("latest per key", err)
	}
	return convert.RevisionsToStruct(revs, s.labels), nil
}

// GetRevision returns one revision by id.
func (s *Server) GetRevision(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.Int(req, "id", 0)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rev, err := s.history.GetByID(ctx, id)
	if err != nil {
		return nil, toStatus("get revision", err)
	}
	return convert.RevisionToStruct(*rev, s.labels(*rev)), nil
}

// Restore re-commits an earlier revision of a key.
func (s *Server) Restore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.Int(req, "revisionId", 0)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.history.Restore(ctx, convert.String(req, "key"), id, s.metaFrom(ctx, req))
	if err != nil {
		return nil, toStatus("restore", err)
	}
	return s.commitResult(res), nil
}

// Describe labels a document path.
func (s *Server) Describe(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	label := s.describe.Describe(convert.String(req, "key"), convert.String(req, "path"))
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"label": structpb.NewStringValue(label),
	}}, nil
}

// VerifyChain checks that consecutive revisions of a key line up.
func (s *Server) VerifyChain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := limitOf(req)
	if err != nil {
		return nil, err
	}
	breaks, err := s.history.VerifyChain(ctx, convert.String(req, "key"), limit)
	if err != nil {
		return nil, toStatus("verify chain", err)
	}
	return convert.ChainBreaksToStruct(breaks), nil
}
