// Package httpserver serves the read-only HTTP surface: health checks,
// Prometheus metrics and JSON views of documents and history.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/sitecfg/internal/describe"
	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/service"
	"github.com/and161185/sitecfg/internal/tree"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds what the handlers need. Ready and Gatherer may be nil.
type Deps struct {
	Docs          service.DocumentService
	History       service.HistoryService
	Describe      *describe.Describer
	DefaultLocale string
	Ready         Pinger
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
}

type handlers struct {
	Deps
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Describe == nil {
		d.Describe = &describe.Describer{}
	}
	if d.DefaultLocale == "" {
		d.DefaultLocale = "en"
	}
	h := &handlers{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(d.Logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/readyz", h.ready)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.GET("/documents/*key", h.document)
	v1.GET("/history", h.history)
	v1.GET("/history/latest", h.latest)
	v1.GET("/revisions/:id", h.revision)
	return r
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
		)
	}
}

// writeError maps domain errors to HTTP status codes.
func (h *handlers) writeError(c *gin.Context, op string, err error) {
	code := http.StatusInternalServerError
	msg := "internal"
	switch {
	case errors.Is(err, errs.ErrNotFound):
		code, msg = http.StatusNotFound, "not found"
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrMalformedDocument):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrUnavailable):
		code, msg = http.StatusServiceUnavailable, "store unavailable"
	default:
		h.Logger.Error(op, zap.Error(err))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func (h *handlers) ready(c *gin.Context) {
	if h.Ready == nil {
		c.JSON(http.StatusOK, gin.H{"status": "degraded"})
		return
	}
	if err := h.Ready.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type documentView struct {
	Key       string     `json:"key"`
	Document  *tree.Node `json:"document"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Digest    string     `json:"digest"`
}

func (h *handlers) document(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	doc, err := h.Docs.Get(c.Request.Context(), key)
	if err != nil {
		h.writeError(c, "get document", err)
		return
	}
	digest := doc.Value.Digest()
	etag := `"` + digest + `"`
	c.Header("ETag", etag)
	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	if field := c.Query("field"); field != "" {
		h.localized(c, doc, field)
		return
	}
	c.JSON(http.StatusOK, documentView{Key: doc.Key, Document: doc.Value, UpdatedAt: doc.UpdatedAt, Digest: digest})
}

// etagMatches applies If-None-Match weak comparison: any listed tag, weak
// or strong, with the same opaque value matches, and so does "*".
func etagMatches(header, etag string) bool {
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == etag {
			return true
		}
	}
	return false
}

// opView is a change op plus its label. Before and After are nil exactly
// when the op does not carry them.
type opView struct {
	Op     diff.Op    `json:"op"`
	Path   string     `json:"path"`
	Before *tree.Node `json:"before,omitempty"`
	After  *tree.Node `json:"after,omitempty"`
	Label  string     `json:"label,omitempty"`
}

type revisionView struct {
	ID            int64        `json:"id"`
	Key           string       `json:"key"`
	Value         *tree.Node   `json:"value"`
	PreviousValue *tree.Node   `json:"previousValue,omitempty"`
	Diff          []opView     `json:"diff"`
	Stats         diff.Stats   `json:"stats"`
	Action        model.Action `json:"action"`
	Actor         model.Actor  `json:"actor"`
	SourcePath    string       `json:"sourcePath,omitempty"`
	Note          string       `json:"note,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

func (h *handlers) view(r model.Revision) revisionView {
	labels := h.Describe.DescribeOps(r.Key, r.Diff)
	ops := make([]opView, len(r.Diff))
	for i, op := range r.Diff {
		ops[i] = opView{Op: op.Op, Path: op.Path, Before: op.Before, After: op.After, Label: labels[i]}
	}
	return revisionView{
		ID:            r.ID,
		Key:           r.Key,
		Value:         r.Value,
		PreviousValue: r.PreviousValue,
		Diff:          ops,
		Stats:         diff.Summarize(r.Diff),
		Action:        r.Action,
		Actor:         r.Actor,
		SourcePath:    r.SourcePath,
		Note:          r.Note,
		CreatedAt:     r.CreatedAt,
	}
}

func (h *handlers) list(c *gin.Context, revs []model.Revision) {
	out := make([]revisionView, len(revs))
	for i, r := range revs {
		out[i] = h.view(r)
	}
	c.JSON(http.StatusOK, gin.H{"revisions": out})
}

func queryLimit(c *gin.Context) (int, error) {
	s := c.Query("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errs.ErrValidation
	}
	return n, nil
}

// history serves ?key= for one key, else recent revisions optionally
// filtered by ?pattern=.
func (h *handlers) history(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		h.writeError(c, "history", err)
		return
	}
	ctx := c.Request.Context()
	var revs []model.Revision
	switch key, pattern := c.Query("key"), c.Query("pattern"); {
	case key != "":
		revs, err = h.History.ListByKey(ctx, key, limit)
	case pattern != "":
		revs, err = h.History.Filter(ctx, pattern, limit)
	default:
		revs, err = h.History.ListRecent(ctx, limit)
	}
	if err != nil {
		h.writeError(c, "history", err)
		return
	}
	h.list(c, revs)
}

func (h *handlers) latest(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		h.writeError(c, "latest", err)
		return
	}
	revs, err := h.History.LatestPerKey(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, "latest", err)
		return
	}
	h.list(c, revs)
}

func (h *handlers) revision(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.writeError(c, "revision", errs.ErrValidation)
		return
	}
	rev, err := h.History.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "revision", err)
		return
	}
	c.JSON(http.StatusOK, h.view(*rev))
}
