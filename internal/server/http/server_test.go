package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/sitecfg/internal/describe"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/metrics"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/repository/sqlite"
	"github.com/and161185/sitecfg/internal/service"
	"github.com/and161185/sitecfg/internal/tree"
)

func init() { gin.SetMode(gin.TestMode) }

type fixture struct {
	router *gin.Engine
	docs   *service.DocumentServiceImpl
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	docs, err := service.NewDocumentService(service.DocumentDeps{Store: store, Metrics: m, Logger: log})
	require.NoError(t, err)
	history := service.NewHistoryService(store, docs, m, log)

	r := NewRouter(Deps{
		Docs:     docs,
		History:  history,
		Describe: &describe.Describer{Labels: map[string]string{"hero": "Hero"}},
		Ready:    store,
		Gatherer: reg,
		Logger:   log,
	})
	return &fixture{router: r, docs: docs}
}

func (f *fixture) commit(t *testing.T, key, doc string) {
	t.Helper()
	_, err := f.docs.Commit(context.Background(), key, tree.MustParse(doc), model.CommitMeta{
		Actor: model.Actor{Username: "editor"},
	})
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, url string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type revisionsBody struct {
	Revisions []struct {
		ID   int64  `json:"id"`
		Key  string `json:"key"`
		Diff []struct {
			Op     string          `json:"op"`
			Path   string          `json:"path"`
			Before json.RawMessage `json:"before"`
			After  json.RawMessage `json:"after"`
			Label  string          `json:"label"`
		} `json:"diff"`
		PreviousValue json.RawMessage `json:"previousValue"`
	} `json:"revisions"`
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.commit(t, "home", `{"a":1}`)

	require.Equal(t, http.StatusOK, f.get(t, "/healthz").Code)

	w := f.get(t, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "sitecfg_commits_total")
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errs.ErrUnavailable }

func TestReady_StoreDown(t *testing.T) {
	t.Parallel()
	r := NewRouter(Deps{Ready: downPinger{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	r = NewRouter(Deps{})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"degraded"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocument_ETag(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.commit(t, "pages/about", `{"title":"About"}`)

	w := f.get(t, "/v1/documents/pages/about")
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.Equal(t, `"`+tree.MustParse(`{"title":"About"}`).Digest()+`"`, etag)

	var body struct {
		Key      string          `json:"key"`
		Document json.RawMessage `json:"document"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "pages/about", body.Key)
	require.JSONEq(t, `{"title":"About"}`, string(body.Document))

	w = f.get(t, "/v1/documents/pages/about", "If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, w.Code)
	require.Empty(t, w.Body.String())

	for _, inm := range []string{"W/" + etag, `"stale", ` + etag, "*"} {
		require.Equal(t, http.StatusNotModified, f.get(t, "/v1/documents/pages/about", "If-None-Match", inm).Code, inm)
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/documents/pages/about", "If-None-Match", `"stale", W/"other"`).Code)

	require.Equal(t, http.StatusNotFound, f.get(t, "/v1/documents/missing").Code)
	require.Equal(t, http.StatusBadRequest, f.get(t, "/v1/documents/").Code)
}

func TestEtagMatches(t *testing.T) {
	t.Parallel()
	const etag = `"abc"`
	tests := map[string]bool{
		``:                false,
		`"abc"`:           true,
		`W/"abc"`:         true,
		` "x" , W/"abc" `: true,
		`*`:               true,
		`"abcd"`:          false,
		`abc`:             false,
		`"x", "y"`:        false,
	}
	for header, want := range tests {
		require.Equal(t, want, etagMatches(header, etag), header)
	}
}

func TestDocument_LocalizedField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.commit(t, "home", `{
		"hero": {"title": {"en": "Welcome", "de": " "}, "subtitle": "Plain", "ctaEn": "Go", "ctaDe": "Los"},
		"cleared": {"title": null, "titleDe": "Hallo"},
		"slides": [{"caption": {"fr": "Bonjour"}}]
	}`)

	read := func(query string) (int, string) {
		w := f.get(t, "/v1/documents/home?"+query)
		if w.Code != http.StatusOK {
			return w.Code, ""
		}
		var body struct {
			Value string `json:"value"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return w.Code, body.Value
	}

	cases := []struct {
		query string
		want  string
	}{
		{"field=/hero/title&locale=en", "Welcome"},
		{"field=/hero/title&locale=de", "Welcome"},
		{"field=/hero/subtitle&locale=de", "Plain"},
		{"field=/hero/cta&locale=de", "Los"},
		{"field=/hero/cta&locale=fr", "Go"},
		{"field=/cleared/title&locale=de", ""},
		{"field=/slides/0/caption&locale=en", "Bonjour"},
		{"field=/missing/title&locale=en", ""},
		{"field=/hero/title&locale=fr&default=de", "Welcome"},
	}
	for _, tc := range cases {
		code, got := read(tc.query)
		require.Equal(t, http.StatusOK, code, tc.query)
		require.Equal(t, tc.want, got, tc.query)
	}

	code, _ := read("field=/hero/title")
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = read("field=hero&locale=en")
	require.Equal(t, http.StatusBadRequest, code)
	f.commit(t, "bad", `{"n": 5}`)
	w := f.get(t, "/v1/documents/bad?field=/n&locale=en")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.commit(t, "home", `{"hero":{"title":"A"}}`)
	f.commit(t, "home", `{"hero":{"title":"B"}}`)
	f.commit(t, "pages/about", `{"x":1}`)

	var body revisionsBody
	w := f.get(t, "/v1/history?key=home")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Revisions, 2)
	newest := body.Revisions[0]
	require.Len(t, newest.Diff, 1)
	require.Equal(t, "replace", newest.Diff[0].Op)
	require.Equal(t, "/hero/title", newest.Diff[0].Path)
	require.Equal(t, "Hero › title", newest.Diff[0].Label)
	require.JSONEq(t, `"A"`, string(newest.Diff[0].Before))
	require.Nil(t, body.Revisions[1].PreviousValue)

	body = revisionsBody{}
	w = f.get(t, "/v1/history?pattern=pages/*")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Revisions, 1)
	require.Equal(t, "pages/about", body.Revisions[0].Key)

	body = revisionsBody{}
	w = f.get(t, "/v1/history?limit=2")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Revisions, 2)

	body = revisionsBody{}
	w = f.get(t, "/v1/history/latest")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Revisions, 2)

	id := body.Revisions[0].ID
	w = f.get(t, fmt.Sprintf("/v1/revisions/%d", id))
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusNotFound, f.get(t, "/v1/revisions/9999").Code)
	require.Equal(t, http.StatusBadRequest, f.get(t, "/v1/revisions/abc").Code)
	require.Equal(t, http.StatusBadRequest, f.get(t, "/v1/history?limit=x").Code)
	require.Equal(t, http.StatusBadRequest, f.get(t, "/v1/history?pattern=%5B").Code)
}

type failingHistory struct{ service.HistoryService }

func (failingHistory) ListRecent(context.Context, int) ([]model.Revision, error) {
	return nil, errors.New("boom")
}

func TestHistory_InternalError(t *testing.T) {
	t.Parallel()
	r := NewRouter(Deps{History: failingHistory{}, Logger: zaptest.NewLogger(t)})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"internal"}`, w.Body.String())
}
