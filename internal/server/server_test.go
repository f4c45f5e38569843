package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/config"
	"github.com/deusflow/opbop/internal/metrics"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/pipeline"
	"github.com/deusflow/opbop/internal/ratelimit"
)

type fakePipeline struct {
	req       pipeline.Request
	res       *pipeline.Result
	err       error
	keywords  []string
	recency   int
	blacklist []string
	text      string
}

func (f *fakePipeline) Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return f.res, nil
}

func (f *fakePipeline) ParseArticle(ctx context.Context, rawURL string) (*pipeline.ParsedArticle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.ParsedArticle{URL: rawURL, Title: "Storm", Keywords: []string{"storm"}, Reliability: model.ReliabilityHigh}, nil
}

func (f *fakePipeline) FindSimilar(ctx context.Context, kws []string, recencyDays int, blacklist []string) ([]model.RelatedArticle, error) {
	f.keywords, f.recency, f.blacklist = kws, recencyDays, blacklist
	return []model.RelatedArticle{{Title: "Other", URL: "https://other.org/a", Source: "Other"}}, f.err
}

func (f *fakePipeline) Shorten(text string) (model.Summary, error) {
	f.text = text
	if text == "" {
		return model.Summary{}, apperr.EmptyText("summarize")
	}
	return model.Summary{Text: "short", ReductionPct: 50}, nil
}

func (f *fakePipeline) Simplify(ctx context.Context, text string) (*pipeline.SimplifyResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.SimplifyResult{MainText: "simple", Sensitivity: model.SensitivityMild, Input: text}, nil
}

type fakeAdmin struct {
	driver, dsn string
	completion  config.Completion
	err         error
}

func (a *fakeAdmin) ReconfigureStore(ctx context.Context, driver, dsn string) error {
	a.driver, a.dsn = driver, dsn
	return a.err
}

func (a *fakeAdmin) ReconfigureCompletion(ctx context.Context, cfg config.Completion) error {
	a.completion = cfg
	return a.err
}

func newTestServer(p *fakePipeline, admin *fakeAdmin, m *metrics.Metrics) *Server {
	cfg := config.Default().Server
	cfg.AdminToken = "secret"
	if m == nil {
		m = metrics.New()
	}
	return New(p, admin, m, nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestRoot(t *testing.T) {
	s := newTestServer(&fakePipeline{}, &fakeAdmin{}, nil)

	w := do(s, "GET", "/", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OpBop server is running", w.Body.String())
}

func TestHealth(t *testing.T) {
	m := metrics.New()
	s := newTestServer(&fakePipeline{}, &fakeAdmin{}, m)

	w := do(s, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	m.RecordFailure("dependency_failure", "feed down")
	w = do(s, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "feed down", body["last_error"])
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.IncrementRuns()
	s := newTestServer(&fakePipeline{}, &fakeAdmin{}, m)

	w := do(s, "GET", "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, float64(1), body["runs_total"])
	_, hasBudget := body["completion_budget"]
	assert.Equal(t, false, hasBudget)
}

func TestMetrics_CompletionBudget(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.NewLimiter(map[string]int{"gemini": 50}, 0, logger)
	if err := limiter.Use("gemini"); err != nil {
		t.Fatal(err)
	}
	s := New(&fakePipeline{}, &fakeAdmin{}, metrics.New(), limiter, config.Default().Server, logger)

	w := do(s, "GET", "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Budget map[string]interface{} `json:"completion_budget"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, float64(1), body.Budget["gemini_used"])
	assert.Equal(t, float64(50), body.Budget["gemini_limit"])
}

func TestArticle_CensoredFlag(t *testing.T) {
	p := &fakePipeline{res: &pipeline.Result{
		CachedBundle: model.CachedBundle{
			URL:         "https://example.com/a",
			TLDR:        "summary text",
			Simplified:  "simple text",
			Sensitivity: model.SensitivityMild,
			Reliability: model.ReliabilityUnknown,
			Articles:    []model.RelatedArticle{},
		},
		Censored: true,
		Cached:   true,
	}}
	s := newTestServer(p, &fakeAdmin{}, nil)

	w := do(s, "POST", "/api/article", `{"url":"https://example.com/a","filterExplicit":"0","blacklist":["foxnews.com"],"articleRange":{"from":"2024-03-01","to":"2024-03-10"}}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.SensitivityNone, p.req.FilterLevel)
	assert.Equal(t, []string{"foxnews.com"}, p.req.Blacklist)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), p.req.Range.From)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), p.req.Range.To)

	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, true, body["censored"])
	assert.Equal(t, "summary text", body["tldr"])
	assert.Equal(t, "simple text", body["simplified"])
	assert.Equal(t, float64(1), body["sensitivity"])
	assert.Equal(t, "unknown", body["reliability"])
}

func TestArticle_FilterExplicitForms(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Sensitivity
	}{
		{`2`, model.SensitivityExplicit},
		{`"1"`, model.SensitivityMild},
		{`true`, model.SensitivityNone},
		{`false`, model.SensitivityExplicit},
	}

	for _, tt := range tests {
		p := &fakePipeline{res: &pipeline.Result{}}
		s := newTestServer(p, &fakeAdmin{}, nil)

		w := do(s, "POST", "/api/article", `{"url":"https://example.com/a","filterExplicit":`+tt.raw+`}`, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tt.want, p.req.FilterLevel)
	}
}

func TestArticle_Validation(t *testing.T) {
	bodies := []string{
		`{"url":""}`,
		`{"url":"https://example.com/a","filterExplicit":"high"}`,
		`{"url":"https://example.com/a","filterExplicit":1.5}`,
		`{"url":"https://example.com/a","filterExplicit":7}`,
		`{"url":"https://example.com/a"}`,
		`{"url":"https://example.com/a","filterExplicit":null}`,
		`{"url":"https://example.com/a","filterExplicit":0,"articleRange":{"from":"yesterday"}}`,
		`not json`,
	}

	for _, b := range bodies {
		s := newTestServer(&fakePipeline{res: &pipeline.Result{}}, &fakeAdmin{}, nil)
		w := do(s, "POST", "/api/article", b, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body errorResponse
		json.Unmarshal(w.Body.Bytes(), &body)
		assert.Equal(t, "validation", body.Kind)
	}
}

func TestArticle_ErrorKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperr.EmptyText("summarize"), http.StatusUnprocessableEntity},
		{apperr.E(apperr.KindIrreducibleText, "simplify", errors.New("too long")), http.StatusUnprocessableEntity},
		{apperr.Dependency("fetch", errors.New("refused")), http.StatusBadGateway},
		{apperr.Dependency("fetch", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{apperr.E(apperr.KindCacheUnavailable, "cache", errors.New("no store")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		s := newTestServer(&fakePipeline{err: tt.err}, &fakeAdmin{}, nil)
		w := do(s, "POST", "/api/article", `{"url":"https://example.com/a","filterExplicit":1}`, nil)
		assert.Equal(t, tt.status, w.Code)
	}
}

func TestParseArticle(t *testing.T) {
	s := newTestServer(&fakePipeline{}, &fakeAdmin{}, nil)

	w := do(s, "GET", "/api/parsearticle", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, "GET", "/api/parsearticle?url=https://example.com/a", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body pipeline.ParsedArticle
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, "https://example.com/a", body.URL)
	assert.Equal(t, model.ReliabilityHigh, body.Reliability)
}

func TestFindSimilar(t *testing.T) {
	p := &fakePipeline{}
	s := newTestServer(p, &fakeAdmin{}, nil)

	w := do(s, "GET", "/api/findsimilar?keywords=storm,harbor&keywords=port&blacklist=foxnews.com", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"storm", "harbor", "port"}, p.keywords)
	assert.Equal(t, -1, p.recency)
	assert.Equal(t, []string{"foxnews.com"}, p.blacklist)

	w = do(s, "GET", "/api/findsimilar?keywords=storm&recency=7", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, p.recency)

	w = do(s, "GET", "/api/findsimilar?keywords=storm&recency=week", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShortenAndSimplify(t *testing.T) {
	p := &fakePipeline{}
	s := newTestServer(p, &fakeAdmin{}, nil)

	w := do(s, "POST", "/api/shorten", `{"maintext":"A long text."}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A long text.", p.text)

	w = do(s, "POST", "/api/shorten", `{"maintext":""}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(s, "POST", "/api/simplify", `{"maintext":"A long text."}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, "simple", body["maintext"])
	assert.Equal(t, float64(1), body["sensitivity"])
}

func TestAdmin(t *testing.T) {
	admin := &fakeAdmin{}
	s := newTestServer(&fakePipeline{}, admin, nil)
	body := `{"driver":"postgres","dsn":"postgres://user:pw@db:5432/opbop"}`

	w := do(s, "PUT", "/api/admin/store", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(s, "PUT", "/api/admin/store", body, map[string]string{adminHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "", admin.driver)

	w = do(s, "PUT", "/api/admin/store", body, map[string]string{adminHeader: "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "postgres", admin.driver)
	assert.Equal(t, false, strings.Contains(w.Body.String(), "pw@"))

	w = do(s, "PUT", "/api/admin/completion", `{"provider":"OpenAI","apiKey":"sk-1","model":"gpt-4o-mini"}`, map[string]string{adminHeader: "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "openai", admin.completion.Provider)
	assert.Equal(t, "sk-1", admin.completion.APIKey)

	w = do(s, "PUT", "/api/admin/completion", `{"provider":"openai"}`, map[string]string{adminHeader: "secret"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_DisabledWithoutToken(t *testing.T) {
	cfg := config.Default().Server
	s := New(&fakePipeline{}, &fakeAdmin{}, metrics.New(), nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := do(s, "PUT", "/api/admin/store", `{"driver":"memory"}`, map[string]string{adminHeader: ""})

	assert.Equal(t, http.StatusForbidden, w.Code)
}
