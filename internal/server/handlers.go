package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/config"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/pipeline"
	"github.com/deusflow/opbop/internal/storage"
)

const maxBodyBytes = 1 << 20

// filterLevel is the caller's tolerance. The extension has sent it as a
// number, a numeric string and a checkbox boolean; true means filter
// everything. It is required: a missing or null value is rejected.
type filterLevel model.Sensitivity

func (f *filterLevel) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case bool:
		if t {
			*f = filterLevel(model.SensitivityNone)
		} else {
			*f = filterLevel(model.SensitivityExplicit)
		}
	case float64:
		if t != float64(int(t)) {
			return fmt.Errorf("filterExplicit must be an integer, got %v", t)
		}
		*f = filterLevel(int(t))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return fmt.Errorf("filterExplicit must be 0, 1 or 2, got %q", t)
		}
		*f = filterLevel(n)
	default:
		return fmt.Errorf("filterExplicit has unsupported type %T", v)
	}
	return nil
}

type articleRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type articleRequest struct {
	URL            string        `json:"url"`
	ArticleRange   *articleRange `json:"articleRange"`
	FilterExplicit *filterLevel  `json:"filterExplicit"`
	Blacklist      []string      `json:"blacklist"`
}

type textRequest struct {
	MainText string `json:"maintext"`
}

type storeRequest struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type completionRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
	Model    string `json:"model"`
	BaseURL  string `json:"baseUrl"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OpBop server is running"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()

	status, code := "ok", http.StatusOK
	if !s.metrics.Healthy() {
		status, code = "error", http.StatusServiceUnavailable
	}

	s.respondJSON(w, code, map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()
	if s.budget != nil {
		stats["completion_budget"] = s.budget.GetStats()
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	var body articleRequest
	if err := s.decode(w, r, &body); err != nil {
		s.respondError(w, err)
		return
	}
	if body.FilterExplicit == nil {
		s.respondError(w, apperr.Validation("article", "filterExplicit is required"))
		return
	}

	req := pipeline.Request{
		URL:         strings.TrimSpace(body.URL),
		FilterLevel: model.Sensitivity(*body.FilterExplicit),
		Blacklist:   body.Blacklist,
	}
	if body.ArticleRange != nil {
		var err error
		if req.Range.From, err = parseDate("articleRange.from", body.ArticleRange.From); err != nil {
			s.respondError(w, err)
			return
		}
		if req.Range.To, err = parseDate("articleRange.to", body.ArticleRange.To); err != nil {
			s.respondError(w, err)
			return
		}
	}

	res, err := s.pipeline.Process(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleParseArticle(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		s.respondError(w, apperr.Validation("parsearticle", "url is required"))
		return
	}

	res, err := s.pipeline.ParseArticle(r.Context(), rawURL)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	recency := -1
	if v := q.Get("recency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, apperr.Validation("findsimilar", "recency must be an integer, got %q", v))
			return
		}
		recency = n
	}

	articles, err := s.pipeline.FindSimilar(r.Context(), splitParam(q["keywords"]), recency, splitParam(q["blacklist"]))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"articles": articles})
}

func (s *Server) handleShorten(w http.ResponseWriter, r *http.Request) {
	var body textRequest
	if err := s.decode(w, r, &body); err != nil {
		s.respondError(w, err)
		return
	}

	sum, err := s.pipeline.Shorten(body.MainText)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"maintext":  sum.Text,
		"reduction": sum.ReductionPct,
	})
}

func (s *Server) handleSimplify(w http.ResponseWriter, r *http.Request) {
	var body textRequest
	if err := s.decode(w, r, &body); err != nil {
		s.respondError(w, err)
		return
	}

	res, err := s.pipeline.Simplify(r.Context(), body.MainText)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleReconfigureStore(w http.ResponseWriter, r *http.Request) {
	var body storeRequest
	if err := s.decode(w, r, &body); err != nil {
		s.respondError(w, err)
		return
	}
	if body.Driver == "" {
		s.respondError(w, apperr.Validation("admin", "driver is required"))
		return
	}

	if err := s.admin.ReconfigureStore(r.Context(), body.Driver, body.DSN); err != nil {
		s.respondError(w, err)
		return
	}
	s.log.Info("Cache store reconfigured", "driver", body.Driver, "dsn", storage.MaskDSN(body.DSN))
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"driver": body.Driver,
		"dsn":    storage.MaskDSN(body.DSN),
	})
}

func (s *Server) handleReconfigureCompletion(w http.ResponseWriter, r *http.Request) {
	var body completionRequest
	if err := s.decode(w, r, &body); err != nil {
		s.respondError(w, err)
		return
	}
	if body.Provider == "" || body.APIKey == "" {
		s.respondError(w, apperr.Validation("admin", "provider and apiKey are required"))
		return
	}

	cfg := config.Completion{
		Provider: strings.ToLower(body.Provider),
		APIKey:   body.APIKey,
		Model:    body.Model,
		BaseURL:  body.BaseURL,
	}
	if err := s.admin.ReconfigureCompletion(r.Context(), cfg); err != nil {
		s.respondError(w, err)
		return
	}
	s.log.Info("Completion provider reconfigured", "provider", cfg.Provider, "model", cfg.Model)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": cfg.Provider})
}

// decode reads a JSON body into v. Malformed bodies are validation errors.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("decode", "invalid request body: %v", err)
	}
	return nil
}

func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("request", "%s must be YYYY-MM-DD, got %q", field, v)
}

// splitParam accepts both repeated and comma-separated query values.
func splitParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindEmptyText, apperr.KindIrreducibleText:
		return http.StatusUnprocessableEntity
	case apperr.KindDependencyFailure:
		return http.StatusBadGateway
	case apperr.KindDependencyTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindCacheUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "kind", kind, "error", err)
	}

	msg := err.Error()
	if kind == apperr.KindInternal {
		msg = "internal error"
	}
	s.respondJSON(w, status, errorResponse{Error: msg, Kind: string(kind)})
}

func (s *Server) respondMessage(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
