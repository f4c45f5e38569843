package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deusflow/opbop/internal/model"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI("test-key", "", srv.URL+"/v1", 0)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestOpenAISimplify(t *testing.T) {
	var gotModel string
	svc := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "A big storm came.\nNote: simplified."},
				"finish_reason": "stop",
			}},
		})
	})

	out, err := svc.Simplify(context.Background(), "A severe storm system arrived.")
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if out != "A big storm came." {
		t.Errorf("got %q", out)
	}
	if gotModel != defaultOpenAIModel {
		t.Errorf("model = %q, want %q", gotModel, defaultOpenAIModel)
	}
}

func TestOpenAIContextLengthExceeded(t *testing.T) {
	svc := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"message": "This model's maximum context length is 8192 tokens.",
				"type":    "invalid_request_error",
				"param":   "messages",
				"code":    "context_length_exceeded",
			},
		})
	})

	_, err := svc.Simplify(context.Background(), "long text")
	if !errors.Is(err, ErrInputTooLarge) {
		t.Fatalf("expected ErrInputTooLarge, got %v", err)
	}
}

func TestOpenAIServerError(t *testing.T) {
	svc := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"message": "boom", "type": "server_error"},
		})
	})

	_, err := svc.Simplify(context.Background(), "text")
	if err == nil || errors.Is(err, ErrInputTooLarge) {
		t.Fatalf("expected a plain provider error, got %v", err)
	}
}

func TestOpenAIModerate(t *testing.T) {
	tests := []struct {
		name       string
		flagged    bool
		categories map[string]bool
		want       model.Sensitivity
	}{
		{"clean", false, map[string]bool{}, model.SensitivityNone},
		{"violence", true, map[string]bool{"violence": true}, model.SensitivityMild},
		{"sexual", true, map[string]bool{"sexual": true}, model.SensitivityExplicit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/moderations" {
					http.NotFound(w, r)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"id":    "modr-1",
					"model": "omni-moderation-latest",
					"results": []map[string]any{{
						"flagged":    tt.flagged,
						"categories": tt.categories,
					}},
				})
			})

			got, err := svc.Moderate(context.Background(), "some text")
			if err != nil {
				t.Fatalf("Moderate: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
