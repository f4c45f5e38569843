package completion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deusflow/opbop/internal/model"
)

func newAnthropicTestServer(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAnthropic("test-key", "", srv.URL, 0)
}

func TestAnthropicModerate(t *testing.T) {
	svc := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-haiku-4-5",
			"content":     []map[string]any{{"type": "text", "text": "1"}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 1},
		})
	})

	got, err := svc.Moderate(context.Background(), "Police reported a robbery downtown.")
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if got != model.SensitivityMild {
		t.Errorf("got %d, want %d", got, model.SensitivityMild)
	}
}

func TestAnthropicInputTooLarge(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		tooBig  bool
	}{
		{"prompt too long", http.StatusBadRequest, "prompt is too long: 250000 tokens > 200000 maximum", true},
		{"request too large", http.StatusRequestEntityTooLarge, "request exceeds the maximum allowed size", true},
		{"other bad request", http.StatusBadRequest, "messages: field required", false},
		{"forbidden", http.StatusForbidden, "permission denied", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]any{
					"type":  "error",
					"error": map[string]any{"type": "invalid_request_error", "message": tt.message},
				})
			})

			_, err := svc.Simplify(context.Background(), "text")
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, ErrInputTooLarge); got != tt.tooBig {
				t.Errorf("errors.Is(err, ErrInputTooLarge) = %v, want %v (err: %v)", got, tt.tooBig, err)
			}
		})
	}
}
