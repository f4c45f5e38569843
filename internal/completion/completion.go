// Package completion talks to the hosted language models that simplify
// summaries and rate their sensitivity.
package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/opbop/internal/config"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/textutil"
)

// ErrInputTooLarge means the text exceeds what the provider accepts. The
// caller is expected to shorten it and try again.
var ErrInputTooLarge = errors.New("completion: input exceeds model limit")

var ErrNotConfigured = errors.New("completion: no provider configured")

type Service interface {
	Simplify(ctx context.Context, text string) (string, error)
	Moderate(ctx context.Context, text string) (model.Sensitivity, error)
}

const simplifyPrompt = "Rewrite the news summary you are given in plain English that a second grader " +
	"could understand. Keep every fact and do not add new ones. Reply with the rewritten text only."

const moderatePrompt = "Rate the text you are given for sensitive content. Reply with one digit and nothing else: " +
	"0 when it is suitable for children, 1 when it describes violence, crime, drugs or other mature topics, " +
	"2 when it is sexually explicit or graphically violent."

// New builds the provider named in cfg.
func New(ctx context.Context, cfg config.Completion) (Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Provider)
	}
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.MaxInputChars)
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxInputChars), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxInputChars), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}

// Close releases provider resources when svc holds any.
func Close(svc Service) error {
	if c, ok := svc.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func checkLength(text string, maxChars int) error {
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		return fmt.Errorf("%w: %d characters, limit %d", ErrInputTooLarge, utf8.RuneCountInString(text), maxChars)
	}
	return nil
}

var sensitivityDigit = regexp.MustCompile(`[0-2]`)

// parseSensitivity reads the first 0, 1 or 2 in a model reply.
func parseSensitivity(reply string) (model.Sensitivity, error) {
	d := sensitivityDigit.FindString(reply)
	if d == "" {
		return 0, fmt.Errorf("unexpected moderation reply %q", reply)
	}
	return model.ParseSensitivity(int(d[0] - '0'))
}

var (
	parenNote   = regexp.MustCompile(`(?is)\(\s*(?:note|disclaimer)\s*:[^)]*\)`)
	bracketNote = regexp.MustCompile(`(?is)\[\s*(?:note|disclaimer)\s*:[^\]]*\]`)
)

// SanitizeText strips code fences, "Note:" disclaimers and wrapping quotes
// that models add around their answer, and joins the result into one line.
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	s = parenNote.ReplaceAllString(s, " ")
	s = bracketNote.ReplaceAllString(s, " ")

	var kept []string
	for _, line := range strings.Split(s, "\n") {
		l := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(l, "note:") || strings.HasPrefix(l, "disclaimer:") {
			continue
		}
		kept = append(kept, line)
	}

	s = textutil.CollapseSpace(strings.Join(kept, " "))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
