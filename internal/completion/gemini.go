package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/opbop/internal/model"
)

const defaultGeminiModel = "gemini-1.5-flash"

type Gemini struct {
	client        *genai.Client
	model         string
	maxInputChars int
}

// NewGemini connects to the Gemini API. An empty modelName selects
// gemini-1.5-flash; maxInputChars of 0 disables the local length check.
func NewGemini(ctx context.Context, apiKey, modelName string, maxInputChars int) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	return &Gemini{client: client, model: modelName, maxInputChars: maxInputChars}, nil
}

func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *Gemini) generate(ctx context.Context, system, text string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(0.2)
	m.SystemInstruction = genai.NewUserContent(genai.Text(system))

	resp, err := m.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from Gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func (g *Gemini) InputLimit() int { return g.maxInputChars }

func (g *Gemini) Simplify(ctx context.Context, text string) (string, error) {
	if err := checkLength(text, g.maxInputChars); err != nil {
		return "", err
	}
	out, err := g.generate(ctx, simplifyPrompt, text)
	if err != nil {
		return "", geminiError(err)
	}
	return SanitizeText(out), nil
}

// Moderate asks the model for a rating. A response blocked by Gemini's own
// safety filters counts as explicit.
func (g *Gemini) Moderate(ctx context.Context, text string) (model.Sensitivity, error) {
	if err := checkLength(text, g.maxInputChars); err != nil {
		return 0, err
	}
	out, err := g.generate(ctx, moderatePrompt, text)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.SensitivityExplicit, nil
		}
		return 0, geminiError(err)
	}
	return parseSensitivity(out)
}

func geminiError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "exceeds the maximum number of tokens") || strings.Contains(msg, "input token count") {
		return fmt.Errorf("%w: %v", ErrInputTooLarge, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
