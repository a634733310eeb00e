package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini asks a Gemini model for suggestions.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a client for the given API key and model name.
// Close must be called when done.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:  client,
		model:   model,
		timeout: 15 * time.Second,
	}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Suggest implements Suggester.
func (g *Gemini) Suggest(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text("You help plan relaxed weekends. Answer with a single short activity."))
	model.SetTemperature(0.9)
	model.SetMaxOutputTokens(64)

	res, err := model.GenerateContent(ctx, genai.Text(Prompt(req)))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var b strings.Builder
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		for _, part := range res.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}

	out := Clean(b.String())
	if out == "" {
		return "", fmt.Errorf("gemini returned no text: %w", ErrUnavailable)
	}
	return out, nil
}
