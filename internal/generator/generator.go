// Package generator drafts an answer from retrieved comment contexts using
// an OpenAI-compatible chat completions endpoint.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Answers returned without calling a model.
const (
	NoContextAnswer    = "Tidak ada dokumen relevan yang ditemukan."
	NoGenerationAnswer = "[No LLM] Generation is not configured."
	EmptyAnswer        = "Tidak dapat menghasilkan jawaban."
)

const (
	systemPrompt = "Kamu asisten yang menjawab berdasarkan konteks."
	fallbackTop  = 3
	fallbackLen  = 100
)

// ErrGeneration wraps any failure of the model call.
var ErrGeneration = errors.New("generation failed")

// Generator turns a question plus ranked contexts into answer text.
type Generator interface {
	Generate(ctx context.Context, query string, contexts []string) (string, error)
	Model() string
}

// Config configures the chat client.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatGenerator calls POST {base}/chat/completions.
type ChatGenerator struct {
	cfg    Config
	client *http.Client
}

// NewChat validates cfg and builds the client.
func NewChat(cfg Config) (*ChatGenerator, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("generator: base url and model are required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generator: api key is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &ChatGenerator{cfg: cfg, client: client}, nil
}

func (g *ChatGenerator) Model() string { return g.cfg.Model }

// Generate sends one system and one user message and returns the first
// choice verbatim, trimmed.
func (g *ChatGenerator) Generate(ctx context.Context, query string, contexts []string) (string, error) {
	if len(contexts) == 0 {
		return NoContextAnswer, nil
	}
	payload, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(query, contexts)},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %w", ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: call endpoint: %w", ErrGeneration, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: endpoint returned %d: %s", ErrGeneration, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrGeneration, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrGeneration)
	}
	answer := strings.TrimSpace(out.Choices[0].Message.Content)
	if answer == "" {
		return EmptyAnswer, nil
	}
	return answer, nil
}

// BuildPrompt numbers contexts from 1 so the model can cite them as [i].
func BuildPrompt(query string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Berdasarkan konteks berikut, jawab pertanyaan dengan ringkas dan jelas. ")
	b.WriteString("Jika informasi tidak tersedia dalam konteks, katakan 'tidak diketahui'. ")
	b.WriteString("Gunakan kutipan [angka] bila relevan.\n\nKONTEKS:\n")
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, c)
	}
	fmt.Fprintf(&b, "\n\nPERTANYAAN: %s\n\nJAWABAN:", query)
	return b.String()
}

// FallbackAnswer lists the leading contexts when generation fails.
func FallbackAnswer(contexts []string) string {
	var b strings.Builder
	b.WriteString("[Error generating answer] Konteks:")
	for _, c := range contexts[:min(fallbackTop, len(contexts))] {
		r := []rune(c)
		if len(r) > fallbackLen {
			r = r[:fallbackLen]
		}
		b.WriteString("\n- ")
		b.WriteString(string(r))
		b.WriteString("...")
	}
	return b.String()
}
