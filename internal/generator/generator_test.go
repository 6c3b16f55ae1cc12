package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer qk", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen-flash", req.Model)
		assert.InDelta(t, 0.2, req.Temperature, 1e-9)
		assert.Equal(t, 500, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "[1] enak banget")

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
}

func newTestChat(t *testing.T, url string) *ChatGenerator {
	t.Helper()
	g, err := NewChat(Config{BaseURL: url + "/", Model: "qwen-flash", APIKey: "qk", Temperature: 0.2})
	require.NoError(t, err)
	return g
}

func TestChatGenerator(t *testing.T) {
	ctx := context.Background()
	contexts := []string{"enak banget", "kurang asin"}

	t.Run("returns answer verbatim", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, "  Rasanya enak [1].  ")
		defer srv.Close()

		got, err := newTestChat(t, srv.URL).Generate(ctx, "bagaimana rasanya?", contexts)
		require.NoError(t, err)
		assert.Equal(t, "Rasanya enak [1].", got)
	})

	t.Run("empty content", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, "")
		defer srv.Close()

		got, err := newTestChat(t, srv.URL).Generate(ctx, "q", contexts)
		require.NoError(t, err)
		assert.Equal(t, EmptyAnswer, got)
	})

	t.Run("endpoint error", func(t *testing.T) {
		srv := chatServer(t, http.StatusTooManyRequests, "")
		defer srv.Close()

		_, err := newTestChat(t, srv.URL).Generate(ctx, "q", contexts)
		assert.ErrorIs(t, err, ErrGeneration)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("no contexts skips the call", func(t *testing.T) {
		g := newTestChat(t, "http://127.0.0.1:1")
		got, err := g.Generate(ctx, "q", nil)
		require.NoError(t, err)
		assert.Equal(t, NoContextAnswer, got)
	})

	t.Run("config validation", func(t *testing.T) {
		_, err := NewChat(Config{BaseURL: "http://x", Model: "m"})
		assert.Error(t, err)
		_, err = NewChat(Config{APIKey: "k"})
		assert.Error(t, err)
	})
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("harganya?", []string{"mahal", "murah"})
	assert.Contains(t, p, "KONTEKS:\n[1] mahal\n\n[2] murah\n\nPERTANYAAN: harganya?")
	assert.True(t, strings.HasSuffix(p, "JAWABAN:"))
}

func TestFallbackAnswer(t *testing.T) {
	long := strings.Repeat("a", 150)
	got := FallbackAnswer([]string{long, "b", "c", "d"})
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "- "+strings.Repeat("a", 100)+"...", lines[1])
	assert.Equal(t, "- c...", lines[3])

	assert.Equal(t, "[Error generating answer] Konteks:", FallbackAnswer(nil))
}
