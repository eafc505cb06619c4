package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllama_Analyze(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "  COORDINATE_BENEFICIAL: yes \n"})
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{Endpoint: srv.URL + "/"})
	resp, err := o.Analyze(context.Background(), "split?")
	require.NoError(t, err)

	assert.Equal(t, "COORDINATE_BENEFICIAL: yes", resp)
	assert.Equal(t, DefaultOllamaModel, got.Model)
	assert.Equal(t, "split?", got.Prompt)
	assert.False(t, got.Stream)
	assert.Equal(t, "ollama/deepseek-r1:8b", o.Name())
}

func TestOllama_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(OllamaConfig{Endpoint: srv.URL, Model: "missing"}).Analyze(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllama_RespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := NewOllama(OllamaConfig{Endpoint: srv.URL}).Analyze(ctx, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewAnthropic(t *testing.T) {
	a, err := NewAnthropic(AnthropicConfig{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, a.Model())
	assert.Zero(t, a.Usage().Calls())

	a, err = NewAnthropic(AnthropicConfig{APIKey: "test-key", Model: string(anthropic.ModelClaudeSonnet4_20250514)})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/"+string(anthropic.ModelClaudeSonnet4_20250514), a.Name())
}

func TestNewAnthropic_NoKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-only")
	_, err := NewAnthropic(AnthropicConfig{})
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestBedrockModel(t *testing.T) {
	assert.Equal(t, anthropic.Model("us.anthropic.claude-haiku-4-5-20251001-v1:0"), bedrockModel(anthropic.ModelClaudeHaiku4_5_20251001))
	assert.Equal(t, anthropic.Model("custom"), bedrockModel("custom"))
}

func TestNew(t *testing.T) {
	a, err := New(Config{Backend: "Ollama", Model: "llama3.1"})
	require.NoError(t, err)
	assert.Equal(t, "ollama/llama3.1", a.Name())

	a, err = New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, a)

	_, err = New(Config{Backend: "none"})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(Config{Backend: "gpt"})
	assert.Error(t, err)
}

func TestUsage(t *testing.T) {
	var u Usage
	u.Add(10, 5)
	u.Add(1, 2)
	in, out := u.Total()
	assert.Equal(t, int64(11), in)
	assert.Equal(t, int64(7), out)
	assert.Equal(t, 2, u.Calls())
}
