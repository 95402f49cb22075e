package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newChatCompletionsServer serves the OpenAI chat completions protocol for
// one fixed answer, streaming it as SSE deltas when the request asks for a
// stream and returning it whole otherwise.
func newChatCompletionsServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	full := strings.Join(deltas, "")

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		if strings.Contains(string(body), `"stream":true`) {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, delta := range deltas {
				fmt.Fprintf(w,
					"data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"model\":\"llama3.1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n",
					delta)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w,
			"{\"id\":\"1\",\"object\":\"chat.completion\",\"model\":\"llama3.1\",\"choices\":[{\"index\":0,\"message\":{\"role\":\"assistant\",\"content\":%q}}]}",
			full)
	}))
}

func TestOllamaProvider_GenerateStream_MatchesGenerate(t *testing.T) {
	deltas := []string{"You are a senior copywriter.", " Your task is", " to write."}
	server := newChatCompletionsServer(t, deltas)
	defer server.Close()

	provider, err := NewOllamaProvider(OllamaConfig{BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := provider.Generate(context.Background(), &Request{Prompt: "rewrite this"})
	require.NoError(t, err)

	chunks, err := provider.GenerateStream(context.Background(), &Request{Prompt: "rewrite this"})
	require.NoError(t, err)

	var streamed strings.Builder
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		streamed.WriteString(chunk.Text)
	}

	// The channel has closed by now; the concatenated chunks must equal the
	// non-streaming text.
	assert.Equal(t, resp.Text, streamed.String())
	assert.Equal(t, strings.Join(deltas, ""), streamed.String())
}

func TestOllamaProvider_GenerateStream_ErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(OllamaConfig{BaseURL: server.URL})
	require.NoError(t, err)

	chunks, err := provider.GenerateStream(context.Background(), &Request{Prompt: "rewrite this"})
	require.NoError(t, err)

	var errChunk error
	for chunk := range chunks {
		if chunk.Err != nil {
			errChunk = chunk.Err
		}
	}

	var generationErr *GenerationError
	require.ErrorAs(t, errChunk, &generationErr)
	assert.Equal(t, "ollama", generationErr.Provider)
}

func TestOllamaProvider_GenerateKeepsConfiguredModel(t *testing.T) {
	server := newChatCompletionsServer(t, []string{"done"})
	defer server.Close()

	provider, err := NewOllamaProvider(OllamaConfig{BaseURL: server.URL, Model: "mistral"})
	require.NoError(t, err)

	resp, err := provider.Generate(context.Background(), &Request{Prompt: "rewrite this"})
	require.NoError(t, err)
	assert.Equal(t, "mistral", resp.Model)
}
