package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_WireContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		assert.Equal(t, "qwen3:0.6b", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, 0.7, req.Options.Temperature)
		assert.Equal(t, 0.9, req.Options.TopP)
		assert.Equal(t, 40, req.Options.TopK)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":    map[string]string{"role": "assistant", "content": "hello"},
			"eval_count": 42,
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, ChatModel: "qwen3:0.6b"})

	result, err := c.Chat(context.Background(), "", []ChatMessage{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)

	assert.Equal(t, "hello", result.Content)
	assert.Equal(t, 42, result.EvalCount)
}

func TestChat_ServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.Chat(context.Background(), "m", []ChatMessage{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAnalyzeDocument_WireContract(t *testing.T) {
	fileBytes := []byte{0x25, 0x50, 0x44, 0x46}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		assert.Equal(t, "qwen2.5-vl:3b", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, 0.3, req.Options.Temperature)
		assert.NotEmpty(t, req.Prompt)
		require.Len(t, req.Images, 1)

		decoded, err := base64.StdEncoding.DecodeString(req.Images[0])
		require.NoError(t, err)
		assert.Equal(t, fileBytes, decoded)

		json.NewEncoder(w).Encode(map[string]string{"response": "a pdf document"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, VisionModel: "qwen2.5-vl:3b"})

	text, err := c.AnalyzeDocument(context.Background(), "", fileBytes)
	require.NoError(t, err)
	assert.Equal(t, "a pdf document", text)
}

func TestAnalyzeDocument_ServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.AnalyzeDocument(context.Background(), "m", []byte("x"))
	assert.ErrorIs(t, err, ErrAnalysisFailed)
}

func TestEmbed_WireContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "some text", req.Prompt)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float64{0.25, 0.5, -1},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, EmbeddingModel: "nomic-embed-text"})

	embedding, err := c.Embed(context.Background(), "", "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, -1}, embedding)
}

func TestListModels_WireContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]interface{}{
				{"name": "qwen3:0.6b", "size": 523000000, "modified_at": "2025-01-01T00:00:00Z"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	list, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "qwen3:0.6b", list[0].Name)
	assert.Equal(t, int64(523000000), list[0].Size)
}

func TestListModels_ServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.ListModels(context.Background())
	assert.ErrorIs(t, err, ErrModelListFailed)
}
