package llmprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Generate_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5:7b", req.Model)
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Response:        "SELECT 1",
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(context.Background(), OllamaConfig{Host: srv.URL, Model: "qwen2.5:7b"})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", resp.Text)
	assert.Equal(t, 10, resp.PromptTokens)
	assert.Equal(t, 5, resp.CompletionTokens)
}

func TestOllamaClient_Generate_RetriesOn5xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "ok"})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(context.Background(), OllamaConfig{
		Host: srv.URL, MaxRetries: 3,
	})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 3, attempts)
}

func TestOllamaClient_Generate_NonRetryableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewOllamaClient(context.Background(), OllamaConfig{Host: srv.URL, MaxRetries: 1})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Generate(context.Background(), Request{Prompt: "hi"})
	assert.Error(t, err)
}

func TestNewOllamaClient_HealthCheckFails(t *testing.T) {
	_, err := NewOllamaClient(context.Background(), OllamaConfig{Host: "http://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestOllamaClient_Generate_AfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewOllamaClient(context.Background(), OllamaConfig{Host: srv.URL})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Generate(context.Background(), Request{Prompt: "hi"})
	assert.Error(t, err)
}
