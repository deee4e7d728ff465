package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testVector(dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(i) / float32(dim)
	}
	return vec
}

func TestOpenAIClientEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Dimensions != Dim {
			t.Errorf("dimensions = %d, want %d", req.Dimensions, Dim)
		}

		resp := openAIResponse{}
		// Return out of order to verify index-based reassembly.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: testVector(Dim), Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key")
	client.BaseURL = server.URL

	embeddings, err := client.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embeddings))
	}
	for i, emb := range embeddings {
		if len(emb) != Dim {
			t.Errorf("embedding %d has dimension %d, want %d", i, len(emb), Dim)
		}
	}
}

func TestOpenAIClientEmptyInput(t *testing.T) {
	client := NewOpenAIClient("test-key")
	embeddings, err := client.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(embeddings) != 0 {
		t.Errorf("expected no embeddings, got %d", len(embeddings))
	}
}

func TestOpenAIClientNoAPIKey(t *testing.T) {
	client := NewOpenAIClient("")
	_, err := client.Embed(context.Background(), []string{"text"})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestOpenAIClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewOpenAIClient("test-key")
	client.BaseURL = server.URL

	_, err := client.Embed(context.Background(), []string{"text"})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable for network failure, got %v", err)
	}
}

func TestOpenAIClientDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAIResponse{}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: testVector(5), Index: 0})
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key")
	client.BaseURL = server.URL

	_, err := client.Embed(context.Background(), []string{"text"})
	var mismatch *DimensionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if mismatch.Got != 5 || mismatch.Want != Dim {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestOpenAIClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(openAIResponse{Error: &openAIError{Message: "invalid key"}})
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key")
	client.BaseURL = server.URL

	_, err := client.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestEmbedOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAIResponse{}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: testVector(Dim), Index: 0})
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key")
	client.BaseURL = server.URL

	emb, err := client.EmbedOne(context.Background(), "text")
	if err != nil {
		t.Fatalf("EmbedOne failed: %v", err)
	}
	if len(emb) != Dim {
		t.Errorf("dimension = %d, want %d", len(emb), Dim)
	}
}
