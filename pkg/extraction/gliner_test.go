package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGLiNERClientExtract(t *testing.T) {
	var gotReq glinerRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(glinerResponse{Entities: []ExtractedEntity{
			{Text: "Jane Doe", Label: "person", Confidence: 0.92, Start: 0, End: 8},
			{Text: "maybe", Label: "conversation_topic", Confidence: 0.1},
		}})
	}))
	defer server.Close()

	client := NewGLiNERClient(server.URL)
	entities, err := client.Extract(context.Background(), "Jane Doe spoke", nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Low-confidence spans are dropped client-side too.
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	if entities[0].Text != "Jane Doe" || entities[0].Label != "person" {
		t.Errorf("entity = %+v", entities[0])
	}

	if gotReq.Text != "Jane Doe spoke" {
		t.Errorf("request text = %q", gotReq.Text)
	}
	if len(gotReq.Labels) != len(DefaultEntityTypes) {
		t.Errorf("labels = %v, want defaults", gotReq.Labels)
	}
	if gotReq.Threshold != DefaultConfidenceThreshold {
		t.Errorf("threshold = %f", gotReq.Threshold)
	}
}

func TestGLiNERClientCustomLabels(t *testing.T) {
	var gotReq glinerRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(glinerResponse{})
	}))
	defer server.Close()

	client := NewGLiNERClient(server.URL)
	_, err := client.Extract(context.Background(), "text", []string{"person"})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(gotReq.Labels) != 1 || gotReq.Labels[0] != "person" {
		t.Errorf("labels = %v", gotReq.Labels)
	}
}

func TestGLiNERClientEmptyText(t *testing.T) {
	client := NewGLiNERClient("http://unused")
	entities, err := client.Extract(context.Background(), "   ", nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("expected no entities for blank text, got %d", len(entities))
	}
}

func TestGLiNERClientUnconfigured(t *testing.T) {
	client := NewGLiNERClient("")
	_, err := client.Extract(context.Background(), "text", nil)
	if !errors.Is(err, ErrExtractionUnavailable) {
		t.Errorf("expected ErrExtractionUnavailable, got %v", err)
	}
}

func TestGLiNERClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewGLiNERClient(server.URL)
	_, err := client.Extract(context.Background(), "text", nil)
	if !errors.Is(err, ErrExtractionUnavailable) {
		t.Errorf("expected ErrExtractionUnavailable for network failure, got %v", err)
	}
}

func TestGLiNERClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(glinerResponse{Error: "model not loaded"})
	}))
	defer server.Close()

	client := NewGLiNERClient(server.URL)
	_, err := client.Extract(context.Background(), "text", nil)
	if err == nil {
		t.Fatal("expected error for server failure")
	}
	if errors.Is(err, ErrExtractionUnavailable) {
		t.Error("server errors should not be classified as unavailable")
	}
}
