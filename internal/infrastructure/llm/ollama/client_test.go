package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClassifyCVParsesModelVerdict(t *testing.T) {
	var capturedPrompt string
	var capturedModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		capturedModel, _ = payload["model"].(string)
		_, _ = w.Write([]byte(`{"response":"{\"is_cv\":true,\"confidence\":0.93,\"reason\":\"resume structure\"}"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "vision", 100)
	classifier := NewClassifier(client)

	cls, err := classifier.ClassifyCV(context.Background(), "John Doe\nSenior Engineer\nExperience: ...")
	if err != nil {
		t.Fatalf("ClassifyCV() error = %v", err)
	}
	if !cls.IsCV || cls.Confidence != 0.93 || cls.Reason != "resume structure" {
		t.Fatalf("unexpected classification: %+v", cls)
	}
	if capturedModel != "gen" {
		t.Fatalf("expected gen model, got %q", capturedModel)
	}
	if !strings.Contains(capturedPrompt, "John Doe") {
		t.Fatalf("expected text sample in prompt, got %s", capturedPrompt)
	}
}

func TestClassifyCVRecoversJSONFromChatter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"Sure, here is the verdict: {\"is_cv\":false,\"confidence\":0.88,\"reason\":\"invoice\"} hope that helps"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "vision", 100)
	classifier := NewClassifier(client)

	cls, err := classifier.ClassifyCV(context.Background(), "Invoice #42")
	if err != nil {
		t.Fatalf("ClassifyCV() error = %v", err)
	}
	if cls.IsCV || cls.Reason != "invoice" {
		t.Fatalf("unexpected classification: %+v", cls)
	}
}

func TestPageToMarkdownSendsImageToVisionModel(t *testing.T) {
	var capturedModel string
	var capturedImages []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedModel, _ = payload["model"].(string)
		capturedImages, _ = payload["images"].([]any)
		_, _ = w.Write([]byte(`{"response":"# Page 1\n\nSome text"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "vision", 100)
	reader := NewPageReader(client)

	md, err := reader.PageToMarkdown(context.Background(), []byte{0x89, 0x50, 0x4e, 0x47})
	if err != nil {
		t.Fatalf("PageToMarkdown() error = %v", err)
	}
	if !strings.HasPrefix(md, "# Page 1") {
		t.Fatalf("unexpected markdown: %q", md)
	}
	if capturedModel != "vision" {
		t.Fatalf("expected vision model, got %q", capturedModel)
	}
	if len(capturedImages) != 1 {
		t.Fatalf("expected 1 base64 image, got %d", len(capturedImages))
	}
}

func TestPageToMarkdownRejectsEmptyImage(t *testing.T) {
	client := New("http://localhost:0", "gen", "vision", 100)
	reader := NewPageReader(client)

	if _, err := reader.PageToMarkdown(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty image")
	}
}

func TestGenerateIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "vision", 100)
	extractor := NewProfileExtractor(client)

	_, err := extractor.ExtractProfile(context.Background(), "# CV\n\ntext")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}
