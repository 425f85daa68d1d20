package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/talentforge/platform/internal/config"
	"github.com/talentforge/platform/internal/core/domain"
)

type uploaderSuccessFake struct{}

func (f uploaderSuccessFake) Upload(_ context.Context, userID, filename string, body io.Reader) (*domain.CVDocument, *domain.PipelineRun, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}

	now := time.Now().UTC()
	doc := &domain.CVDocument{
		ID:        "doc-1",
		UserID:    userID,
		Filename:  filename,
		Pathname:  "cv/" + userID + "/doc-1/cv.pdf",
		Status:    domain.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	run := &domain.PipelineRun{
		ID:         "run-1",
		DocumentID: "doc-1",
		UserID:     userID,
		Status:     domain.RunPending,
		StartedAt:  now,
	}
	return doc, run, nil
}

func newRouterForUploadTests() http.Handler {
	return NewRouter(
		config.Config{MaxUploadMB: 20},
		uploaderSuccessFake{},
		docsFake{},
		runsFake{},
		profilesFake{},
		progressFake{},
	).Handler()
}

func multipartCV(t *testing.T, userID string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if userID != "" {
		if err := writer.WriteField("user_id", userID); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", "cv.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newRouterForUploadTests()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestUploadCVSuccess(t *testing.T) {
	handler := newRouterForUploadTests()

	body, contentType := multipartCV(t, "user-1", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/v1/cv", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	var resp struct {
		Document map[string]any `json:"document"`
		Run      map[string]any `json:"run"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Document["id"] != "doc-1" || resp.Run["id"] != "run-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUploadCVRequiresUserIDField(t *testing.T) {
	handler := newRouterForUploadTests()

	body, contentType := multipartCV(t, "", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/v1/cv", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadCVRequiresMultipartFile(t *testing.T) {
	handler := newRouterForUploadTests()

	req := httptest.NewRequest(http.MethodPost, "/v1/cv", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadCVRejectsGet(t *testing.T) {
	handler := newRouterForUploadTests()

	req := httptest.NewRequest(http.MethodGet, "/v1/cv", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
