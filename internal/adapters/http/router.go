package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/talentforge/platform/internal/config"
	"github.com/talentforge/platform/internal/core/domain"
	"github.com/talentforge/platform/internal/core/ports"
)

type Router struct {
	cfg      config.Config
	uploader ports.CVUploader
	docs     ports.DocumentReader
	runs     ports.RunReader
	profiles ports.ProfileReader
	progress ports.ProgressReader
}

// NewRouter wires the public API surface. progress may be nil, in which case
// run responses fall back to the persisted stage column.
func NewRouter(
	cfg config.Config,
	uploader ports.CVUploader,
	docs ports.DocumentReader,
	runs ports.RunReader,
	profiles ports.ProfileReader,
	progress ports.ProgressReader,
) *Router {
	return &Router{
		cfg:      cfg,
		uploader: uploader,
		docs:     docs,
		runs:     runs,
		profiles: profiles,
		progress: progress,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/cv", rt.uploadCV)
	mux.HandleFunc("/v1/cv/", rt.getDocumentByID)
	mux.HandleFunc("/v1/runs/", rt.getRunByID)
	mux.HandleFunc("/v1/profiles/", rt.getProfileByUserID)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadCV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if rt.cfg.MaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(rt.cfg.MaxUploadMB)<<20)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "form field 'user_id' is required"})
		return
	}

	doc, run, err := rt.uploader.Upload(r.Context(), userID, fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document": doc,
		"run":      run,
	})
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/cv/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.docs.GetDocumentByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"document": doc}
	if pages, err := rt.docs.ListPageImages(r.Context(), id); err == nil && len(pages) > 0 {
		resp["pages"] = pages
	}
	if doc.Status == domain.StatusReady {
		if cm, err := rt.docs.GetConsolidatedMarkdown(r.Context(), id); err == nil {
			resp["consolidated_markdown"] = cm
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) getRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run id is required"})
		return
	}

	run, err := rt.runs.GetRunByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":      run,
		"progress": rt.progressLabel(r, run),
	})
}

func (rt *Router) getProfileByUserID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	userID := strings.TrimPrefix(r.URL.Path, "/v1/profiles/")
	if userID == "" || strings.Contains(userID, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user id is required"})
		return
	}

	profile, err := rt.profiles.GetByUserID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// progressLabel prefers the live label from the progress store; the stage
// persisted with the run is the fallback for finished or unpublished runs.
func (rt *Router) progressLabel(r *http.Request, run *domain.PipelineRun) string {
	if rt.progress != nil && !run.Status.Terminal() {
		if label, err := rt.progress.Current(r.Context(), run.ID); err == nil && label != "" {
			return label
		}
	}
	return string(run.Stage)
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
