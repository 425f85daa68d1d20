package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// PageSeparator joins per-page markdown into the consolidated document.
const PageSeparator = "\n\n---\n\n"

type CVDocument struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Filename  string         `json:"filename"`
	Pathname  string         `json:"pathname"`
	URL       string         `json:"url"`
	Status    DocumentStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PageImage is one rasterized page of a CV document. Page numbers are
// 1-based and contiguous for a completed rasterization.
type PageImage struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	PageNumber int       `json:"page_number"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
}

type PageMarkdown struct {
	ID          string    `json:"id"`
	PageImageID string    `json:"page_image_id"`
	DocumentID  string    `json:"document_id"`
	PageNumber  int       `json:"page_number"`
	Markdown    string    `json:"markdown"`
	CreatedAt   time.Time `json:"created_at"`
}

type ConsolidatedMarkdown struct {
	DocumentID string    `json:"document_id"`
	Markdown   string    `json:"markdown"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
}

// CVClassification is the vision model's verdict on whether an uploaded
// document is a legitimate CV.
type CVClassification struct {
	IsCV       bool    `json:"is_cv"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
