package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/talentforge/platform/internal/core/domain"
)

type CVRepository struct {
	db *sql.DB
}

func NewCVRepository(db *sql.DB) *CVRepository {
	return &CVRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CVRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS cv_documents (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	pathname TEXT NOT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cv_documents_user ON cv_documents(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS page_images (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES cv_documents(id),
	page_number INT NOT NULL,
	url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, page_number)
);

CREATE TABLE IF NOT EXISTS page_markdown (
	id TEXT PRIMARY KEY,
	page_image_id TEXT NOT NULL REFERENCES page_images(id),
	document_id TEXT NOT NULL REFERENCES cv_documents(id),
	page_number INT NOT NULL,
	markdown TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, page_number)
);

CREATE TABLE IF NOT EXISTS consolidated_markdown (
	document_id TEXT PRIMARY KEY REFERENCES cv_documents(id),
	markdown TEXT NOT NULL,
	url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES cv_documents(id),
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	stage TEXT,
	error_message TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pipeline_runs_active_user
	ON pipeline_runs(user_id) WHERE status IN ('pending', 'running');

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id TEXT PRIMARY KEY,
	summary TEXT NOT NULL DEFAULT '',
	skills JSONB NOT NULL DEFAULT '[]'::jsonb,
	experience JSONB NOT NULL DEFAULT '[]'::jsonb,
	education JSONB NOT NULL DEFAULT '[]'::jsonb,
	source_document_id TEXT,
	onboarding_completed BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CVRepository) CreateDocument(ctx context.Context, doc *domain.CVDocument) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO cv_documents (id, user_id, filename, pathname, url, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		doc.ID, doc.UserID, doc.Filename, doc.Pathname, doc.URL, string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cv document: %w", err)
	}
	return nil
}

func (r *CVRepository) GetDocumentByID(ctx context.Context, id string) (*domain.CVDocument, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, filename, pathname, url, status, error_message, created_at, updated_at
FROM cv_documents
WHERE id = $1
`, id)

	var doc domain.CVDocument
	var status string
	var errMessage sql.NullString

	err := row.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.Pathname, &doc.URL, &status, &errMessage, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get cv document", err)
		}
		return nil, fmt.Errorf("scan cv document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	doc.Error = errMessage.String
	return &doc, nil
}

func (r *CVRepository) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE cv_documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document status", sql.ErrNoRows)
	}
	return nil
}

func (r *CVRepository) CreatePageImages(ctx context.Context, pages []domain.PageImage) error {
	if len(pages) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin page images tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, page := range pages {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO page_images (id, document_id, page_number, url, created_at)
VALUES ($1,$2,$3,$4,$5)
`, page.ID, page.DocumentID, page.PageNumber, page.URL, page.CreatedAt); err != nil {
			return fmt.Errorf("insert page image %d: %w", page.PageNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit page images tx: %w", err)
	}
	return nil
}

func (r *CVRepository) ListPageImages(ctx context.Context, documentID string) ([]domain.PageImage, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, page_number, url, created_at
FROM page_images
WHERE document_id = $1
ORDER BY page_number ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query page images: %w", err)
	}
	defer rows.Close()

	var pages []domain.PageImage
	for rows.Next() {
		var page domain.PageImage
		if err := rows.Scan(&page.ID, &page.DocumentID, &page.PageNumber, &page.URL, &page.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page image: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page images: %w", err)
	}
	return pages, nil
}

func (r *CVRepository) CreatePageMarkdown(ctx context.Context, pages []domain.PageMarkdown) error {
	if len(pages) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin page markdown tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, page := range pages {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO page_markdown (id, page_image_id, document_id, page_number, markdown, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, page.ID, page.PageImageID, page.DocumentID, page.PageNumber, page.Markdown, page.CreatedAt); err != nil {
			return fmt.Errorf("insert page markdown %d: %w", page.PageNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit page markdown tx: %w", err)
	}
	return nil
}

func (r *CVRepository) SaveConsolidatedMarkdown(ctx context.Context, cm *domain.ConsolidatedMarkdown) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO consolidated_markdown (document_id, markdown, url, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (document_id) DO UPDATE SET markdown = $2, url = $3, created_at = $4
`, cm.DocumentID, cm.Markdown, cm.URL, cm.CreatedAt)
	if err != nil {
		return fmt.Errorf("save consolidated markdown: %w", err)
	}
	return nil
}

func (r *CVRepository) GetConsolidatedMarkdown(ctx context.Context, documentID string) (*domain.ConsolidatedMarkdown, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT document_id, markdown, url, created_at
FROM consolidated_markdown
WHERE document_id = $1
`, documentID)

	var cm domain.ConsolidatedMarkdown
	if err := row.Scan(&cm.DocumentID, &cm.Markdown, &cm.URL, &cm.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get consolidated markdown", err)
		}
		return nil, fmt.Errorf("scan consolidated markdown: %w", err)
	}
	return &cm, nil
}
