package config

import "testing"

func TestLoadIncludesPipelineDefaults(t *testing.T) {
	t.Setenv("RASTER_BACKEND", "")
	t.Setenv("RASTER_DPI", "")
	t.Setenv("OCR_CONCURRENCY", "")
	t.Setenv("MAX_PDF_PAGES", "")
	t.Setenv("OLLAMA_REQUESTS_PER_SECOND", "")

	cfg := Load()
	if cfg.RasterBackend != "fitz" {
		t.Fatalf("expected default raster backend fitz, got %q", cfg.RasterBackend)
	}
	if cfg.RasterDPI != 150 {
		t.Fatalf("expected default raster dpi 150, got %d", cfg.RasterDPI)
	}
	if cfg.OCRConcurrency != 4 {
		t.Fatalf("expected default ocr concurrency 4, got %d", cfg.OCRConcurrency)
	}
	if cfg.MaxPDFPages != 30 {
		t.Fatalf("expected default max pdf pages 30, got %d", cfg.MaxPDFPages)
	}
	if cfg.OllamaRequestsPerS != 4 {
		t.Fatalf("expected default ollama rps 4, got %v", cfg.OllamaRequestsPerS)
	}
}

func TestLoadParsesPipelineOverrides(t *testing.T) {
	t.Setenv("RASTER_BACKEND", "poppler")
	t.Setenv("RASTER_DPI", "200")
	t.Setenv("OCR_CONCURRENCY", "8")
	t.Setenv("MAX_UPLOAD_MB", "50")
	t.Setenv("OLLAMA_REQUESTS_PER_SECOND", "1.5")

	cfg := Load()
	if cfg.RasterBackend != "poppler" {
		t.Fatalf("expected raster backend override, got %q", cfg.RasterBackend)
	}
	if cfg.RasterDPI != 200 {
		t.Fatalf("expected raster dpi 200, got %d", cfg.RasterDPI)
	}
	if cfg.OCRConcurrency != 8 {
		t.Fatalf("expected ocr concurrency 8, got %d", cfg.OCRConcurrency)
	}
	if cfg.MaxUploadMB != 50 {
		t.Fatalf("expected max upload 50, got %d", cfg.MaxUploadMB)
	}
	if cfg.OllamaRequestsPerS != 1.5 {
		t.Fatalf("expected ollama rps 1.5, got %v", cfg.OllamaRequestsPerS)
	}
}

func TestLoadFallsBackOnMalformedInt(t *testing.T) {
	t.Setenv("RASTER_DPI", "not-a-number")

	cfg := Load()
	if cfg.RasterDPI != 150 {
		t.Fatalf("expected malformed dpi to fall back to 150, got %d", cfg.RasterDPI)
	}
}
