package pdfcheck

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Prober performs a cheap structural check on uploaded bytes before any
// model call: the file must parse as a PDF and stay within the page limit.
// It also collects a plain-text sample that feeds the classification
// prompt; image-only PDFs yield an empty sample, which the classifier
// handles explicitly.
type Prober struct {
	maxPages  int
	maxSample int
}

func New(maxPages int) *Prober {
	if maxPages <= 0 {
		maxPages = 30
	}
	return &Prober{maxPages: maxPages, maxSample: 4000}
}

func (p *Prober) Probe(raw []byte) (int, string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return 0, "", fmt.Errorf("parse pdf: %w", err)
	}

	pageCount := reader.NumPage()
	if pageCount > p.maxPages {
		return pageCount, "", fmt.Errorf("pdf has %d pages, limit is %d", pageCount, p.maxPages)
	}

	var sample strings.Builder
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A page without a readable text layer is not a structural
			// defect; the sample just stays shorter.
			continue
		}
		sample.WriteString(text)
		if sample.Len() >= p.maxSample {
			break
		}
	}

	text := sample.String()
	if len(text) > p.maxSample {
		text = text[:p.maxSample]
	}
	return pageCount, strings.TrimSpace(text), nil
}
