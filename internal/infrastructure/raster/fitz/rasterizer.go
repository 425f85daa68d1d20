package fitz

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"

	"github.com/talentforge/platform/internal/core/ports"
)

// Rasterizer renders PDF pages in-process through MuPDF.
type Rasterizer struct{}

func New() *Rasterizer {
	return &Rasterizer{}
}

func (r *Rasterizer) Rasterize(ctx context.Context, pdf []byte) ([]ports.RasterPage, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	pages := make([]ports.RasterPage, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.Image(pageNum)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", pageNum+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", pageNum+1, err)
		}

		pages = append(pages, ports.RasterPage{
			PageNumber: pageNum + 1,
			PNG:        buf.Bytes(),
		})
	}

	return pages, nil
}
