package poppler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/talentforge/platform/internal/core/ports"
)

// Rasterizer shells out to poppler's pdftoppm. It exists for hosts where
// linking MuPDF is not an option; the in-process fitz rasterizer is the
// default.
type Rasterizer struct {
	binary string
	dpi    int
}

func New(binary string, dpi int) *Rasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &Rasterizer{binary: binary, dpi: dpi}
}

func (r *Rasterizer) Rasterize(ctx context.Context, pdf []byte) ([]ports.RasterPage, error) {
	workDir, err := os.MkdirTemp("", "cv-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	pdfPath := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	outPrefix := filepath.Join(workDir, "page")
	cmd := exec.CommandContext(ctx, r.binary,
		"-png",
		"-r", strconv.Itoa(r.dpi),
		pdfPath,
		outPrefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", r.binary, err, strings.TrimSpace(string(out)))
	}

	return collectPages(workDir)
}

// collectPages reads the sequentially numbered PNGs pdftoppm produced and
// returns them ordered by page number.
func collectPages(dir string) ([]ports.RasterPage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	var pages []ports.RasterPage
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		numPart := strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png")
		pageNum, err := strconv.Atoi(numPart)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", pageNum, err)
		}
		pages = append(pages, ports.RasterPage{PageNumber: pageNum, PNG: data})
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})
	return pages, nil
}
