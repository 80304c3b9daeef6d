package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docchat/internal/models"
	"docchat/internal/util"

	"github.com/ledongthuc/pdf"
)

// SupportedExt reports whether a file name has an extension we can parse.
func SupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md":
		return true
	default:
		return false
	}
}

// ParsePages returns the text of every non-empty page. Plain text and markdown
// files are a single page 1.
func ParsePages(path string) ([]models.Page, error) {
	var (
		pages []models.Page
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err = parsePDF(path)
	case ".txt", ".md":
		pages, err = parseText(path)
	default:
		return nil, fmt.Errorf("%w: %s", util.ErrUnsupportedFile, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, util.ErrNoExtractableText
	}
	return pages, nil
}

func parsePDF(path string) ([]models.Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	out := make([]models.Page, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		text = util.SanitizeText(text)
		if text == "" {
			continue
		}
		out = append(out, models.Page{PageNumber: i, Text: text})
	}
	return out, nil
}

func parseText(path string) ([]models.Page, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	text := util.SanitizeText(string(b))
	if text == "" {
		return nil, nil
	}
	return []models.Page{{PageNumber: 1, Text: text}}, nil
}
