// Package pdftext extracts plain text from PDF documents.
package pdftext

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor turns document bytes into raw text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) string
}

// PDF extracts text page by page. Unreadable input yields an empty string.
type PDF struct{}

// Extract returns the document's text, or "" when it cannot be read.
func (PDF) Extract(ctx context.Context, data []byte) (text string) {
	if len(data) == 0 {
		return ""
	}
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("pdf parser panicked", "panic", r)
			text = ""
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Warn("cannot open pdf", "error", err)
		return ""
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if ctx.Err() != nil {
			break
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			slog.Warn("cannot read pdf page", "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	slog.Debug("extracted pdf text", "pages", r.NumPage(), "chars", sb.Len())
	return sb.String()
}

