// Package document converts downloaded sale documents into plain text.
package document

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor turns a binary document into text. Implementations return ""
// when the document cannot be read.
type Extractor interface {
	Text(data []byte) string
}

// PDF extracts text from PDF documents page by page.
type PDF struct {
	log *slog.Logger
}

// NewPDF creates a PDF text extractor.
func NewPDF(log *slog.Logger) *PDF {
	return &PDF{log: log}
}

// Text returns the text of every non-empty page, each prefixed with a
// "[Page n]" header and separated by a blank line.
func (p *PDF) Text(data []byte) string {
	text, err := pdfText(data)
	if err != nil {
		p.log.Warn("pdf extraction failed", "error", err, "bytes", len(data))
		return ""
	}
	return text
}

func pdfText(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	if len(data) == 0 {
		return "", fmt.Errorf("parse pdf: empty document")
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("[Page %d]\n%s", i, content))
	}
	return strings.Join(pages, "\n\n"), nil
}

// Plain treats the document as UTF-8 text. It is used for sources that
// publish their notices as text rather than PDF.
type Plain struct{}

// Text returns data as a trimmed string.
func (Plain) Text(data []byte) string {
	return strings.TrimSpace(string(data))
}
