package services

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/ledongthuc/pdf"
)

// ExtractDocumentText returns the plain text of an uploaded document. PDFs are detected by their
// magic bytes; other uploads must be UTF-8 text such as .txt or .md. Empty text is an error.
func ExtractDocumentText(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", contextutils.WrapErrorf(contextutils.ErrDocumentUnreadable, "%s is empty", filename)
	}

	var text string
	var err error
	switch {
	case isPDF(data):
		text, err = extractPDFText(data)
	case strings.EqualFold(filepath.Ext(filename), ".pdf"):
		return "", contextutils.WrapErrorf(contextutils.ErrDocumentUnreadable, "%s is not a valid PDF", filename)
	case utf8.Valid(data) && !bytes.ContainsRune(data, 0):
		text = string(data)
	default:
		return "", contextutils.WrapErrorf(contextutils.ErrDocumentUnreadable, "unsupported file type: %s", filename)
	}
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrDocumentUnreadable, "failed to read %s: %v", filename, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", contextutils.WrapErrorf(contextutils.ErrDocumentUnreadable, "no text could be extracted from %s", filename)
	}
	return text, nil
}

func isPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}

func extractPDFText(data []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}
