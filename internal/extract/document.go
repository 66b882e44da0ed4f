package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxDocumentBytes = 20 * 1024 * 1024
	maxTextRun       = 24000
)

type DocumentText struct {
	Text      string `json:"text"`
	Method    string `json:"method"`
	Truncated bool   `json:"truncated,omitempty"`
}

// DocumentFromFile returns readable text from a term sheet on disk. PDFs go
// through pdftotext when it is installed and fall back to printable runs in
// the raw bytes; anything else is read as plain text.
func DocumentFromFile(ctx context.Context, path string) (DocumentText, error) {
	info, err := os.Stat(path)
	if err != nil {
		return DocumentText{}, err
	}
	if info.Size() > MaxDocumentBytes {
		return DocumentText{}, fmt.Errorf("document too large: %d bytes", info.Size())
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return DocumentText{}, err
	}
	if !isPDF(blob) {
		return plainText(blob)
	}
	if text, err := runPdfToText(ctx, path); err == nil && strings.TrimSpace(text) != "" {
		return truncateText(text, "pdftotext"), nil
	}
	fallback := extractPrintableText(blob)
	if strings.TrimSpace(fallback) == "" {
		return DocumentText{}, errors.New("no extractable text found")
	}
	return truncateText(fallback, "byte-fallback"), nil
}

// DocumentFromBytes handles uploaded documents. PDFs are spooled to a temp
// file so pdftotext can read them.
func DocumentFromBytes(ctx context.Context, blob []byte) (DocumentText, error) {
	if len(blob) > MaxDocumentBytes {
		return DocumentText{}, fmt.Errorf("document too large: %d bytes", len(blob))
	}
	if !isPDF(blob) {
		return plainText(blob)
	}
	dir, err := os.MkdirTemp("", "safe-doc-*")
	if err != nil {
		return DocumentText{}, err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "upload.pdf")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return DocumentText{}, err
	}
	return DocumentFromFile(ctx, path)
}

func isPDF(blob []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(blob, " \t\r\n"), []byte("%PDF-"))
}

func plainText(blob []byte) (DocumentText, error) {
	if !utf8.Valid(blob) {
		return DocumentText{}, errors.New("document is neither a pdf nor utf-8 text")
	}
	if strings.TrimSpace(string(blob)) == "" {
		return DocumentText{}, errors.New("document is empty")
	}
	return truncateText(string(blob), "plain-text"), nil
}

func runPdfToText(ctx context.Context, path string) (string, error) {
	bin := strings.TrimSpace(os.Getenv("PDFTOTEXT_PATH"))
	if bin == "" {
		bin = "pdftotext"
	}
	out, err := exec.CommandContext(ctx, bin, "-layout", path, "-").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func extractPrintableText(blob []byte) string {
	var runs []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if len(s) >= 24 {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, c := range blob {
		r := rune(c)
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(strings.Join(runs, "\n"))
}

func truncateText(text, method string) DocumentText {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxTextRun {
		return DocumentText{Text: trimmed, Method: method}
	}
	prefix := trimmed[:maxTextRun]
	for !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}
	return DocumentText{
		Text:      prefix + "\n\n[TRUNCATED]",
		Method:    method,
		Truncated: true,
	}
}
