// Package ingest turns uploaded files into plain text for the retrieval index.
// Text and markdown files are read directly, PDFs are parsed page by page and
// images are sent through OCR.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/mwiater/docchat/internal/util"
)

// ErrUnsupported is returned for files whose extension has no extractor.
var ErrUnsupported = errors.New("unsupported file type")

// Document kinds.
const (
	KindText  = "text"
	KindPDF   = "pdf"
	KindImage = "image"
)

var kindsByExt = map[string]string{
	".txt":  KindText,
	".md":   KindText,
	".pdf":  KindPDF,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
}

// ImageReader recognizes text in an image file.
type ImageReader interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// Document is the text extracted from a single file.
type Document struct {
	Path string
	Name string
	Kind string
	Text string
}

// Result reports the outcome of extracting one file.
type Result struct {
	Document Document
	Err      error
}

// Extractor dispatches files to the extractor for their type.
type Extractor struct {
	// OCR handles images. When nil, images are reported as unavailable.
	OCR ImageReader
}

// KindOf returns the document kind for path, or "" when the type is unsupported.
func KindOf(path string) string {
	return kindsByExt[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether path has an extractor.
func Supported(path string) bool {
	return KindOf(path) != ""
}

// Extract reads path and returns its text.
func (e Extractor) Extract(ctx context.Context, path string) (Document, error) {
	doc := Document{Path: path, Name: filepath.Base(path), Kind: KindOf(path)}
	var err error
	switch doc.Kind {
	case KindText:
		doc.Text, err = readText(path)
	case KindPDF:
		doc.Text, err = readPDF(path)
	case KindImage:
		if e.OCR == nil {
			return doc, errors.New("ocr is not configured")
		}
		doc.Text, err = e.OCR.ReadFile(ctx, path)
	default:
		return doc, fmt.Errorf("%s: %w", doc.Name, ErrUnsupported)
	}
	if err != nil {
		return doc, err
	}
	return doc, nil
}

// ExtractAll extracts every path independently. A failing file is reported in
// its Result and never stops the rest of the batch.
func (e Extractor) ExtractAll(ctx context.Context, paths []string) []Result {
	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		doc, err := e.Extract(ctx, path)
		results = append(results, Result{Document: doc, Err: err})
	}
	return results
}

// SaveUpload copies data into dir under the base name of name and returns the new path.
func SaveUpload(dir, name string, data []byte) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid upload name %q", name)
	}
	path := filepath.Join(dir, base)
	if err := util.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

// SaveUploadFile copies the file at src into dir.
func SaveUploadFile(dir, src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read upload %q: %w", src, err)
	}
	return SaveUpload(dir, filepath.Base(src), data)
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8", filepath.Base(path))
	}
	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
}

func readPDF(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
