// Package ingest turns uploaded architecture documents into the opaque
// text payload validations run against. The raw upload is kept as an
// artifact; only the extracted text travels further.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/archops/governor/internal/providers"
)

// ErrUnsupportedType is returned for document types the extractor cannot
// read. Binary formats (pdf, docx, images) are out of scope here.
var ErrUnsupportedType = errors.New("unsupported document type")

const maxDocumentBytes = 10 << 20 // 10 MiB

// Document is the stored artifact plus its extracted payload.
type Document struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	URI         string `json:"uri"`
	SizeBytes   int    `json:"sizeBytes"`
	Text        string `json:"text"`
}

type Service struct {
	store providers.Uploader
}

func NewService(store providers.Uploader) *Service {
	return &Service{store: store}
}

// Ingest stores the raw document and extracts its text payload.
func (s *Service) Ingest(ctx context.Context, filename string, contentType string, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)
	}

	text, err := Extract(filename, data)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	uri, err := s.store.UploadBytes(ctx, filepath.Join("documents", id, filepath.Base(filename)), contentType, data)
	if err != nil {
		return nil, err
	}
	return &Document{
		ID:          id,
		Filename:    filepath.Base(filename),
		ContentType: contentType,
		URI:         uri,
		SizeBytes:   len(data),
		Text:        text,
	}, nil
}

// Extract pulls plain text out of the supported document types. JSON
// documents are flattened to their string values so keyword checks see
// the content rather than the syntax.
func Extract(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s: not valid utf-8", filename)
		}
		return string(data), nil
	case ".json":
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return "", fmt.Errorf("%s: %w", filename, err)
		}
		var sb strings.Builder
		flatten(v, &sb)
		return strings.TrimSpace(sb.String()), nil
	default:
		return "", fmt.Errorf("%s: %w", filename, ErrUnsupportedType)
	}
}

func flatten(v any, sb *strings.Builder) {
	switch t := v.(type) {
	case string:
		sb.WriteString(t)
		sb.WriteByte('\n')
	case map[string]any:
		for _, val := range t {
			flatten(val, sb)
		}
	case []any:
		for _, val := range t {
			flatten(val, sb)
		}
	case json.Number, float64, bool:
		fmt.Fprintf(sb, "%v\n", t)
	}
}
