package coordinator

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/compresr/llm-gateway/internal/model"
)

// PreprocessDocuments resolves every filepath-sourced document content part
// into a base64 source, auto-detecting the mime type from the file
// extension (falling back to application/octet-stream) and deriving a
// filename from the path when one wasn't supplied (spec.md §4.10 step 4).
// Returns a new slice; messages is not mutated.
func PreprocessDocuments(messages []model.Message) ([]model.Message, error) {
	out := make([]model.Message, len(messages))
	for i, m := range messages {
		resolved, err := resolveMessageDocuments(m)
		if err != nil {
			return nil, fmt.Errorf("coordinator: message %d: %w", i, err)
		}
		out[i] = resolved
	}
	return out, nil
}

func resolveMessageDocuments(m model.Message) (model.Message, error) {
	if len(m.Content) == 0 {
		return m, nil
	}
	content := make([]model.ContentPart, len(m.Content))
	copy(content, m.Content)
	for i, part := range content {
		if part.Type != model.ContentDocument || part.Document == nil ||
			part.Document.Source.Type != model.DocumentSourceFilepath {
			continue
		}
		resolved, err := resolveFilepathDocument(*part.Document)
		if err != nil {
			return m, err
		}
		content[i].Document = &resolved
	}
	m.Content = content
	return m, nil
}

func resolveFilepathDocument(doc model.DocumentContent) (model.DocumentContent, error) {
	path := doc.Source.Filepath
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("resolving filepath document %q: %w", path, err)
	}
	doc.Source = model.DocumentSource{
		Type: model.DocumentSourceBase64,
		Data: base64.StdEncoding.EncodeToString(data),
	}
	if doc.MimeType == "" {
		doc.MimeType = mimeTypeForExt(path)
	}
	if doc.Filename == "" {
		doc.Filename = filepath.Base(path)
	}
	return doc, nil
}

func mimeTypeForExt(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
