package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"snaphound/internal/domain"
)

// wireDescriptor accepts both the current and the legacy path key
type wireDescriptor struct {
	ID       string           `json:"id"`
	Path     string           `json:"path"`
	FilePath string           `json:"file_path"`
	Type     domain.MediaType `json:"type"`
	Name     string           `json:"name"`
}

// unquote returns the inner JSON when the payload is a JSON-encoded string
// holding JSON, as the host double-encodes descriptor batches.
func unquote(payload []byte) []byte {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return trimmed
	}
	return bytes.TrimSpace([]byte(inner))
}

// decodeDescriptors parses a batch payload. A single object is a batch of one.
func decodeDescriptors(payload []byte) ([]domain.MediaDescriptor, error) {
	data := unquote(payload)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '{' {
		data = append(append([]byte{'['}, data...), ']')
	}

	var wire []wireDescriptor
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("invalid descriptor batch: %w", err)
	}

	batch := make([]domain.MediaDescriptor, 0, len(wire))
	for _, w := range wire {
		path := w.Path
		if path == "" {
			path = w.FilePath
		}
		batch = append(batch, domain.MediaDescriptor{
			ID:   w.ID,
			Path: path,
			Type: w.Type,
			Name: w.Name,
		})
	}
	return batch, nil
}

// decodeText returns status text, unwrapping a JSON string when present
func decodeText(payload []byte) string {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return strings.TrimSpace(string(trimmed))
}
