// Package artifact implements the JSON file conventions shared by every
// snapshot root: UTF-8, two-space indentation, non-ASCII emitted literally,
// a single trailing newline, and parent directories created on demand.
package artifact

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// WriteJSON serializes value to path, creating parent directories as needed,
// and returns the written path. Values that have no JSON representation fail
// with ErrSerialization.
func WriteJSON(path string, value any) (string, error) {
	data, err := Marshal(value)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", eris.Wrapf(err, "artifact: create parent dirs for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "artifact: write %s", path)
	}
	return path, nil
}

// ReadJSON parses the UTF-8 JSON file at path back into its structural shape
// (maps, slices, strings, float64 numbers, bools, nil). A missing file fails
// with ErrNotFound, malformed content with ErrParse.
func ReadJSON(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrNotFound, "artifact: %s", path)
		}
		return nil, eris.Wrapf(err, "artifact: read %s", path)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, eris.Wrapf(ErrParse, "artifact: %s: %v", path, err)
	}
	return value, nil
}

// ReadJSONInto parses the JSON file at path into out, with the same error
// taxonomy as ReadJSON. Used where a typed shape is wanted (index entries,
// provenance sidecars).
func ReadJSONInto(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return eris.Wrapf(ErrNotFound, "artifact: %s", path)
		}
		return eris.Wrapf(err, "artifact: read %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrapf(ErrParse, "artifact: %s: %v", path, err)
	}
	return nil
}

// Marshal renders value using the artifact conventions: two-space indent,
// HTML and non-ASCII left unescaped, trailing newline.
func Marshal(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return nil, eris.Wrapf(ErrSerialization, "artifact: %v", err)
	}
	// Encode appends exactly one newline, which is the convention we want.
	return buf.Bytes(), nil
}

// MarshalLine renders value as a single compact line (for JSONL ledgers),
// HTML and non-ASCII left unescaped, terminated by a newline.
func MarshalLine(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, eris.Wrapf(ErrSerialization, "artifact: %v", err)
	}
	return buf.Bytes(), nil
}
