// Package corpus loads the documents a run scores and writes the JSON
// result file.
package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is one source text split into candidate sentences. Documents are
// immutable once loaded.
type Document struct {
	ID        string   `json:"file_id"`
	Sentences []string `json:"sentences"`
}

// InputError reports a corpus that cannot be used. Nothing is written when
// loading fails.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("corpus %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// OutputError reports a result sink that could not be written.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// maxLine bounds a single JSONL record.
const maxLine = 10 * 1024 * 1024

// Load reads documents from path. Files ending in .jsonl hold one record
// per line; anything else is a JSON array of records. A malformed record,
// a missing file_id or a repeated file_id fails the whole load. An empty
// array is a valid, empty corpus.
func Load(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	var docs []Document
	if strings.ToLower(filepath.Ext(path)) == ".jsonl" {
		docs, err = decodeLines(data)
	} else {
		docs, err = decodeArray(data)
	}
	if err == nil {
		err = check(docs)
	}
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	return docs, nil
}

func decodeArray(data []byte) ([]Document, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse JSON array: %w", err)
	}
	docs := make([]Document, 0, len(raw))
	for i, r := range raw {
		doc, err := decodeRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decodeLines(data []byte) ([]Document, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var docs []Document
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		doc, err := decodeRecord(b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return docs, nil
}

func decodeRecord(b []byte) (Document, error) {
	var rec struct {
		ID        *string   `json:"file_id"`
		Sentences *[]string `json:"sentences"`
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return Document{}, err
	}
	if rec.ID == nil || strings.TrimSpace(*rec.ID) == "" {
		return Document{}, errors.New("missing file_id")
	}
	if rec.Sentences == nil {
		return Document{}, fmt.Errorf("document %q: missing sentences", *rec.ID)
	}
	return Document{ID: *rec.ID, Sentences: *rec.Sentences}, nil
}

func check(docs []Document) error {
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("duplicate file_id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// Sentences returns every sentence of docs in document order.
func Sentences(docs []Document) []string {
	n := 0
	for _, d := range docs {
		n += len(d.Sentences)
	}
	out := make([]string, 0, n)
	for _, d := range docs {
		out = append(out, d.Sentences...)
	}
	return out
}
