package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// JSONFile reads either a JSON array of records or newline-delimited records.
type JSONFile struct {
	path string
}

// NewJSONFile constructs a JSON file source.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Name returns the file path.
func (f *JSONFile) Name() string {
	return f.path
}

// Load parses the whole file.
func (f *JSONFile) Load(ctx context.Context) ([]Record, error) {
	payload, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read listings file: %w", err)
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return []Record{}, nil
	}

	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode listings %s: %w", f.path, err)
		}
		return records, ctx.Err()
	}

	records := make([]Record, 0)
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode listings %s line %d: %w", f.path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan listings %s: %w", f.path, err)
	}
	return records, nil
}

var _ ListingSource = (*JSONFile)(nil)
