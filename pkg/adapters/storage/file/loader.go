// Package file loads pipeline schema definitions from YAML or JSON files.
package file

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aescanero/pipewright/pkg/domain"
)

// Extensions recognised by LoadDir
var Extensions = []string{".yaml", ".yml", ".json"}

// Decode reads one schema document. JSON is detected by extension; anything
// else is decoded as YAML, which also accepts JSON.
func Decode(r io.Reader, ext string) (*domain.PipelineSchema, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var schema domain.PipelineSchema
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&schema); err != nil {
			return nil, fmt.Errorf("failed to decode JSON schema: %w", err)
		}
		return &schema, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&schema); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("schema document is empty")
		}
		return nil, fmt.Errorf("failed to decode YAML schema: %w", err)
	}
	return &schema, nil
}

// LoadFile reads a schema from disk. A schema without an id takes the file
// name (without extension) as its id.
func LoadFile(path string) (*domain.PipelineSchema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ext := filepath.Ext(path)
	schema, err := Decode(f, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if schema.ID == "" {
		schema.ID = strings.TrimSuffix(filepath.Base(path), ext)
	}
	return schema, nil
}

// LoadDir reads every schema file directly inside dir, in file name order
func LoadDir(dir string) ([]*domain.PipelineSchema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !hasSchemaExt(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	schemas := make([]*domain.PipelineSchema, 0, len(names))
	for _, name := range names {
		schema, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

// Encode writes a schema as YAML
func Encode(w io.Writer, schema *domain.PipelineSchema) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return enc.Close()
}

func hasSchemaExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range Extensions {
		if ext == known {
			return true
		}
	}
	return false
}
