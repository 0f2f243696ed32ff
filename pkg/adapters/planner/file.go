// Package planner provides plan producers.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aescanero/dagent/pkg/domain"
	"gopkg.in/yaml.v3"
)

// FileProducer reads a plan document from disk. Files ending in .json are
// decoded as JSON, everything else as YAML.
type FileProducer struct {
	path string
}

// NewFileProducer creates a producer for the plan at path
func NewFileProducer(path string) *FileProducer {
	return &FileProducer{path: path}
}

// Plan reads and decodes the plan file
func (p *FileProducer) Plan(ctx context.Context) (*domain.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(p.path), ".json") {
		format = "json"
	}

	plan, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.path, err)
	}
	return plan, nil
}

// Decode reads a plan document in the given format ("json" or "yaml").
// Unknown fields are rejected so that typos in plan files surface early.
func Decode(r io.Reader, format string) (*domain.Plan, error) {
	var plan domain.Plan

	switch format {
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&plan); err != nil {
			return nil, fmt.Errorf("failed to decode json plan: %w", err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&plan); err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("plan document is empty")
			}
			return nil, fmt.Errorf("failed to decode yaml plan: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported plan format %q", format)
	}

	return &plan, nil
}
