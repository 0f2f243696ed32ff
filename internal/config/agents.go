package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aescanero/dagent/pkg/ports"
	"gopkg.in/yaml.v3"
)

// AgentsFile is the document listing agent declarations
//
//	agents:
//	  - name: api_expert
//	    kind: anthropic
//	    description: answers API questions
//	    output_shape: APIResponse
//	    settings:
//	      system_prompt: You are an API expert.
type AgentsFile struct {
	Agents []ports.AgentConfig `yaml:"agents"`
}

// LoadAgents reads agent declarations from a YAML file. A missing file
// returns an error wrapping fs.ErrNotExist.
func LoadAgents(path string) ([]ports.AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents file: %w", err)
	}

	var file AgentsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse agents file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Agents))
	for i, a := range file.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent %d: name is required", i)
		}
		if a.Kind == "" {
			return nil, fmt.Errorf("agent %s: kind is required", a.Name)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("agent %s declared twice", a.Name)
		}
		seen[a.Name] = true
	}

	return file.Agents, nil
}
