package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/canvas/pkg/domain"
)

// scriptFile is the document form of a script file: a top-level "steps" list.
// A bare list of steps is accepted too.
type scriptFile struct {
	Steps domain.Script `yaml:"steps"`
}

// LoadScript reads a YAML or JSON script from path and validates it.
func LoadScript(path string) (domain.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	script, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return script, nil
}

// ParseScript decodes a script document. JSON is parsed as YAML.
func ParseScript(data []byte) (domain.Script, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidScript)
	}

	var script domain.Script
	switch root := node.Content[0]; root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&script); err != nil {
			return nil, fmt.Errorf("decoding steps: %w", err)
		}
	case yaml.MappingNode:
		var doc scriptFile
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding script: %w", err)
		}
		script = doc.Steps
	default:
		return nil, fmt.Errorf("%w: expected a list of steps or a \"steps\" key", domain.ErrInvalidScript)
	}

	if err := script.Validate(); err != nil {
		return nil, err
	}
	return script, nil
}
