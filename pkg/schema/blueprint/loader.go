package blueprint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davidthor/pypes/pkg/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Loader parses blueprints from disk or raw bytes.
type Loader interface {
	// Load parses a blueprint from the given path. The syntax is chosen by
	// file extension: .yml/.yaml decode as YAML, everything else as TOML.
	Load(path string) (*Blueprint, error)

	// LoadFromBytes parses a blueprint from raw bytes. The filename is used
	// for syntax selection and error reporting only.
	LoadFromBytes(data []byte, filename string) (*Blueprint, error)
}

type loader struct{}

// NewLoader creates a new blueprint loader.
func NewLoader() Loader {
	return &loader{}
}

// rawBlueprint is the on-disk shape before connection normalization.
// Unknown extra keys are preserved-and-ignored by the decoders.
type rawBlueprint struct {
	Components map[string]string      `toml:"components" yaml:"components"`
	Wiring     map[string]interface{} `toml:"wiring" yaml:"wiring"`
	Workflow   *rawWorkflow           `toml:"workflow" yaml:"workflow"`
}

type rawWorkflow struct {
	Steps []rawStep `toml:"steps" yaml:"steps"`
}

type rawStep struct {
	ID        string  `toml:"id" yaml:"id"`
	Component string  `toml:"component" yaml:"component"`
	Function  string  `toml:"function" yaml:"function"`
	Input     *string `toml:"input" yaml:"input"`
}

func (l *loader) Load(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigIO, fmt.Sprintf("failed to read %s", path), err)
	}
	return l.LoadFromBytes(data, path)
}

func (l *loader) LoadFromBytes(data []byte, filename string) (*Blueprint, error) {
	var raw rawBlueprint

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigSyntax, fmt.Sprintf("failed to parse %s", filename), err)
		}
	default:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigSyntax, fmt.Sprintf("failed to parse %s", filename), err)
		}
	}

	bp := &Blueprint{
		Components: raw.Components,
		Wiring:     make(map[string]Connection, len(raw.Wiring)),
	}
	if bp.Components == nil {
		bp.Components = map[string]string{}
	}

	for consumer, conn := range raw.Wiring {
		normalized, err := normalizeConnection(consumer, conn)
		if err != nil {
			return nil, err
		}
		bp.Wiring[consumer] = normalized
	}

	if raw.Workflow != nil {
		wf := &Workflow{}
		for _, step := range raw.Workflow.Steps {
			wf.Steps = append(wf.Steps, Step{
				ID:        step.ID,
				Component: step.Component,
				Function:  step.Function,
				Input:     step.Input,
			})
		}
		bp.Workflow = wf
	}

	if err := validate(bp); err != nil {
		return nil, err
	}

	return bp, nil
}

// normalizeConnection accepts the two connection forms: a plain provider key
// string, or a table with a provider key and an optional middleware list.
func normalizeConnection(consumer string, value interface{}) (Connection, error) {
	switch v := value.(type) {
	case string:
		return Connection{Provider: v}, nil
	case map[string]interface{}:
		provider, ok := v["provider"].(string)
		if !ok || provider == "" {
			return Connection{}, errors.New(errors.ErrCodeConfigSchema,
				fmt.Sprintf("wiring entry %q: connection table missing string 'provider'", consumer))
		}
		conn := Connection{Provider: provider}
		if mw, ok := v["middleware"]; ok {
			list, ok := mw.([]interface{})
			if !ok {
				return Connection{}, errors.New(errors.ErrCodeConfigSchema,
					fmt.Sprintf("wiring entry %q: 'middleware' must be a list of names", consumer))
			}
			for _, item := range list {
				name, ok := item.(string)
				if !ok {
					return Connection{}, errors.New(errors.ErrCodeConfigSchema,
						fmt.Sprintf("wiring entry %q: middleware names must be strings", consumer))
				}
				conn.Middleware = append(conn.Middleware, name)
			}
		}
		return conn, nil
	default:
		return Connection{}, errors.New(errors.ErrCodeConfigSchema,
			fmt.Sprintf("wiring entry %q: unknown connection form %T", consumer, value))
	}
}
