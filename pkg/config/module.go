package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	J "cuelang.org/go/encoding/json"
	"cuelang.org/go/encoding/yaml"
	Y "gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaFile string

//go:embed default.yaml
var DEFAULT []byte

// layer is one configuration document waiting to be unified over the schema.
type layer struct {
	name   string
	format string
	data   []byte
}

func readLayer(path string) (layer, error) {
	format := filepath.Ext(path)
	switch format {
	case ".json", ".yaml", ".yml":
	default:
		return layer{}, fmt.Errorf("unsupported format %q", format)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return layer{}, err
	}
	return layer{name: path, format: format, data: data}, nil
}

func (l layer) build(ctx *cue.Context) (cue.Value, error) {
	var value cue.Value
	if l.format == ".json" {
		expr, err := J.Extract(l.name, l.data)
		if err != nil {
			return value, err
		}
		value = ctx.BuildExpr(expr)
	} else {
		file, err := yaml.Extract(l.name, l.data)
		if err != nil {
			return value, err
		}
		value = ctx.BuildFile(file)
	}
	return value, value.Err()
}

// layers loads the given files, or the embedded defaults when there are none.
func layers(configPaths []string) ([]layer, error) {
	if len(configPaths) == 0 {
		return []layer{{name: "<default>", format: ".yaml", data: DEFAULT}}, nil
	}

	result := make([]layer, 0, len(configPaths))
	for _, path := range configPaths {
		l, err := readLayer(path)
		if err != nil {
			return nil, fmt.Errorf("could not read config file %s: %w", path, err)
		}
		result = append(result, l)
	}
	return result, nil
}

// compile unifies each layer over the schema in order and returns the merged
// configuration as JSON. A layer must leave the result valid on its own.
func compile(configPaths []string) ([]byte, error) {
	sources, err := layers(configPaths)
	if err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	merged := ctx.CompileString(schemaFile)
	if err := merged.Err(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	for _, source := range sources {
		value, err := source.build(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not parse config file %s: %w", source.name, err)
		}

		merged = merged.Unify(value)
		if err := merged.Validate(); err != nil {
			return nil, fmt.Errorf("config file %s is not valid: %w", source.name, err)
		}
	}

	data, err := merged.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("could not aggregate config: %w", err)
	}
	return data, nil
}

// Process compiles the provided configuration files and decodes the result.
// Values a file leaves out take the schema's defaults.
func Process(configPaths []string) (*Config, error) {
	data, err := compile(configPaths)
	if err != nil {
		return nil, err
	}

	config := Config{}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	return &config, nil
}

// Effective renders the merged configuration as YAML.
func Effective(configPaths []string) ([]byte, error) {
	data, err := compile(configPaths)
	if err != nil {
		return nil, err
	}

	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	return Y.Marshal(tree)
}
