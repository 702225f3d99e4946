package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cube2222/octoudf/execution/udf"
	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
	"github.com/cube2222/octoudf/serialization"
)

var OctoudfHomeDir = func() string {
	dir, err := homedir.Dir()
	if err != nil {
		// This doesn't stop the process, the home dir is only needed for defaults.
		return ".octoudf"
	}
	return filepath.Join(dir, ".octoudf")
}()

var DefaultConfigPath = filepath.Join(OctoudfHomeDir, "config.yaml")

var OctoudfCacheDir = filepath.Join(OctoudfHomeDir, "cache")

type Config struct {
	Input  []FieldConfig `yaml:"input"`
	Output []FieldConfig `yaml:"output"`
	UDF    UDFConfig     `yaml:"udf"`
	Runner RunnerConfig  `yaml:"runner"`
}

type FieldConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type UDFConfig struct {
	InputOffsets    []int    `yaml:"inputOffsets"`
	ForwardedFields []int    `yaml:"forwardedFields"`
	OutputMapping   []string `yaml:"outputMapping"`
	Format          string   `yaml:"format"`
}

type RunnerConfig struct {
	Type    string            `yaml:"type"`
	Options map[string]string `yaml:"options"`
}

// Read reads the configuration file at path. An empty path means DefaultConfigPath.
func Read(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't expand config path %s", path)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read config file")
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "couldn't decode yaml configuration")
	}
	if config.Runner.Type == "" {
		config.Runner.Type = "passthrough"
	}
	if config.Runner.Options == nil {
		config.Runner.Options = map[string]string{}
	}
	return &config, nil
}

func (config *Config) InputSchema() (physical.Schema, error) {
	schema, err := fieldsToSchema(config.Input)
	if err != nil {
		return physical.Schema{}, errors.Wrap(err, "invalid input schema")
	}
	return schema, nil
}

func (config *Config) OutputSchema() (physical.Schema, error) {
	schema, err := fieldsToSchema(config.Output)
	if err != nil {
		return physical.Schema{}, errors.Wrap(err, "invalid output schema")
	}
	return schema, nil
}

func fieldsToSchema(fields []FieldConfig) (physical.Schema, error) {
	out := make([]physical.SchemaField, len(fields))
	for i, field := range fields {
		if field.Name == "" {
			return physical.Schema{}, errors.Errorf("field %d has no name", i)
		}
		t, err := octosql.ParseType(field.Type)
		if err != nil {
			return physical.Schema{}, errors.Wrapf(err, "field '%s'", field.Name)
		}
		out[i] = physical.SchemaField{
			Name: field.Name,
			Type: t,
		}
	}
	return physical.NewSchema(out), nil
}

// OperatorConfig converts the job configuration into the configuration of the scalar function operator.
func (config *Config) OperatorConfig() (udf.Config, error) {
	inputSchema, err := config.InputSchema()
	if err != nil {
		return udf.Config{}, err
	}
	outputSchema, err := config.OutputSchema()
	if err != nil {
		return udf.Config{}, err
	}

	format, err := serialization.ParseFormat(config.UDF.Format)
	if err != nil {
		return udf.Config{}, errors.Wrap(err, "invalid udf format")
	}

	var mapping []udf.OutputField
	for i, text := range config.UDF.OutputMapping {
		field, err := udf.ParseOutputField(text)
		if err != nil {
			return udf.Config{}, errors.Wrapf(err, "invalid output mapping entry %d", i)
		}
		mapping = append(mapping, field)
	}

	return udf.Config{
		InputSchema:     inputSchema,
		OutputSchema:    outputSchema,
		UDFInputOffsets: config.UDF.InputOffsets,
		ForwardedFields: config.UDF.ForwardedFields,
		OutputMapping:   mapping,
		Format:          format,
		RunnerOptions:   config.Runner.Options,
	}, nil
}
