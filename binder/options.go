package binder

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Options control generation. All fields have working defaults; a YAML
// config file or CLI flags may override them.
type Options struct {
	// Prefix is prepended to every native entry point name.
	Prefix string `yaml:"prefix"`
	// ModuleName, when set, wraps the script artifact's classes under one
	// exported identifier instead of polluting the enclosing scope.
	ModuleName string `yaml:"module"`
	// OutputBase is the base path for the two output artifacts
	// (<base>.js and <base>.cpp). Used by the CLI, not the generator.
	OutputBase string `yaml:"output"`
}

// DefaultOptions returns the options used when no config is present.
func DefaultOptions() Options {
	return Options{Prefix: "bind_"}
}

// LoadOptions reads a YAML config file and merges it over the defaults.
// Unknown keys are rejected so typos fail loudly.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("reading config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return opts, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultOptions().Prefix
	}
	return opts, nil
}
