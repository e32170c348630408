// Package binder is the idlebind code generation engine: it canonicalizes
// IDL type expressions into memoized descriptors, classifies each into one
// marshaling strategy, plans arity-based overload dispatch, and emits the
// paired script/native glue artifacts.
package binder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vvuk/idlebind/ast"
)

// Result holds the two fully buffered output artifacts. Nothing is written
// to disk until generation has succeeded end to end, so a failing run can
// never mix new output with a previous run's files.
type Result struct {
	Script string // script-side module
	Native string // native-side translation unit
}

// Generate runs one full generation pass over a parsed module: validation
// first (any failure aborts with no output), then layout registration, then
// emission of both artifacts.
func Generate(m *ast.Module, opts Options) (*Result, error) {
	if opts.Prefix == "" {
		opts.Prefix = DefaultOptions().Prefix
	}
	s := NewSession(m, opts)

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	if err := s.registerLayout(); err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	native, err := s.emitNative()
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	script, err := s.emitScript()
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	return &Result{Script: script, Native: native}, nil
}

// WriteFiles writes both artifacts next to base (<base>.js, <base>.cpp),
// atomically: each file is staged under a temporary name and renamed into
// place only after both writes succeed.
func (r *Result) WriteFiles(base string) error {
	outputs := []struct {
		path, content string
	}{
		{base + ".js", r.Script},
		{base + ".cpp", r.Native},
	}

	var staged []string
	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}

	for _, out := range outputs {
		tmp := filepath.Join(filepath.Dir(out.path), "."+filepath.Base(out.path)+".tmp")
		if err := os.WriteFile(tmp, []byte(out.content), 0o644); err != nil {
			cleanup()
			return fmt.Errorf("writing %s: %w", out.path, err)
		}
		staged = append(staged, tmp)
	}
	for i, out := range outputs {
		if err := os.Rename(staged[i], out.path); err != nil {
			cleanup()
			return fmt.Errorf("writing %s: %w", out.path, err)
		}
	}
	return nil
}
