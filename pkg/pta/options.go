// Package pta runs pointer analyses on programs: it wires the heap model,
// context selector and plugins for a set of options and runs the solver.
package pta

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/selector"
)

// Options configures one analysis.
type Options struct {
	// CS names the context sensitivity: "ci", "<k>-call", "<k>-cfa",
	// "<k>-obj" or "<k>-type".
	CS string `yaml:"cs" json:"cs"`

	// OnlyApp skips the statements of library methods.
	OnlyApp bool `yaml:"only_app" json:"only_app"`

	// ImplicitEntries also starts the analysis from the program's implicit
	// entry methods.
	ImplicitEntries bool `yaml:"implicit_entries" json:"implicit_entries"`

	// MergeStringConstants represents all string constants by one object.
	MergeStringConstants bool `yaml:"merge_string_constants" json:"merge_string_constants"`

	// MergeStringObjects represents all String allocations by one object.
	MergeStringObjects bool `yaml:"merge_string_objects" json:"merge_string_objects"`

	// ClassInit models static initialization.
	ClassInit bool `yaml:"class_init" json:"class_init"`

	// ThreadStart models Thread.start().
	ThreadStart bool `yaml:"thread_start" json:"thread_start"`

	// ArrayCopy models System.arraycopy.
	ArrayCopy bool `yaml:"array_copy" json:"array_copy"`

	// CheckConstraints logs warnings for out-of-order solver events.
	CheckConstraints bool `yaml:"check_constraints" json:"check_constraints"`
}

// DefaultOptions returns the options used when none are given: context
// insensitive, with class initialization and the native models enabled.
func DefaultOptions() Options {
	return Options{
		CS:          "ci",
		ClassInit:   true,
		ThreadStart: true,
		ArrayCopy:   true,
	}
}

// Validate reports whether the options name a known context selector.
func (o Options) Validate() error {
	if _, err := selector.New(cs.NewManager(), o.CS); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// LoadOptions reads options from a YAML file. Fields missing from the file
// keep their DefaultOptions value; unknown fields are an error.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading options: %w", err)
	}
	opts, err := ParseOptions(data)
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

// ParseOptions parses YAML options on top of DefaultOptions.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, fmt.Errorf("parsing options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
