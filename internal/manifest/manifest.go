// Package manifest loads the artifact manifest and provides the "artifact"
// metadata class built from it.
//
// A manifest names derived artifacts, the workspace files each one reads and
// the other artifacts it builds on:
//
//	artifacts:
//	  - name: api
//	    inputs: [api/schema.yaml, api/routes.go]
//	  - name: docs
//	    inputs: [docs/index.md]
//	    depends_on: [api]
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Manifest errors.
var (
	ErrInvalidManifest   = errors.New("invalid manifest")
	ErrDuplicateArtifact = errors.New("duplicate artifact")
	ErrUnknownArtifact   = errors.New("unknown artifact")
)

// Artifact is one manifest entry.
type Artifact struct {
	Name      string   `yaml:"name"`
	Inputs    []string `yaml:"inputs"`
	DependsOn []string `yaml:"depends_on"`
}

// Manifest is a validated set of artifacts.
type Manifest struct {
	Artifacts []Artifact `yaml:"artifacts"`

	byName map[string]int
}

// Load reads and parses the manifest file.
func Load(file string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return m, nil
}

// Parse decodes and validates a YAML manifest. Unknown fields are rejected;
// an empty document is an empty manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names, inputs and references and normalizes input paths to
// clean slash form.
func (m *Manifest) Validate() error {
	m.byName = make(map[string]int, len(m.Artifacts))

	for i := range m.Artifacts {
		a := &m.Artifacts[i]
		if err := validateName(a.Name); err != nil {
			return fmt.Errorf("%w: artifact %d: %w", ErrInvalidManifest, i, err)
		}
		if _, dup := m.byName[a.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateArtifact, a.Name)
		}
		m.byName[a.Name] = i

		for j, in := range a.Inputs {
			clean, err := cleanInput(in)
			if err != nil {
				return fmt.Errorf("%w: artifact %q: %w", ErrInvalidManifest, a.Name, err)
			}
			a.Inputs[j] = clean
		}
	}

	for _, a := range m.Artifacts {
		for _, dep := range a.DependsOn {
			if dep == a.Name {
				return fmt.Errorf("%w: artifact %q depends on itself", ErrInvalidManifest, a.Name)
			}
			if _, ok := m.byName[dep]; !ok {
				return fmt.Errorf("%w: %q (required by %q)", ErrUnknownArtifact, dep, a.Name)
			}
		}
	}
	return nil
}

// Lookup returns the artifact called name.
func (m *Manifest) Lookup(name string) (Artifact, bool) {
	i, ok := m.byName[name]
	if !ok {
		return Artifact{}, false
	}
	return m.Artifacts[i], true
}

// Names returns every artifact name, sorted.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Artifacts))
	for _, a := range m.Artifacts {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

func validateName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("name %q contains whitespace", name)
	}
	return nil
}

func cleanInput(in string) (string, error) {
	if in == "" {
		return "", errors.New("empty input path")
	}
	clean := path.Clean(filepath.ToSlash(in))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("input %q escapes the workspace root", in)
	}
	return clean, nil
}
