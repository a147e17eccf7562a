// Package rules parses the declarative rules file that drives an
// install run: project identity, defaults, install options and the
// artifact list.
package rules

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emplace-build/emplace/pkgs/artifact"
	"github.com/emplace-build/emplace/pkgs/libname"
)

// DefaultFile is the rules file name looked up in the working
// directory when none is given.
const DefaultFile = "emplace.yaml"

// Options are the tunables of an install run. Unknown option keys in
// the rules file are rejected with the list of candidates.
type Options struct {
	// PreserveTimestamps carries source modification times onto
	// installed files.
	PreserveTimestamps bool

	// LockTimeout bounds how long an install run waits for the
	// prefix lock held by a concurrent run.
	LockTimeout time.Duration
}

var optionDefaults = map[string]any{
	"preserve_timestamps": false,
	"lock_timeout":        "10s",
}

// Rules is the parsed rules file.
type Rules struct {
	Project       string
	Version       string
	Prefix        string
	DefaultConfig string
	Options       Options
	Artifacts     []artifact.Artifact

	// Dir is the directory containing the rules file; relative artifact
	// sources resolve against it.
	Dir string
}

type yamlArtifact struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Source    string   `yaml:"source"`
	Dest      string   `yaml:"dest"`
	Component string   `yaml:"component"`
	Configs   []string `yaml:"configs"`
	Optional  bool     `yaml:"optional"`
	NoStrip   bool     `yaml:"no_strip"`
	Version   string   `yaml:"version"`
	Patterns  []string `yaml:"patterns"`
}

type yamlRules struct {
	Project       string         `yaml:"project"`
	Version       string         `yaml:"version"`
	Prefix        string         `yaml:"prefix"`
	DefaultConfig string         `yaml:"default_config"`
	Options       map[string]any `yaml:"options"`
	Artifacts     []yamlArtifact `yaml:"artifacts"`
}

// Parse reads a rules file. When data is non-nil it is parsed instead
// of reading file, with file still naming the origin for messages and
// source resolution.
func Parse(file string, data []byte) (*Rules, error) {
	var reader io.Reader
	if data != nil {
		reader = bytes.NewBuffer(data)
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader = f
	}

	dec := yaml.NewDecoder(reader)
	dec.KnownFields(true)

	var raw yamlRules
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}

	r := &Rules{
		Project:       raw.Project,
		Version:       raw.Version,
		Prefix:        raw.Prefix,
		DefaultConfig: raw.DefaultConfig,
		Dir:           filepath.Dir(file),
	}
	if r.Project == "" {
		return nil, fmt.Errorf("%s: missing project name", file)
	}

	opts, err := parseOptions(raw.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	r.Options = opts

	seen := make(map[string]bool, len(raw.Artifacts))
	for i, ya := range raw.Artifacts {
		a, err := convertArtifact(ya)
		if err != nil {
			return nil, fmt.Errorf("%s: artifact %d: %w", file, i, err)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("%s: duplicate artifact name %q", file, a.Name)
		}
		seen[a.Name] = true
		r.Artifacts = append(r.Artifacts, a)
	}
	return r, nil
}

func parseOptions(raw map[string]any) (Options, error) {
	opts := Options{LockTimeout: 10 * time.Second}
	for key, value := range raw {
		if _, ok := optionDefaults[key]; !ok {
			return opts, fmt.Errorf("invalid option %q, candidates are %v", key, optionKeys())
		}
		switch key {
		case "preserve_timestamps":
			b, ok := value.(bool)
			if !ok {
				return opts, fmt.Errorf("option %q: want bool, got %T", key, value)
			}
			opts.PreserveTimestamps = b
		case "lock_timeout":
			s, ok := value.(string)
			if !ok {
				return opts, fmt.Errorf("option %q: want duration string, got %T", key, value)
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return opts, fmt.Errorf("option %q: %w", key, err)
			}
			opts.LockTimeout = d
		}
	}
	return opts, nil
}

func optionKeys() []string {
	keys := make([]string, 0, len(optionDefaults))
	for k := range optionDefaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func convertArtifact(ya yamlArtifact) (artifact.Artifact, error) {
	var a artifact.Artifact
	if ya.Name == "" {
		return a, fmt.Errorf("missing name")
	}
	kind, err := artifact.ParseKind(ya.Kind)
	if err != nil {
		return a, err
	}
	if ya.Source == "" {
		return a, fmt.Errorf("%s: missing source", ya.Name)
	}
	if ya.Dest == "" {
		return a, fmt.Errorf("%s: missing dest", ya.Name)
	}
	if filepath.IsAbs(ya.Dest) {
		return a, fmt.Errorf("%s: dest %q must be relative to the prefix", ya.Name, ya.Dest)
	}
	if ya.Version != "" {
		if kind != artifact.SharedLibrary {
			return a, fmt.Errorf("%s: version is only valid for shared libraries", ya.Name)
		}
		if err := libname.CheckVersion(ya.Version); err != nil {
			return a, fmt.Errorf("%s: %w", ya.Name, err)
		}
	}
	if len(ya.Patterns) > 0 && kind != artifact.HeaderDir {
		return a, fmt.Errorf("%s: patterns are only valid for header dirs", ya.Name)
	}
	for _, p := range ya.Patterns {
		if _, err := filepath.Match(p, "probe.h"); err != nil {
			return a, fmt.Errorf("%s: bad pattern %q: %w", ya.Name, p, err)
		}
	}

	return artifact.Artifact{
		Name:      ya.Name,
		Kind:      kind,
		Source:    ya.Source,
		Dest:      ya.Dest,
		Component: ya.Component,
		Configs:   ya.Configs,
		Optional:  ya.Optional,
		NoStrip:   ya.NoStrip,
		Version:   ya.Version,
		Patterns:  ya.Patterns,
	}, nil
}

// SourcePath resolves an artifact's source against the rules file
// directory.
func (r *Rules) SourcePath(a *artifact.Artifact) string {
	if filepath.IsAbs(a.Source) {
		return a.Source
	}
	return filepath.Join(r.Dir, a.Source)
}

// Select returns the artifacts matching a component filter and config
// name, in declaration order.
func (r *Rules) Select(component, config string) []artifact.Artifact {
	var out []artifact.Artifact
	for _, a := range r.Artifacts {
		if a.MatchesComponent(component) && a.MatchesConfig(config) {
			out = append(out, a)
		}
	}
	return out
}
