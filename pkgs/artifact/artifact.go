// Package artifact defines the records an install run operates on.
package artifact

import "fmt"

// Kind classifies what an artifact is and therefore how it is
// installed: file copy for libraries, recursive copy for header trees.
type Kind string

const (
	SharedLibrary Kind = "shared_library"
	StaticLibrary Kind = "static_library"
	HeaderDir     Kind = "header_dir"
)

// ParseKind validates a kind string from a rules file.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case SharedLibrary, StaticLibrary, HeaderDir:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown artifact kind %q (candidates are %q, %q, %q)",
		s, SharedLibrary, StaticLibrary, HeaderDir)
}

// ComponentUnspecified is the component an untagged artifact belongs to.
const ComponentUnspecified = "Unspecified"

// Artifact is one declared install item.
type Artifact struct {
	// Name is the logical name, e.g. "tvm_runtime" for libtvm_runtime.so.
	Name string

	Kind Kind

	// Source is the built file (libraries) or directory (header trees),
	// relative to the rules file's directory unless absolute.
	Source string

	// Dest is the destination directory relative to the install prefix,
	// e.g. "lib" or "include".
	Dest string

	// Component tags the artifact for selective installs. Empty means
	// ComponentUnspecified.
	Component string

	// Configs restricts which config names install this artifact.
	// Empty means all configs.
	Configs []string

	// Optional artifacts whose source is missing are skipped instead of
	// failing the run.
	Optional bool

	// NoStrip opts a shared library out of stripping even when the run
	// requests it.
	NoStrip bool

	// Version is the shared-library version ("1.2.3"). Only meaningful
	// for SharedLibrary; empty installs under the plain name.
	Version string

	// Patterns restricts which files a HeaderDir copies, e.g.
	// ["*.h", "*.hpp"]. Empty copies everything.
	Patterns []string
}

// EffectiveComponent returns the artifact's component, mapping the
// empty tag to ComponentUnspecified.
func (a *Artifact) EffectiveComponent() string {
	if a.Component == "" {
		return ComponentUnspecified
	}
	return a.Component
}

// MatchesComponent reports whether the artifact is selected by the
// given component filter. An empty filter selects everything.
func (a *Artifact) MatchesComponent(filter string) bool {
	if filter == "" {
		return true
	}
	return a.EffectiveComponent() == filter
}

// MatchesConfig reports whether the artifact installs under the given
// config name. An artifact with no config restriction matches any.
func (a *Artifact) MatchesConfig(config string) bool {
	if len(a.Configs) == 0 {
		return true
	}
	for _, c := range a.Configs {
		if c == config {
			return true
		}
	}
	return false
}

// Strippable reports whether a run with stripping enabled should strip
// this artifact. Only shared libraries are ever stripped.
func (a *Artifact) Strippable() bool {
	return a.Kind == SharedLibrary && !a.NoStrip
}
