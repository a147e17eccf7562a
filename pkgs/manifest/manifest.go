// Package manifest records what an install run wrote, as both the
// classic one-path-per-line text manifest and a JSON sidecar carrying
// enough metadata to verify the installation later.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// Entry is one installed path.
type Entry struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Digest string `json:"digest,omitempty"` // hex BLAKE3 of file content
	Size   int64  `json:"size,omitempty"`
	Mode   uint32 `json:"mode,omitempty"`
	Link   string `json:"link,omitempty"` // symlink target, exclusive with Digest
}

// Manifest is the record of one complete install invocation.
type Manifest struct {
	Project     string    `json:"project"`
	Version     string    `json:"version,omitempty"`
	Config      string    `json:"config"`
	Component   string    `json:"component,omitempty"`
	Prefix      string    `json:"prefix"`
	InstallTime time.Time `json:"install_time"`
	Entries     []Entry   `json:"entries"`
}

// TextName returns the text manifest file name for a component filter:
// install_manifest.txt, or install_manifest_<component>.txt when the
// filter is set.
func TextName(component string) string {
	if component == "" {
		return "install_manifest.txt"
	}
	return "install_manifest_" + component + ".txt"
}

// JSONName returns the sidecar file name for a component filter.
func JSONName(component string) string {
	if component == "" {
		return "install_manifest.json"
	}
	return "install_manifest_" + component + ".json"
}

// Paths returns the destination paths in install order.
func (m *Manifest) Paths() []string {
	paths := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		paths[i] = e.Path
	}
	return paths
}

// Write flushes both manifest files into dir. The text manifest is the
// list of installed paths, one per line; the sidecar is the full
// record. Writing happens only after a run fully succeeded, so the
// presence of these files means a verified install.
func (m *Manifest) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var text []byte
	for _, e := range m.Entries {
		text = append(text, e.Path...)
		text = append(text, '\n')
	}
	if err := os.WriteFile(filepath.Join(dir, TextName(m.Component)), text, 0o644); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, JSONName(m.Component)), data, 0o644)
}

// Load reads the JSON sidecar for a component filter from dir.
func Load(dir, component string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, JSONName(component)))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", JSONName(component), err)
	}
	return &m, nil
}

// HashFile computes the hex BLAKE3 digest and size of a file.
func HashFile(path string) (digest string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Problem describes one entry that no longer matches the manifest.
type Problem struct {
	Path   string
	Reason string
}

func (p Problem) String() string { return p.Path + ": " + p.Reason }

// Verify re-checks every entry against the filesystem and returns the
// entries that are missing or have drifted. A nil result means the
// installation still matches the manifest exactly.
func (m *Manifest) Verify() ([]Problem, error) {
	var problems []Problem
	for _, e := range m.Entries {
		if e.Link != "" {
			target, err := os.Readlink(e.Path)
			if err != nil {
				problems = append(problems, Problem{e.Path, "missing symlink"})
				continue
			}
			if target != e.Link {
				problems = append(problems, Problem{e.Path,
					fmt.Sprintf("symlink points at %q, want %q", target, e.Link)})
			}
			continue
		}
		digest, size, err := HashFile(e.Path)
		if err != nil {
			if os.IsNotExist(err) {
				problems = append(problems, Problem{e.Path, "missing"})
				continue
			}
			return nil, err
		}
		if size != e.Size {
			problems = append(problems, Problem{e.Path,
				fmt.Sprintf("size %d, want %d", size, e.Size)})
			continue
		}
		if digest != e.Digest {
			problems = append(problems, Problem{e.Path, "content digest mismatch"})
		}
	}
	return problems, nil
}
