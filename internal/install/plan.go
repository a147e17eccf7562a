package install

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/emplace-build/emplace/pkgs/artifact"
	"github.com/emplace-build/emplace/pkgs/libname"
)

// fileOp is one file to place: copy src to dst with mode.
type fileOp struct {
	src  string
	dst  string
	mode os.FileMode
	// strip marks the staged copy for symbol stripping before it is
	// moved into place.
	strip bool
	kind  artifact.Kind
}

// linkOp is one symlink to place: dst pointing at target (a name
// relative to dst's directory).
type linkOp struct {
	dst    string
	target string
	kind   artifact.Kind
}

// plan is the fully resolved set of operations for one run. Planning
// touches only the source tree; a plan that builds without error means
// every non-optional source exists.
type plan struct {
	files   []fileOp
	links   []linkOp
	skipped []string // optional artifacts whose source was missing
}

const (
	sharedMode = os.FileMode(0o755)
	plainMode  = os.FileMode(0o644)
)

func (in *Installer) buildPlan() (*plan, error) {
	p := &plan{}
	for _, a := range in.rules.Select(in.component, in.config) {
		src := in.rules.SourcePath(&a)
		info, err := os.Stat(src)
		if err != nil {
			if os.IsNotExist(err) && a.Optional {
				p.skipped = append(p.skipped, a.Name)
				in.logger.Info("skipping optional artifact", "artifact", a.Name, "source", src)
				continue
			}
			return nil, fmt.Errorf("artifact %s: %w", a.Name, err)
		}

		destDir := filepath.Join(in.root, filepath.FromSlash(a.Dest))
		switch a.Kind {
		case artifact.SharedLibrary:
			if info.IsDir() {
				return nil, fmt.Errorf("artifact %s: source %s is a directory", a.Name, src)
			}
			if err := planSharedLibrary(p, &a, src, destDir, in.goos, in.strip); err != nil {
				return nil, err
			}
		case artifact.StaticLibrary:
			if info.IsDir() {
				return nil, fmt.Errorf("artifact %s: source %s is a directory", a.Name, src)
			}
			p.files = append(p.files, fileOp{
				src:  src,
				dst:  filepath.Join(destDir, libname.Static(a.Name, in.goos)),
				mode: plainMode,
				kind: a.Kind,
			})
		case artifact.HeaderDir:
			if !info.IsDir() {
				return nil, fmt.Errorf("artifact %s: source %s is not a directory", a.Name, src)
			}
			if err := planHeaderDir(p, &a, src, destDir); err != nil {
				return nil, fmt.Errorf("artifact %s: %w", a.Name, err)
			}
		}
	}
	return p, nil
}

func planSharedLibrary(p *plan, a *artifact.Artifact, src, destDir, goos string, strip bool) error {
	chain, err := libname.VersionedChain(a.Name, a.Version, goos)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", a.Name, err)
	}
	p.files = append(p.files, fileOp{
		src:   src,
		dst:   filepath.Join(destDir, chain.Real),
		mode:  sharedMode,
		strip: strip && a.Strippable(),
		kind:  a.Kind,
	})
	// Each link points at the next more specific name:
	// libX.so -> libX.so.1 -> libX.so.1.2.3.
	target := chain.Real
	for _, name := range chain.Links {
		p.links = append(p.links, linkOp{
			dst:    filepath.Join(destDir, name),
			target: target,
			kind:   a.Kind,
		})
		target = name
	}
	return nil
}

// planHeaderDir resolves a header tree: the source directory is copied
// under destDir keeping its base name, so include/tvm with dest
// "include" lands at <prefix>/include/tvm. Patterns filter by file
// base name; directories are always descended.
func planHeaderDir(p *plan, a *artifact.Artifact, src, destDir string) error {
	base := filepath.Base(src)
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if len(a.Patterns) > 0 {
			matched := false
			for _, pat := range a.Patterns {
				if ok, _ := filepath.Match(pat, d.Name()); ok {
					matched = true
					break
				}
			}
			if !matched {
				return nil
			}
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		p.files = append(p.files, fileOp{
			src:  path,
			dst:  filepath.Join(destDir, base, rel),
			mode: plainMode,
			kind: a.Kind,
		})
		return nil
	})
}
