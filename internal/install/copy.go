package install

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/emplace-build/emplace/pkgs/manifest"
)

// tmpSuffix names the staging file placed next to each destination.
// Staging in the destination directory keeps the final rename on one
// filesystem, so it is atomic.
const tmpSuffix = ".emplace-tmp"

type fileStatus int

const (
	statusInstalled fileStatus = iota
	statusUpToDate
)

// installFile stages, optionally strips, and atomically places one
// file. A destination whose content already equals the staged bytes is
// left untouched. created reports whether the destination did not
// exist before (rollback removes only those).
func (in *Installer) installFile(op fileOp) (entry manifest.Entry, status fileStatus, created bool, err error) {
	if err = os.MkdirAll(filepath.Dir(op.dst), 0o755); err != nil {
		return entry, status, false, err
	}

	tmp := op.dst + tmpSuffix
	if err = copyFile(op.src, tmp, op.mode); err != nil {
		return entry, status, false, fmt.Errorf("staging %s: %w", op.dst, err)
	}
	defer os.Remove(tmp) // no-op after a successful rename

	if op.strip {
		if err = in.stripper.Run(tmp); err != nil {
			return entry, status, false, err
		}
	}
	if in.rules.Options.PreserveTimestamps {
		if info, serr := os.Stat(op.src); serr == nil {
			os.Chtimes(tmp, info.ModTime(), info.ModTime())
		}
	}

	digest, size, err := manifest.HashFile(tmp)
	if err != nil {
		return entry, status, false, err
	}
	entry = manifest.Entry{
		Path:   op.dst,
		Kind:   string(op.kind),
		Digest: digest,
		Size:   size,
		Mode:   uint32(op.mode),
	}

	_, statErr := os.Lstat(op.dst)
	exists := statErr == nil

	if exists {
		if oldDigest, oldSize, herr := manifest.HashFile(op.dst); herr == nil &&
			oldSize == size && oldDigest == digest {
			return entry, statusUpToDate, false, nil
		}
	}
	if err = os.Rename(tmp, op.dst); err != nil {
		return entry, status, false, err
	}
	return entry, statusInstalled, !exists, nil
}

// installLink places one symlink, replacing an existing link that
// points elsewhere.
func (in *Installer) installLink(op linkOp) (entry manifest.Entry, status fileStatus, created bool, err error) {
	entry = manifest.Entry{Path: op.dst, Kind: string(op.kind), Link: op.target}

	info, statErr := os.Lstat(op.dst)
	exists := statErr == nil
	if exists {
		if info.Mode()&os.ModeSymlink != 0 {
			if target, rerr := os.Readlink(op.dst); rerr == nil && target == op.target {
				return entry, statusUpToDate, false, nil
			}
		}
		if err = os.Remove(op.dst); err != nil {
			return entry, status, false, err
		}
	}
	if err = os.Symlink(op.target, op.dst); err != nil {
		return entry, status, false, err
	}
	return entry, statusInstalled, !exists, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	os.Remove(dst)
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err = out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	// O_CREATE honors umask; force the intended mode.
	return os.Chmod(dst, mode)
}
