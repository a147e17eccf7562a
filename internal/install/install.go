// Package install implements the install sequencer: it plans the
// operations a rules file implies for the active component and config,
// executes them fail-fast under a prefix lock, and records a verified
// manifest only after every operation succeeded.
package install

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/emplace-build/emplace/internal/env"
	"github.com/emplace-build/emplace/internal/lockfile"
	"github.com/emplace-build/emplace/internal/rules"
	"github.com/emplace-build/emplace/pkgs/manifest"
	"github.com/emplace-build/emplace/x/striptool"
)

const lockName = ".emplace.lock"

// Params configures one install run.
type Params struct {
	Rules *rules.Rules

	// Prefix is the resolved install prefix (without DESTDIR).
	Prefix string

	// DestDir optionally stages the whole tree under another root.
	DestDir string

	Config    string
	Component string

	// Strip enables symbol stripping of shared libraries; Stripper
	// must be set when it is.
	Strip    bool
	Stripper *striptool.Strip

	// ManifestDir is where the manifest files are written. Defaults to
	// the rules file directory.
	ManifestDir string

	// Logger receives progress events. Nil means slog.Default().
	Logger *slog.Logger

	// GOOS overrides the target OS for library naming. Defaults to
	// the host.
	GOOS string
}

// Installer executes install runs.
type Installer struct {
	rules       *rules.Rules
	prefix      string
	root        string
	config      string
	component   string
	strip       bool
	stripper    *striptool.Strip
	manifestDir string
	logger      *slog.Logger
	goos        string
}

// New validates params and returns an Installer.
func New(p Params) (*Installer, error) {
	if p.Rules == nil {
		return nil, fmt.Errorf("install: no rules")
	}
	if p.Prefix == "" {
		return nil, fmt.Errorf("install: no prefix")
	}
	if p.Strip && p.Stripper == nil {
		return nil, fmt.Errorf("install: strip requested but no strip tool configured")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	manifestDir := p.ManifestDir
	if manifestDir == "" {
		manifestDir = p.Rules.Dir
	}
	return &Installer{
		rules:       p.Rules,
		prefix:      p.Prefix,
		root:        env.Root(p.DestDir, p.Prefix),
		config:      p.Config,
		component:   p.Component,
		strip:       p.Strip,
		stripper:    p.Stripper,
		manifestDir: manifestDir,
		logger:      logger,
		goos:        goos,
	}, nil
}

// Run performs the install and returns the written manifest. On any
// copy or strip error the run stops, removes every file and symlink it
// created, and writes no manifest. Files it replaced keep their new
// content: replacement is an atomic rename that only happens after
// that file's copy and strip succeeded.
func (in *Installer) Run(ctx context.Context) (*manifest.Manifest, error) {
	p, err := in.buildPlan()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(in.root, 0o755); err != nil {
		return nil, err
	}
	unlock, err := lockfile.MutexAt(filepath.Join(in.root, lockName)).Lock(in.rules.Options.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m := &manifest.Manifest{
		Project:     in.rules.Project,
		Version:     in.rules.Version,
		Config:      in.config,
		Component:   in.component,
		Prefix:      in.prefix,
		InstallTime: time.Now().UTC(),
	}

	var created []string
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			os.Remove(created[i])
		}
	}

	for _, op := range p.files {
		if err := ctx.Err(); err != nil {
			rollback()
			return nil, err
		}
		entry, status, madeNew, err := in.installFile(op)
		if err != nil {
			rollback()
			return nil, err
		}
		if madeNew {
			created = append(created, op.dst)
		}
		if status == statusUpToDate {
			in.logger.Info("up to date", "path", op.dst)
		} else {
			in.logger.Info("installing", "path", op.dst)
		}
		m.Entries = append(m.Entries, entry)
	}
	for _, op := range p.links {
		if err := ctx.Err(); err != nil {
			rollback()
			return nil, err
		}
		entry, status, madeNew, err := in.installLink(op)
		if err != nil {
			rollback()
			return nil, err
		}
		if madeNew {
			created = append(created, op.dst)
		}
		if status == statusUpToDate {
			in.logger.Info("up to date", "path", op.dst)
		} else {
			in.logger.Info("installing symlink", "path", op.dst, "target", op.target)
		}
		m.Entries = append(m.Entries, entry)
	}

	if err := m.Write(in.manifestDir); err != nil {
		rollback()
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	return m, nil
}
