// Package env resolves the install run's environment: prefix, DESTDIR
// staging root, config name, component filter and strip tool. Each
// resolver applies the same precedence: explicit flag, then process
// environment, then rules-file default, then built-in default.
package env

import (
	"os"
	"path/filepath"
	"runtime"
)

// Environment variables honored by an install run.
const (
	PrefixEnv    = "EMPLACE_PREFIX"
	ConfigEnv    = "EMPLACE_CONFIG"
	ComponentEnv = "EMPLACE_COMPONENT"
	DestDirEnv   = "DESTDIR"
	StripEnv     = "STRIP"
)

// DefaultConfig is the config name used when nothing selects one.
const DefaultConfig = "Release"

// DefaultPrefix returns the platform install root for a project.
func DefaultPrefix(goos, project string) string {
	if goos == "windows" {
		return filepath.Join(`C:\Program Files`, project)
	}
	return "/usr/local"
}

// Prefix resolves the install prefix.
func Prefix(flag, rulesPrefix, project string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(PrefixEnv); v != "" {
		return v
	}
	if rulesPrefix != "" {
		return rulesPrefix
	}
	return DefaultPrefix(runtime.GOOS, project)
}

// DestDir resolves the DESTDIR staging root. Empty means install
// directly under the prefix.
func DestDir(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(DestDirEnv)
}

// Config resolves the active config name.
func Config(flag, rulesDefault string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(ConfigEnv); v != "" {
		return v
	}
	if rulesDefault != "" {
		return rulesDefault
	}
	return DefaultConfig
}

// Component resolves the component filter. Empty means no filter.
func Component(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(ComponentEnv)
}

// StripTool resolves the strip utility to invoke.
func StripTool(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(StripEnv); v != "" {
		return v
	}
	return "strip"
}

// Root joins a DESTDIR staging root with the prefix. The prefix is
// made root-relative first, so prefix "/usr/local" under destdir
// "/stage" becomes "/stage/usr/local". On Windows the volume name is
// dropped from the prefix before joining.
func Root(destdir, prefix string) string {
	if destdir == "" {
		return prefix
	}
	rel := prefix
	if vol := filepath.VolumeName(rel); vol != "" {
		rel = rel[len(vol):]
	}
	rel = filepath.ToSlash(rel)
	for len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}
	return filepath.Join(destdir, filepath.FromSlash(rel))
}
