// Package libname computes platform library file names and the
// versioned name chain (real file plus soname and namelink symlinks)
// for shared libraries.
package libname

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Shared returns the unversioned shared-library file name for a
// logical name on the given OS, e.g. Shared("tvm", "linux") ==
// "libtvm.so".
func Shared(name, goos string) string {
	switch goos {
	case "windows":
		return name + ".dll"
	case "darwin":
		return "lib" + name + ".dylib"
	}
	return "lib" + name + ".so"
}

// Static returns the static-library file name for a logical name on
// the given OS.
func Static(name, goos string) string {
	if goos == "windows" {
		return name + ".lib"
	}
	return "lib" + name + ".a"
}

// CheckVersion validates a shared-library version string such as
// "0.8.0". The empty string is valid and means unversioned.
func CheckVersion(version string) error {
	if version == "" {
		return nil
	}
	if strings.HasPrefix(version, "v") || !semver.IsValid("v"+version) {
		return fmt.Errorf("invalid library version %q (want e.g. \"1.2.3\")", version)
	}
	return nil
}

// Chain describes the file names a versioned shared library installs
// under. Real is the actual file; Links are symlinks pointing at it,
// most specific first (soname link, then the namelink).
type Chain struct {
	Real  string
	Links []string
}

// VersionedChain returns the install chain for a shared library with
// the given version on the given OS. An empty version yields a single
// real file under the plain name. Windows has no symlink convention,
// so the chain is always a single file there.
func VersionedChain(name, version, goos string) (Chain, error) {
	if err := CheckVersion(version); err != nil {
		return Chain{}, err
	}
	plain := Shared(name, goos)
	if version == "" || goos == "windows" {
		return Chain{Real: plain}, nil
	}

	major := strings.TrimPrefix(semver.Major("v"+version), "v")
	if goos == "darwin" {
		// libX.1.2.3.dylib <- libX.1.dylib <- libX.dylib
		return Chain{
			Real:  fmt.Sprintf("lib%s.%s.dylib", name, version),
			Links: []string{fmt.Sprintf("lib%s.%s.dylib", name, major), plain},
		}, nil
	}
	// libX.so.1.2.3 <- libX.so.1 <- libX.so
	return Chain{
		Real:  fmt.Sprintf("%s.%s", plain, version),
		Links: []string{fmt.Sprintf("%s.%s", plain, major), plain},
	}, nil
}
