package install

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/emplace-build/emplace/internal/rules"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture builds a source tree matching the sample rules: two shared
// libraries, a static library and a header tree.
func fixture(t *testing.T) *rules.Rules {
	t.Helper()
	dir := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("build/libtvm.so", "tvm shared object")
	write("build/libtvm_runtime.so", "tvm runtime shared object")
	write("build/libtvm.a", "tvm archive")
	write("include/tvm/runtime.h", "// runtime api\n")
	write("include/tvm/ir/expr.h", "// ir expr\n")
	write("include/tvm/README", "not a header\n")

	r, err := rules.Parse(filepath.Join(dir, "emplace.yaml"), []byte(`
project: tvm
version: 0.8.0
artifacts:
  - name: tvm
    kind: shared_library
    source: build/libtvm.so
    dest: lib
    version: 0.8.0
  - name: tvm_runtime
    kind: shared_library
    source: build/libtvm_runtime.so
    dest: lib
    component: runtime
  - name: tvm_static
    kind: static_library
    source: build/libtvm.a
    dest: lib
  - name: tvm_headers
    kind: header_dir
    source: include/tvm
    dest: include
    component: headers
    patterns: ["*.h"]
`))
	if err != nil {
		t.Fatalf("parsing fixture rules: %v", err)
	}
	return r
}

func newInstaller(t *testing.T, p Params) *Installer {
	t.Helper()
	if p.Config == "" {
		p.Config = "Release"
	}
	if p.Logger == nil {
		p.Logger = quietLogger()
	}
	if p.GOOS == "" {
		p.GOOS = "linux"
	}
	in, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return in
}

func TestInstallAll(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fixture uses symlinks")
	}
	r := fixture(t)
	prefix := filepath.Join(t.TempDir(), "usr", "local")

	in := newInstaller(t, Params{Rules: r, Prefix: prefix})
	m, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantPaths := []string{
		filepath.Join(prefix, "lib", "libtvm.so.0.8.0"),
		filepath.Join(prefix, "lib", "libtvm_runtime.so"),
		filepath.Join(prefix, "lib", "libtvm.a"),
		filepath.Join(prefix, "include", "tvm", "ir", "expr.h"),
		filepath.Join(prefix, "include", "tvm", "runtime.h"),
		filepath.Join(prefix, "lib", "libtvm.so.0"),
		filepath.Join(prefix, "lib", "libtvm.so"),
	}
	got := m.Paths()
	if len(got) != len(wantPaths) {
		t.Fatalf("manifest paths = %v, want %d entries", got, len(wantPaths))
	}
	for _, p := range wantPaths {
		found := false
		for _, g := range got {
			if g == p {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("manifest missing %s", p)
		}
	}

	// Strip disabled: installed bytes equal source bytes.
	data, err := os.ReadFile(filepath.Join(prefix, "lib", "libtvm.so.0.8.0"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "tvm shared object" {
		t.Errorf("installed library = %q, not byte-identical to source", data)
	}

	// The namelink chain resolves to the real file.
	target, err := os.Readlink(filepath.Join(prefix, "lib", "libtvm.so"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "libtvm.so.0" {
		t.Errorf("libtvm.so -> %q, want libtvm.so.0", target)
	}
	target, err = os.Readlink(filepath.Join(prefix, "lib", "libtvm.so.0"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "libtvm.so.0.8.0" {
		t.Errorf("libtvm.so.0 -> %q, want libtvm.so.0.8.0", target)
	}

	// Shared libraries are executable, archives are not.
	info, err := os.Stat(filepath.Join(prefix, "lib", "libtvm.so.0.8.0"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("shared library mode = %v, want 0755", info.Mode().Perm())
	}
	info, err = os.Stat(filepath.Join(prefix, "lib", "libtvm.a"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("static library mode = %v, want 0644", info.Mode().Perm())
	}

	// Pattern filtering: README is not installed.
	if _, err := os.Stat(filepath.Join(prefix, "include", "tvm", "README")); !os.IsNotExist(err) {
		t.Error("README installed despite patterns")
	}

	// Text manifest matches the returned entries.
	text, err := os.ReadFile(filepath.Join(r.Dir, "install_manifest.txt"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(text)), "\n")
	if len(lines) != len(m.Entries) {
		t.Errorf("text manifest has %d lines, want %d", len(lines), len(m.Entries))
	}
}

func TestComponentFilter(t *testing.T) {
	r := fixture(t)
	prefix := filepath.Join(t.TempDir(), "prefix")

	in := newInstaller(t, Params{Rules: r, Prefix: prefix, Component: "runtime"})
	m, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := filepath.Join(prefix, "lib", "libtvm_runtime.so")
	if len(m.Entries) != 1 || m.Entries[0].Path != want {
		t.Fatalf("manifest = %v, want only %s", m.Paths(), want)
	}
	if _, err := os.Stat(filepath.Join(prefix, "lib", "libtvm.a")); !os.IsNotExist(err) {
		t.Error("untagged artifact installed under component filter")
	}
	if _, err := os.Stat(filepath.Join(r.Dir, "install_manifest_runtime.txt")); err != nil {
		t.Errorf("component manifest not written: %v", err)
	}
}

func TestComponentNoMatch(t *testing.T) {
	r := fixture(t)
	prefix := filepath.Join(t.TempDir(), "prefix")

	in := newInstaller(t, Params{Rules: r, Prefix: prefix, Component: "nosuch"})
	m, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(m.Entries) != 0 {
		t.Fatalf("manifest = %v, want empty", m.Paths())
	}
	text, err := os.ReadFile(filepath.Join(r.Dir, "install_manifest_nosuch.txt"))
	if err != nil {
		t.Fatalf("empty manifest not written: %v", err)
	}
	if len(text) != 0 {
		t.Errorf("empty manifest contains %q", text)
	}
	entries, err := os.ReadDir(filepath.Join(prefix, "lib"))
	if err == nil && len(entries) > 0 {
		t.Errorf("files installed for non-existent component: %v", entries)
	}
}

func TestIdempotentRerun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fixture uses symlinks")
	}
	r := fixture(t)
	prefix := filepath.Join(t.TempDir(), "prefix")

	in := newInstaller(t, Params{Rules: r, Prefix: prefix})
	m1, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	lib := filepath.Join(prefix, "lib", "libtvm.so.0.8.0")
	before, err := os.Stat(lib)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	m2, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(m1.Entries) != len(m2.Entries) {
		t.Errorf("second run manifest has %d entries, want %d", len(m2.Entries), len(m1.Entries))
	}

	// Up-to-date files are not rewritten.
	after, err := os.Stat(lib)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("up-to-date file was rewritten on rerun")
	}
}

func TestUpToDateStillRecorded(t *testing.T) {
	r := fixture(t)
	prefix := filepath.Join(t.TempDir(), "prefix")

	// Pre-place the static library with identical content.
	if err := os.MkdirAll(filepath.Join(prefix, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(prefix, "lib", "libtvm.a"), []byte("tvm archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	in := newInstaller(t, Params{Rules: r, Prefix: prefix, Component: "Unspecified"})
	m, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, e := range m.Entries {
		if e.Path == filepath.Join(prefix, "lib", "libtvm.a") {
			found = true
		}
	}
	if !found {
		t.Errorf("up-to-date file missing from manifest: %v", m.Paths())
	}
}

func TestMissingSourceFails(t *testing.T) {
	r := fixture(t)
	if err := os.Remove(filepath.Join(r.Dir, "build", "libtvm.so")); err != nil {
		t.Fatal(err)
	}
	prefix := filepath.Join(t.TempDir(), "prefix")

	in := newInstaller(t, Params{Rules: r, Prefix: prefix})
	if _, err := in.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded with missing non-optional source")
	}

	// Fail-fast at planning: nothing was installed, no manifest written.
	if _, err := os.Stat(filepath.Join(prefix, "lib")); !os.IsNotExist(err) {
		t.Error("files installed despite planning failure")
	}
	if _, err := os.Stat(filepath.Join(r.Dir, "install_manifest.txt")); !os.IsNotExist(err) {
		t.Error("manifest written despite failure")
	}
}

func TestOptionalSourceSkipped(t *testing.T) {
	r := fixture(t)
	// Make the static library optional, then remove its source.
	for i := range r.Artifacts {
		if r.Artifacts[i].Name == "tvm_static" {
			r.Artifacts[i].Optional = true
		}
	}
	if err := os.Remove(filepath.Join(r.Dir, "build", "libtvm.a")); err != nil {
		t.Fatal(err)
	}
	prefix := filepath.Join(t.TempDir(), "prefix")

	in := newInstaller(t, Params{Rules: r, Prefix: prefix})
	m, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run with optional missing: %v", err)
	}
	for _, p := range m.Paths() {
		if strings.HasSuffix(p, "libtvm.a") {
			t.Errorf("skipped optional artifact appears in manifest: %s", p)
		}
	}
}

func TestDestDirStaging(t *testing.T) {
	r := fixture(t)
	stage := t.TempDir()

	in := newInstaller(t, Params{
		Rules:     r,
		Prefix:    "/usr/local",
		DestDir:   stage,
		Component: "runtime",
	})
	m, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := filepath.Join(stage, "usr", "local", "lib", "libtvm_runtime.so")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if m.Entries[0].Path != want {
		t.Errorf("manifest path = %q, want %q", m.Entries[0].Path, want)
	}
	// The recorded prefix stays the logical one.
	if m.Prefix != "/usr/local" {
		t.Errorf("manifest prefix = %q", m.Prefix)
	}
}

func TestUninstall(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fixture uses symlinks")
	}
	r := fixture(t)
	prefix := filepath.Join(t.TempDir(), "prefix")

	in := newInstaller(t, Params{Rules: r, Prefix: prefix})
	m, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := Uninstall(m, r.Dir, quietLogger()); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	for _, p := range m.Paths() {
		if _, err := os.Lstat(p); !os.IsNotExist(err) {
			t.Errorf("%s still present after uninstall", p)
		}
	}
	if _, err := os.Stat(filepath.Join(r.Dir, "install_manifest.txt")); !os.IsNotExist(err) {
		t.Error("text manifest still present after uninstall")
	}
	if _, err := os.Stat(filepath.Join(r.Dir, "install_manifest.json")); !os.IsNotExist(err) {
		t.Error("json manifest still present after uninstall")
	}
}

func TestUninstallToleratesMissing(t *testing.T) {
	r := fixture(t)
	prefix := filepath.Join(t.TempDir(), "prefix")

	in := newInstaller(t, Params{Rules: r, Prefix: prefix, Component: "runtime"})
	m, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := os.Remove(m.Entries[0].Path); err != nil {
		t.Fatal(err)
	}
	if err := Uninstall(m, r.Dir, quietLogger()); err != nil {
		t.Fatalf("Uninstall with missing file: %v", err)
	}
}
