package greeter_test

import (
	"archive/zip"
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/serverlesstf/greeter"
)

// copyHandler copies the fixture handler into a temp dir so tidying it does
// not touch the checked in testdata.
func copyHandler(t *testing.T, src string) string {
	t.Helper()
	dst := t.TempDir()
	entries, err := os.ReadDir(src)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		err = os.WriteFile(filepath.Join(dst, e.Name()), data, 0o644)
		if err != nil {
			t.Fatal(err)
		}
	}
	return dst
}

func TestPackageTo_ProducesBootstrapZip(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("builds a go binary")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	dir := copyHandler(t, "testdata/correct_test_handler")
	buf := new(bytes.Buffer)
	err := greeter.PackageTo(dir, "arm64", buf)
	if err != nil {
		t.Fatal(err)
	}
	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.File) != 1 {
		t.Fatalf("expected a single file in the package, got %d", len(r.File))
	}
	f := r.File[0]
	if f.Name != "bootstrap" {
		t.Errorf("expected bootstrap, got %s", f.Name)
	}
	if f.Mode().Perm() != 0o755 {
		t.Errorf("expected executable mode 0755, got %v", f.Mode().Perm())
	}
	if f.Modified.Year() != 1980 {
		t.Errorf("expected a fixed modification time, got %v", f.Modified)
	}
	if f.UncompressedSize64 == 0 {
		t.Error("expected a non empty executable")
	}
}

func TestPackageTo_FailsForMissingPath(t *testing.T) {
	t.Parallel()
	err := greeter.PackageTo("testdata/does_not_exist", "arm64", new(bytes.Buffer))
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestSourceCodeHash(t *testing.T) {
	t.Parallel()
	// sha256 of the empty input
	want := "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="
	if got := greeter.SourceCodeHash(nil); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if greeter.SourceCodeHash([]byte("a")) == greeter.SourceCodeHash([]byte("b")) {
		t.Error("expected different packages to hash differently")
	}
}

func TestContentHash_StableAndSensitiveToChanges(t *testing.T) {
	t.Parallel()
	dir := copyHandler(t, "testdata/correct_test_handler")
	first, err := greeter.ContentHash(dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := greeter.ContentHash(dir)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("expected stable hash, got %s and %s", first, second)
	}

	moved := copyHandler(t, "testdata/correct_test_handler")
	elsewhere, err := greeter.ContentHash(moved)
	if err != nil {
		t.Fatal(err)
	}
	if first != elsewhere {
		t.Error("expected hash to be independent of the checkout location")
	}

	err = os.WriteFile(filepath.Join(dir, "extra.go"), []byte("package main\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	changed, err := greeter.ContentHash(dir)
	if err != nil {
		t.Fatal(err)
	}
	if changed == first {
		t.Error("expected hash to change when a file is added")
	}
}

func TestContentHash_MissingPath(t *testing.T) {
	t.Parallel()
	_, err := greeter.ContentHash("testdata/does_not_exist")
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestArtifactKey(t *testing.T) {
	t.Parallel()
	got := greeter.ArtifactKey("greeter", "arm64", "abc123")
	if got != "greeter/greeter/arm64-abc123.zip" {
		t.Errorf("unexpected key %s", got)
	}
	if !strings.HasSuffix(greeter.ArtifactKey("f", "amd64", "x"), ".zip") {
		t.Error("expected zip suffix")
	}
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestModuleRoot_FindsEnclosingModule(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"go.mod":          "module example.com/app\n",
		"handler.go":      "package app\n",
		"cmd/app/main.go": "package main\n",
	})
	tc := []struct {
		description string
		path        string
	}{
		{description: "entry directory", path: filepath.Join(root, "cmd", "app")},
		{description: "entry file", path: filepath.Join(root, "cmd", "app", "main.go")},
		{description: "module directory", path: root},
	}
	for _, tt := range tc {
		t.Run(tt.description, func(t *testing.T) {
			got, err := greeter.ModuleRoot(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			if got != root {
				t.Errorf("expected %s, got %s", root, got)
			}
		})
	}
}

func TestContentHash_CoversPackagesOutsideTheEntryDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"go.mod":          "module example.com/app\n",
		"handler.go":      "package app\n",
		"cmd/app/main.go": "package main\n",
	})
	moduleRoot, err := greeter.ModuleRoot(filepath.Join(root, "cmd", "app"))
	if err != nil {
		t.Fatal(err)
	}
	before, err := greeter.ContentHash(moduleRoot)
	if err != nil {
		t.Fatal(err)
	}
	writeFiles(t, root, map[string]string{"handler.go": "package app\n\nconst Changed = true\n"})
	after, err := greeter.ContentHash(moduleRoot)
	if err != nil {
		t.Fatal(err)
	}
	if before == after {
		t.Error("expected a change to the root package to change the hash")
	}
}

func TestContentHash_SkipsIgnoredDirectories(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"go.mod":  "module example.com/app\n",
		"main.go": "package main\n",
	})
	before, err := greeter.ContentHash(root)
	if err != nil {
		t.Fatal(err)
	}
	writeFiles(t, root, map[string]string{
		"testdata/fixture.go": "package main\n",
		".git/HEAD":           "ref: refs/heads/main\n",
		"_examples/x.go":      "package x\n",
	})
	after, err := greeter.ContentHash(root)
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Error("expected testdata, dot and underscore directories to be ignored")
	}
}
