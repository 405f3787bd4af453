package greeter

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SourceCodeHash returns the base64 SHA-256 of a deployment package, the
// same form Lambda reports as CodeSha256.
func SourceCodeHash(pkg []byte) string {
	sum := sha256.Sum256(pkg)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ContentHash hashes the relative path and contents of every regular file
// under paths. Files are visited in lexical order so the result is stable.
// Directories the go tool ignores (testdata and names starting with . or _)
// are skipped below each root.
func ContentHash(paths ...string) (string, error) {
	h := sha256.New()
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && ignoredDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				rel = filepath.Base(path)
			}
			io.WriteString(h, filepath.ToSlash(rel))
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(h, f)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("failure in hashing %s: %w", root, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func ignoredDir(name string) bool {
	return name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// ModuleRoot returns the nearest directory at or above the handler at path
// that holds a go.mod, so a content hash covers every package the binary
// can be built from. Without a go.mod the handler's own directory is used.
func ModuleRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	start := handlerDir(abs)
	for dir := start; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start, nil
		}
		dir = parent
	}
}
