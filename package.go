package greeter

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// zipEpoch is the earliest time a zip header can represent. Every entry is
// stamped with it so identical binaries produce identical packages.
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// PackageTo builds the handler at path (a main.go file or the directory
// holding it) for linux/arch and writes it to output in the format the
// provided.al2023 runtime expects: a zip holding a single executable named
// bootstrap.
func PackageTo(path string, arch string, output io.Writer) error {
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absolutePath)
	if err != nil {
		return err
	}
	dir, target := absolutePath, "."
	if !info.IsDir() {
		dir, target = filepath.Dir(absolutePath), absolutePath
	}
	env := append(os.Environ(), goCacheEnv()...)

	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		cmd := exec.Command("go", "mod", "tidy")
		cmd.Dir = dir
		cmd.Env = env
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("error tidying go module: %s", string(out))
		}
	}

	buildDir, err := os.MkdirTemp("", "greeter-build-")
	if err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	defer os.RemoveAll(buildDir)
	executablePath := filepath.Join(buildDir, "bootstrap")

	cmd := exec.Command("go", "build", "-tags", "lambda.norpc", "-trimpath", "-o", executablePath, target)
	cmd.Dir = dir
	cmd.Env = append(env, "GOOS=linux", "GOARCH="+arch, "CGO_ENABLED=0")
	msg, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("error building lambda function: %w, %s", err, msg)
	}

	zipWriter := zip.NewWriter(output)
	header := &zip.FileHeader{
		Name:     "bootstrap",
		Method:   zip.Deflate,
		Modified: zipEpoch,
	}
	header.SetMode(0755)

	zipContents, err := zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip file header: %w", err)
	}
	executable, err := os.Open(executablePath)
	if err != nil {
		return fmt.Errorf("failed to open executable: %w", err)
	}
	defer executable.Close()

	_, err = io.Copy(zipContents, executable)
	if err != nil {
		return fmt.Errorf("failed to write code to zip file: %w", err)
	}
	return zipWriter.Close()
}

func Package(path string, arch string) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := PackageTo(path, arch, buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func goCacheEnv() []string {
	modCache := os.Getenv("GOMODCACHE")
	if modCache == "" {
		modCache = filepath.Join(os.Getenv("HOME"), "go/pkg/mod")
	}
	buildCache := os.Getenv("GOCACHE")
	if buildCache == "" {
		buildCache = filepath.Join(os.Getenv("HOME"), ".cache/go-build")
	}
	return []string{"GOMODCACHE=" + modCache, "GOCACHE=" + buildCache}
}
