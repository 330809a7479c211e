package discover

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/codemind/codegraph/internal/lang"
)

func writeFile(t *testing.T, dir, rel string, content []byte) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverBasic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", []byte("package main\n"))
	writeFile(t, dir, "app.py", []byte("def main(): pass\n"))
	writeFile(t, dir, "README.md", []byte("docs\n"))

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	// Path order.
	if files[0].RelPath != "app.py" || files[1].RelPath != "main.go" {
		t.Errorf("order = %s, %s", files[0].RelPath, files[1].RelPath)
	}
	if files[0].Language != lang.Python || files[1].Language != lang.Go {
		t.Errorf("languages = %s, %s", files[0].Language, files[1].Language)
	}
}

func TestDiscoverSkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/ok.py", []byte("x = 1\n"))
	writeFile(t, dir, "node_modules/dep/index.js", []byte("x\n"))
	writeFile(t, dir, ".git/hooks/sample.py", []byte("x\n"))

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].RelPath != "src/ok.py" {
		t.Errorf("files = %+v", files)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", []byte("generated/\n*.gen.py\n"))
	writeFile(t, dir, "keep.py", []byte("x = 1\n"))
	writeFile(t, dir, "skip.gen.py", []byte("x = 1\n"))
	writeFile(t, dir, "generated/out.py", []byte("x = 1\n"))

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].RelPath != "keep.py" {
		t.Errorf("files = %+v", files)
	}
}

func TestDiscoverSkipsBinaryAndOversize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "text.py", []byte("x = 1\n"))
	writeFile(t, dir, "binary.py", append([]byte("x = "), 0x00, 0x01, 0x02))
	writeFile(t, dir, "huge.py", bytes.Repeat([]byte("# filler line\n"), MaxFileSize/10))

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].RelPath != "text.py" {
		t.Errorf("files = %+v", files)
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", []byte("package main\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, dir, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
