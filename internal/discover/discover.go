package discover

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/codemind/codegraph/internal/lang"
)

// MaxFileSize is the largest file discovery will hand to extraction.
const MaxFileSize = 1 << 20

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".eggs": true, ".env": true, ".git": true,
	".gradle": true, ".hg": true, ".idea": true, ".mypy_cache": true,
	".nox": true, ".npm": true, ".nyc_output": true, ".pnpm-store": true,
	".pytest_cache": true, ".ruff_cache": true, ".svn": true,
	".tox": true, ".venv": true, ".vscode": true, ".yarn": true,
	"__pycache__": true, "bower_components": true, "build": true,
	"coverage": true, "dist": true, "env": true, "htmlcov": true,
	"node_modules": true, "obj": true, "out": true, "Pods": true,
	"site-packages": true, "target": true, "vendor": true, "venv": true,
}

// IGNORE_SUFFIXES are file suffixes to skip.
var IGNORE_SUFFIXES = map[string]bool{
	".tmp": true, "~": true, ".pyc": true, ".pyo": true, ".min.js": true,
	".o": true, ".a": true, ".so": true, ".dll": true, ".class": true,
}

// FileInfo is one discovered source file.
type FileInfo struct {
	Path     string // absolute
	RelPath  string // relative to repo root, slash-separated
	Language lang.Language
	Size     int64
}

// Options configures discovery.
type Options struct {
	// IgnoreFile overrides the default <root>/.gitignore.
	IgnoreFile string
}

// Discover walks a repository and returns its indexable source files in
// path order. Skipped: ignored directories, gitignored paths, files over
// MaxFileSize, and binary files.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matcher := loadGitignore(repoPath, opts)

	var files []FileInfo
	err = filepath.Walk(repoPath, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return filepath.SkipDir
		}

		rel, _ := filepath.Rel(repoPath, path)
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if rel != "." && (IGNORE_PATTERNS[info.Name()] || matches(matcher, rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if matches(matcher, rel) {
			return nil
		}
		for suffix := range IGNORE_SUFFIXES {
			if strings.HasSuffix(path, suffix) {
				return nil
			}
		}
		if info.Size() > MaxFileSize {
			return nil
		}

		l, ok := lang.LanguageForExtension(filepath.Ext(path))
		if !ok {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		files = append(files, FileInfo{
			Path:     path,
			RelPath:  rel,
			Language: l,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func loadGitignore(repoPath string, opts *Options) *ignore.GitIgnore {
	path := filepath.Join(repoPath, ".gitignore")
	if opts != nil && opts.IgnoreFile != "" {
		path = opts.IgnoreFile
	}
	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return matcher
}

func matches(m *ignore.GitIgnore, rel string) bool {
	return m != nil && m.MatchesPath(rel)
}

// isBinary sniffs the leading bytes for a NUL, the cheap binary signal.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 8000)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}
