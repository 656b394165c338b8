package catalog

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileInfo holds metadata about a discovered catalog file.
type FileInfo struct {
	Path    string
	RelPath string
	Size    int64
}

// maxFileSize is the largest catalog file we'll consider (16 MB).
const maxFileSize = 16 << 20

// catalogExts are the extensions picked up when walking a directory.
var catalogExts = map[string]bool{"yaml": true, "yml": true, "json": true}

// defaultIgnores are used when no .hdqlignore file exists.
var defaultIgnores = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	".idea",
	".vscode",
	".hdql",
}

// Walk resolves each input (a file, a directory or a doublestar glob) and
// sends the catalog files it names on the returned channel. Directories
// are walked recursively, keeping .yaml, .yml and .json files and skipping
// directories matched by .hdqlignore patterns. A file reached through two
// inputs is sent once.
func Walk(inputs []string) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		seen := make(map[string]bool)
		emit := func(path, rel string, size int64) {
			if seen[path] || size == 0 || size > maxFileSize {
				return
			}
			seen[path] = true
			files <- FileInfo{Path: path, RelPath: filepath.ToSlash(rel), Size: size}
		}

		for _, in := range inputs {
			if err := walkInput(in, emit); err != nil {
				errs <- err
				return
			}
		}
	}()

	return files, errs
}

func walkInput(in string, emit func(path, rel string, size int64)) error {
	if containsGlob(in) {
		matches, err := doublestar.FilepathGlob(in, doublestar.WithFilesOnly())
		if err != nil {
			return fmt.Errorf("glob %s: %w", in, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				return err
			}
			info, err := os.Stat(abs)
			if err != nil {
				continue
			}
			emit(abs, m, info.Size())
		}
		return nil
	}

	absRoot, err := filepath.Abs(in)
	if err != nil {
		return err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("catalog input: %w", err)
	}
	if !info.IsDir() {
		emit(absRoot, filepath.Base(absRoot), info.Size())
		return nil
	}

	ignores := loadIgnorePatterns(absRoot)
	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors, keep walking
		}

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			rel, _ := filepath.Rel(absRoot, path)
			if matchesIgnore(d.Name(), filepath.ToSlash(rel), ignores) {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip symlinks.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if !catalogExts[ext] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(absRoot, path)
		emit(path, rel, info.Size())
		return nil
	})
}

// loadIgnorePatterns reads .hdqlignore from the catalog root, falling back
// to the defaults.
func loadIgnorePatterns(root string) []string {
	f, err := os.Open(filepath.Join(root, ".hdqlignore"))
	if err != nil {
		return defaultIgnores
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if len(patterns) == 0 {
		return defaultIgnores
	}
	return patterns
}

// matchesIgnore checks if a directory name or relative path matches any ignore pattern.
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		if name == p {
			return true
		}
		if strings.HasPrefix(relPath, p) {
			return true
		}
		if matched, _ := doublestar.Match(p, relPath); matched {
			return true
		}
		if matched, _ := doublestar.Match(p, name); matched {
			return true
		}
	}
	return false
}

func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
