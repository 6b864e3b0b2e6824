// Package scanner finds program files and Rust sources under a directory.
// It respects .grfignore files with gitignore-style patterns.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Kind classifies a discovered file.
type Kind string

const (
	KindProgram Kind = "program"
	KindRust    Kind = "rust"
)

// DetectKind maps a file extension to its kind. Unknown extensions yield "".
func DetectKind(ext string) Kind {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return KindProgram
	case ".rs":
		return KindRust
	default:
		return ""
	}
}

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string
	Kind     Kind
	Size     int64
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string
	Kinds           []Kind // Kinds to report; empty reports all known kinds
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".grfignore",
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			"target",
			"vendor",
			"node_modules",
		},
	}
}

// Scanner walks directory trees.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan walks root and returns the matching files in lexical order.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	patterns, err := s.loadIgnorePatterns(absRoot, "")
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return err
			}
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) || ignored(rel, true, patterns) {
				return filepath.SkipDir
			}
			nested, err := s.loadIgnorePatterns(path, rel)
			if err == nil {
				patterns = append(patterns, nested...)
			}
			return nil
		}

		if !d.Type().IsRegular() || ignored(rel, false, patterns) {
			return nil
		}
		kind := DetectKind(filepath.Ext(path))
		if !s.wants(kind) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{Path: rel, FullPath: path, Kind: kind, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}

func (s *Scanner) wants(kind Kind) bool {
	if kind == "" {
		return false
	}
	if len(s.opts.Kinds) == 0 {
		return true
	}
	for _, k := range s.opts.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads the ignore file of dir. Patterns of a nested file
// are anchored at base, the directory's path relative to the root.
func (s *Scanner) loadIgnorePatterns(dir, base string) ([]IgnorePattern, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line).under(base))
	}
	return patterns, sc.Err()
}

// ignored applies patterns in order; a later negation re-includes the path.
func ignored(rel string, isDir bool, patterns []IgnorePattern) bool {
	out := false
	for _, p := range patterns {
		if p.Match(rel, isDir) {
			out = !p.negate
		}
	}
	return out
}

// Programs returns the program files under root.
func Programs(root string) ([]FileInfo, error) {
	opts := DefaultOptions()
	opts.Kinds = []Kind{KindProgram}
	return New(opts).Scan(root)
}
