package scanner

import (
	"path"
	"strings"
)

// IgnorePattern is one gitignore-style line. A pattern containing a slash
// is matched against the whole relative path, otherwise against each path
// element. "**" is not supported.
type IgnorePattern struct {
	glob     string
	negate   bool
	dirOnly  bool
	anchored bool
	base     string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(line string) IgnorePattern {
	var p IgnorePattern
	if rest, ok := strings.CutPrefix(line, "!"); ok {
		p.negate = true
		line = rest
	}
	if rest, ok := strings.CutSuffix(line, "/"); ok {
		p.dirOnly = true
		line = rest
	}
	if rest, ok := strings.CutPrefix(line, "/"); ok {
		p.anchored = true
		line = rest
	}
	if strings.Contains(line, "/") {
		p.anchored = true
	}
	p.glob = line
	return p
}

func (p IgnorePattern) under(base string) IgnorePattern {
	p.base = base
	return p
}

// Match reports whether rel, or one of the directories containing it,
// matches the pattern.
func (p IgnorePattern) Match(rel string, isDir bool) bool {
	if p.base != "" {
		rest, ok := strings.CutPrefix(rel, p.base+"/")
		if !ok {
			return false
		}
		rel = rest
	}

	parts := strings.Split(rel, "/")
	for i := 1; i <= len(parts); i++ {
		dir := i < len(parts) || isDir
		if p.dirOnly && !dir {
			continue
		}
		subject := parts[i-1]
		if p.anchored {
			subject = strings.Join(parts[:i], "/")
		}
		if ok, _ := path.Match(p.glob, subject); ok {
			return true
		}
	}
	return false
}
