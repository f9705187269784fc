// Package profile prunes a browser profile directory down to the entries
// required to restore a session. Everything outside the allow-list is
// deleted before the directory is archived, keeping snapshots small and free
// of caches, GPU state and other machine-local noise.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// RequiredPathSet is the compiled allow-list of profile entries that must
// survive pruning. Patterns are slash-separated paths relative to the
// profile root and may use glob syntax.
type RequiredPathSet struct {
	globs []glob.Glob
}

// NewRequiredPathSet compiles the given patterns. Each pattern is compiled
// together with all of its ancestor segment prefixes, so the directories a
// required entry lives in are themselves required, glob metacharacters
// included. Invalid glob syntax fails construction.
func NewRequiredPathSet(patterns []string) (*RequiredPathSet, error) {
	set := &RequiredPathSet{}
	for _, pattern := range patterns {
		segments := strings.Split(pattern, "/")
		for i := 1; i <= len(segments); i++ {
			prefix := strings.Join(segments[:i], "/")
			g, err := glob.Compile(prefix, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid required path pattern %q: %w", pattern, err)
			}
			set.globs = append(set.globs, g)
		}
	}
	return set, nil
}

// Match reports whether the relative path rel is required. A path is
// required when a pattern matches it, or when an ancestor prefix of a
// pattern matches it (removing the ancestor would remove the required entry
// with it).
func (s *RequiredPathSet) Match(rel string) bool {
	for _, g := range s.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Pruner removes everything outside a RequiredPathSet from a profile
// directory. Filtering is applied to the immediate children of the profile
// root and, one level deep, to the children of a single configured
// subdirectory. Chromium splits session-critical state between the profile
// root and its "Default" profile subdirectory, which is what the two levels
// correspond to.
type Pruner struct {
	required *RequiredPathSet
	subdir   string
}

// NewPruner creates a Pruner with the given allow-list and the subdirectory
// that receives second-level filtering.
func NewPruner(required *RequiredPathSet, subdir string) *Pruner {
	return &Pruner{required: required, subdir: subdir}
}

// Prune applies the allow-list to profileDir. A missing profile directory or
// missing subdirectory is not an error. A removal that cannot complete stops
// pruning and returns the wrapped failure; entries removed before that point
// stay removed.
func (p *Pruner) Prune(profileDir string) error {
	if err := p.pruneLevel(profileDir, ""); err != nil {
		return err
	}
	return p.pruneLevel(filepath.Join(profileDir, p.subdir), p.subdir)
}

// pruneLevel removes the children of dir whose path relative to the profile
// root (prefix + name) is not required.
func (p *Pruner) pruneLevel(dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	for _, entry := range entries {
		rel := entry.Name()
		if prefix != "" {
			rel = prefix + "/" + entry.Name()
		}
		if p.required.Match(rel) {
			continue
		}
		target := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to remove %s: %w", target, err)
		}
	}
	return nil
}
