package profile

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Discoverer walks a repository and builds test profiles
type Discoverer struct {
	root    string
	include []string
	exclude []string
	imports *ImportScanner
}

// skipDirs are directory names never descended into during discovery
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
}

// NewDiscoverer creates a discoverer rooted at the given repository path
func NewDiscoverer(root string, include, exclude []string) *Discoverer {
	return &Discoverer{
		root:    root,
		include: include,
		exclude: exclude,
		imports: NewImportScanner(root),
	}
}

// Discover walks the tree and returns a profile for every test file
// matching the requested category ("all" or empty matches everything).
func (d *Discoverer) Discover(ctx context.Context, category string) ([]*Profile, error) {
	var profiles []*Profile

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if skipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsTestFile(entry.Name()) {
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			rel = path
		}
		if d.excluded(rel) {
			return nil
		}

		p := d.buildProfile(ctx, path, rel)
		if category != "" && category != "all" && string(p.Category) != category {
			return nil
		}
		profiles = append(profiles, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", d.root, err)
	}

	log.Info().
		Int("count", len(profiles)).
		Str("root", d.root).
		Str("category", category).
		Msg("discovered tests")

	return profiles, nil
}

// buildProfile constructs a profile with heuristic scheduling inputs.
// Historical fields stay at their zero-risk defaults here.
func (d *Discoverer) buildProfile(ctx context.Context, path, rel string) *Profile {
	name := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	name = strings.ReplaceAll(name, "/", ".")

	category := CategoryFromPath(rel)

	deps, err := d.imports.Scan(ctx, path)
	if err != nil {
		log.Debug().Err(err).Str("path", rel).Msg("import scan failed, profile has no dependencies")
	}

	return &Profile{
		Name:         name,
		Path:         path,
		Category:     category,
		Priority:     PriorityFromPath(rel, name),
		AvgDuration:  estimatedDuration(category),
		Dependencies: deps,
	}
}

func (d *Discoverer) excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range d.exclude {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if strings.Contains(rel, strings.Trim(pattern, "*/")) && pattern != "" {
			return true
		}
	}
	if len(d.include) == 0 {
		return false
	}
	for _, pattern := range d.include {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return false
		}
	}
	return true
}

// IsTestFile reports whether a filename looks like a test file in any
// of the supported ecosystems (pytest, Jest, go test).
func IsTestFile(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, "_test.go"):
		return true
	case strings.HasPrefix(lower, "test_") && strings.HasSuffix(lower, ".py"):
		return true
	case strings.HasSuffix(lower, "_test.py"):
		return true
	case strings.HasSuffix(lower, ".test.js"), strings.HasSuffix(lower, ".test.ts"),
		strings.HasSuffix(lower, ".spec.js"), strings.HasSuffix(lower, ".spec.ts"):
		return true
	}
	return false
}

// Exists is a small helper used by callers validating discovery roots
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
