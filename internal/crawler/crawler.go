package crawler

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"semq/internal/extractor"
)

// Package is the set of files of one package in one directory.
type Package struct {
	Dir   string
	Name  string
	Files []string
}

// Crawler scans a directory for Go source files.
type Crawler struct {
	extractor *extractor.Extractor
	ignored   []string
	log       *zap.Logger
}

// NewCrawler creates a new crawler instance. log may be nil.
func NewCrawler(ext *extractor.Extractor, log *zap.Logger) *Crawler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Crawler{
		extractor: ext,
		ignored:   []string{"vendor", "node_modules", "testdata"},
		log:       log,
	}
}

func (c *Crawler) skipDir(root, path string, d fs.DirEntry) bool {
	if path == root {
		return false
	}
	name := d.Name()
	// The go tool ignores these as well.
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	for _, ign := range c.ignored {
		if name == ign {
			return true
		}
	}
	return false
}

func isSource(name string) bool {
	return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
}

// ScanFiles walks root and calls onFile for every non-test Go source file.
func (c *Crawler) ScanFiles(root string, onFile func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if c.skipDir(root, path, d) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSource(d.Name()) {
			return nil
		}
		return onFile(path)
	})
}

// ScanProject walks the root directory and streams the declarations of every file.
// Files that fail to parse are logged and skipped.
func (c *Crawler) ScanProject(root string, onUnit func(*extractor.CodeUnit)) error {
	return c.ScanFiles(root, func(path string) error {
		units, err := c.extractor.ExtractFromFile(path)
		if err != nil {
			c.log.Warn("skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		for _, unit := range units {
			onUnit(unit)
		}
		return nil
	})
}

// Packages groups the source files under root by directory and package clause.
// The result is sorted by directory, then package name.
func (c *Crawler) Packages(root string) ([]Package, error) {
	byKey := make(map[[2]string]*Package)
	err := c.ScanFiles(root, func(path string) error {
		name, err := c.extractor.PackageName(path)
		if err != nil {
			c.log.Warn("skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		dir := filepath.Dir(path)
		key := [2]string{dir, name}
		pkg, ok := byKey[key]
		if !ok {
			pkg = &Package{Dir: dir, Name: name}
			byKey[key] = pkg
		}
		pkg.Files = append(pkg.Files, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", root)
	}

	out := make([]Package, 0, len(byKey))
	for _, pkg := range byKey {
		sort.Strings(pkg.Files)
		out = append(out, *pkg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dir != out[j].Dir {
			return out[i].Dir < out[j].Dir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// PackageOf returns the package that file belongs to, reading only its directory.
func (c *Crawler) PackageOf(file string) (Package, error) {
	file = filepath.Clean(file)
	name, err := c.extractor.PackageName(file)
	if err != nil {
		return Package{}, err
	}
	dir := filepath.Dir(file)
	matches, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return Package{}, errors.Wrapf(err, "list %s", dir)
	}

	pkg := Package{Dir: dir, Name: name}
	for _, m := range matches {
		if !isSource(filepath.Base(m)) && m != file {
			continue
		}
		other, err := c.extractor.PackageName(m)
		if err != nil || other != name {
			continue
		}
		pkg.Files = append(pkg.Files, m)
	}
	sort.Strings(pkg.Files)
	return pkg, nil
}
