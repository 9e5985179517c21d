package fixture

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dmxcore/internal/dmxerr"
	"dmxcore/internal/logger"
	"golang.org/x/text/cases"
)

// LoadFailure is one record that could not be loaded.
type LoadFailure struct {
	Path string
	Err  error
}

// LoadReport summarizes a catalog scan.
type LoadReport struct {
	Loaded int
	Failed []LoadFailure
}

// Catalog holds the known fixture definitions.
type Catalog struct {
	log  *logger.Log
	root string

	mu   sync.RWMutex
	defs map[string]*Definition // keyed by source
}

// NewCatalog returns an empty catalog rooted at root.
func NewCatalog(root string, log logger.Logger) *Catalog {
	return &Catalog{
		log:  log.With(logger.Fields{"module": "fixture"}),
		root: root,
		defs: make(map[string]*Definition),
	}
}

// Root returns the directory scanned by Load.
func (c *Catalog) Root() string { return c.root }

// Load scans the root directory tree. Files whose name begins with "_" are
// skipped. A bad record is logged and reported; the rest still load.
func (c *Catalog) Load() (LoadReport, error) {
	var report LoadReport

	if _, err := os.Stat(c.root); err != nil {
		if os.IsNotExist(err) {
			c.log.Warnf("fixture directory %s does not exist", c.root)
			return report, nil
		}
		return report, fmt.Errorf("fixture catalog: %w", err)
	}

	loaded := make(map[string]*Definition)
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			report.Failed = append(report.Failed, LoadFailure{Path: path, Err: err})
			return nil
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), "_") || !Supported(path) {
			return nil
		}
		def, err := ParseFile(path)
		if err != nil {
			c.log.Warnf("skip fixture %s: %v", path, err)
			report.Failed = append(report.Failed, LoadFailure{Path: path, Err: err})
			return nil
		}
		loaded[path] = def
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("fixture catalog: %w", err)
	}

	c.mu.Lock()
	for k, def := range loaded {
		c.defs[k] = def
	}
	c.mu.Unlock()

	report.Loaded = len(loaded)
	c.log.Infof("loaded %d fixture definitions (%d failed)", report.Loaded, len(report.Failed))
	return report, nil
}

// Add registers a definition that did not come from the catalog directory.
// An empty Source is replaced by the composite key.
func (c *Catalog) Add(def *Definition) {
	if def.Source == "" {
		def.Source = def.Key()
	}
	c.mu.Lock()
	c.defs[def.Source] = def
	c.mu.Unlock()
}

// List returns all definitions ordered by manufacturer then name.
func (c *Catalog) List() []*Definition {
	c.mu.RLock()
	defs := make([]*Definition, 0, len(c.defs))
	for _, def := range c.defs {
		defs = append(defs, def)
	}
	c.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool {
		mi, mj := fold(defs[i].Manufacturer), fold(defs[j].Manufacturer)
		if mi != mj {
			return mi < mj
		}
		ni, nj := fold(defs[i].Name), fold(defs[j].Name)
		if ni != nj {
			return ni < nj
		}
		return defs[i].Source < defs[j].Source
	})
	return defs
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// Lookup resolves id as a source path, a path relative to the root, a
// definition name or a "manufacturer - name" key. Names compare with Unicode
// case folding.
func (c *Catalog) Lookup(id string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if def, ok := c.defs[id]; ok {
		return def, nil
	}
	if def, ok := c.defs[filepath.Join(c.root, id)]; ok {
		return def, nil
	}

	want := fold(strings.TrimSpace(id))
	if def := c.first(func(d *Definition) bool { return fold(d.Name) == want }); def != nil {
		return def, nil
	}
	if def := c.first(func(d *Definition) bool { return fold(d.Key()) == want }); def != nil {
		return def, nil
	}
	return nil, dmxerr.NotFound("fixture definition", id)
}

// first returns the match with the smallest source so lookups are stable
// when names repeat across files.
func (c *Catalog) first(match func(*Definition) bool) *Definition {
	var best *Definition
	for _, def := range c.defs {
		if match(def) && (best == nil || def.Source < best.Source) {
			best = def
		}
	}
	return best
}

// fold returns the case-folded form of s. A Caser keeps state, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
