package chaser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"dmxcore/internal/dmxerr"
	"dmxcore/internal/jsonfile"
	"dmxcore/internal/logger"
	"dmxcore/internal/patch"
	"dmxcore/internal/scene"
	"dmxcore/internal/task"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Scenes is what the manager needs from the scene store.
type Scenes interface {
	Find(ref string) (scene.Scene, error)
	ApplyTo(ref string, sink patch.UniverseSink) (scene.ApplyResult, error)
}

type record struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	SceneIDs []string `json:"scene_ids"`
	Step     string   `json:"step"`
}

// LoadFailure is one record that could not be loaded.
type LoadFailure struct {
	Path string
	Err  error
}

// LoadReport summarizes Load.
type LoadReport struct {
	Loaded int
	Failed []LoadFailure
}

// Manager owns the chasers and their records.
type Manager struct {
	log         *logger.Log
	dir         string
	scenes      Scenes
	sink        patch.UniverseSink
	stopTimeout time.Duration

	mu      sync.RWMutex
	chasers map[string]*Chaser
}

// NewManager returns an empty manager. Each step is applied through scenes
// and pushed to sink.
func NewManager(dir string, scenes Scenes, sink patch.UniverseSink, stopTimeout time.Duration, log logger.Logger) *Manager {
	return &Manager{
		log:         log.With(logger.Fields{"module": "chaser"}),
		dir:         dir,
		scenes:      scenes,
		sink:        sink,
		stopTimeout: stopTimeout,
		chasers:     make(map[string]*Chaser),
	}
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// Create resolves sceneRefs, persists and returns a new idle chaser.
func (m *Manager) Create(name string, sceneRefs []string, step time.Duration) (Info, error) {
	if strings.TrimSpace(name) == "" {
		return Info{}, dmxerr.Invalid("chaser", "name", "missing or empty")
	}
	if step <= 0 {
		return Info{}, dmxerr.Invalid("chaser", "step", "%v must be positive", step)
	}

	ids := make([]string, 0, len(sceneRefs))
	for _, ref := range sceneRefs {
		sc, err := m.scenes.Find(ref)
		if err != nil {
			return Info{}, err
		}
		ids = append(ids, sc.ID)
	}

	c := newChaser(uuid.NewString(), name, ids, step)
	if err := m.save(c); err != nil {
		return Info{}, err
	}

	m.mu.Lock()
	m.chasers[c.id] = c
	m.mu.Unlock()

	m.log.Infof("created chaser %q with %d scenes every %v", name, len(ids), step)
	return c.Info(), nil
}

func (m *Manager) save(c *Chaser) error {
	rec := record{ID: c.id, Name: c.name, SceneIDs: c.sceneIDs, Step: c.step.String()}
	if err := jsonfile.Write(m.path(c.id), rec); err != nil {
		return fmt.Errorf("save chaser %q: %w", c.name, err)
	}
	return nil
}

// Load reads every chaser record in the directory. Loaded chasers are idle.
func (m *Manager) Load() (LoadReport, error) {
	var report LoadReport

	paths, err := jsonfile.Glob(m.dir)
	if err != nil {
		return report, fmt.Errorf("chaser store: %w", err)
	}

	for _, path := range paths {
		c, err := readRecord(path)
		if err != nil {
			m.log.Warnf("skip chaser %s: %v", path, err)
			report.Failed = append(report.Failed, LoadFailure{Path: path, Err: err})
			continue
		}
		m.mu.Lock()
		if _, exists := m.chasers[c.id]; !exists {
			m.chasers[c.id] = c
			report.Loaded++
		}
		m.mu.Unlock()
	}
	m.log.Infof("loaded %d chasers", report.Loaded)
	return report, nil
}

func readRecord(path string) (*Chaser, error) {
	var rec record
	if err := jsonfile.Read(path, &rec); err != nil {
		return nil, dmxerr.Invalid(path, "record", "%v", err)
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		return nil, dmxerr.Invalid(path, "id", "%q is not a uuid", rec.ID)
	}
	if strings.TrimSpace(rec.Name) == "" {
		return nil, dmxerr.Invalid(path, "name", "missing or empty")
	}
	step, err := time.ParseDuration(rec.Step)
	if err != nil || step <= 0 {
		return nil, dmxerr.Invalid(path, "step", "%q is not a positive duration", rec.Step)
	}
	return newChaser(rec.ID, rec.Name, rec.SceneIDs, step), nil
}

// Get returns a chaser by id.
func (m *Manager) Get(id string) (Info, error) {
	c, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return c.Info(), nil
}

// Find resolves ref as an id or a case-insensitive name.
func (m *Manager) Find(ref string) (Info, error) {
	c, err := m.find(ref)
	if err != nil {
		return Info{}, err
	}
	return c.Info(), nil
}

func (m *Manager) lookup(id string) (*Chaser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chasers[id]
	if !ok {
		return nil, dmxerr.NotFound("chaser", id)
	}
	return c, nil
}

func (m *Manager) find(ref string) (*Chaser, error) {
	if c, err := m.lookup(ref); err == nil {
		return c, nil
	}
	want := cases.Fold().String(strings.TrimSpace(ref))
	for _, c := range m.sorted() {
		if cases.Fold().String(c.name) == want {
			return c, nil
		}
	}
	return nil, dmxerr.NotFound("chaser", ref)
}

func (m *Manager) sorted() []*Chaser {
	m.mu.RLock()
	out := make([]*Chaser, 0, len(m.chasers))
	for _, c := range m.chasers {
		out = append(out, c)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].id < out[j].id
	})
	return out
}

// List returns every chaser ordered by name.
func (m *Manager) List() []Info {
	sorted := m.sorted()
	out := make([]Info, len(sorted))
	for i, c := range sorted {
		out[i] = c.Info()
	}
	return out
}

// Start runs the chaser until Stop or ctx is done. Starting a running
// chaser does nothing.
func (m *Manager) Start(ctx context.Context, ref string) (Info, error) {
	c, err := m.find(ref)
	if err != nil {
		return Info{}, err
	}
	if c.start(ctx, func(sceneID string) { m.step(c, sceneID) }) {
		m.log.Infof("chaser %q started", c.name)
	}
	return c.Info(), nil
}

func (m *Manager) step(c *Chaser, sceneID string) {
	if _, err := m.scenes.ApplyTo(sceneID, m.sink); err != nil {
		if errors.Is(err, dmxerr.ErrNotFound) {
			m.log.Debugf("chaser %q: scene %s gone, step skipped", c.name, sceneID)
			return
		}
		m.log.Warnf("chaser %q: %v", c.name, err)
	}
}

// Stop halts a chaser. Stopping an idle chaser does nothing. A join timeout
// is returned as task.ErrJoinTimeout; the chaser is idle either way.
func (m *Manager) Stop(ref string) (Info, error) {
	c, err := m.find(ref)
	if err != nil {
		return Info{}, err
	}
	if err := c.stop(m.stopTimeout); err != nil {
		m.log.Warnf("chaser %q did not stop within %v", c.name, m.stopTimeout)
		return c.Info(), err
	}
	return c.Info(), nil
}

// StopAll halts every chaser.
func (m *Manager) StopAll() {
	for _, c := range m.sorted() {
		if err := c.stop(m.stopTimeout); errors.Is(err, task.ErrJoinTimeout) {
			m.log.Warnf("chaser %q did not stop within %v", c.name, m.stopTimeout)
		}
	}
}

// Delete stops and removes a chaser and its record. It reports whether ref
// matched.
func (m *Manager) Delete(ref string) (bool, error) {
	c, err := m.find(ref)
	if err != nil {
		return false, nil
	}
	_ = c.stop(m.stopTimeout)

	m.mu.Lock()
	delete(m.chasers, c.id)
	m.mu.Unlock()

	if err := os.Remove(m.path(c.id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, fmt.Errorf("delete chaser %q: %w", c.name, err)
	}
	m.log.Infof("deleted chaser %q", c.name)
	return true, nil
}
