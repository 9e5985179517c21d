// Package scene captures and replays snapshots of the patched fixtures.
package scene

import (
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
	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Scene is an immutable snapshot of every patched fixture's values.
type Scene struct {
	ID        string
	Name      string
	CreatedAt time.Time
	States    map[string][]byte // fixture id -> values
}

func (s Scene) clone() Scene {
	states := make(map[string][]byte, len(s.States))
	for id, v := range s.States {
		states[id] = append([]byte(nil), v...)
	}
	s.States = states
	return s
}

// ApplyResult lists what happened to each fixture of a scene.
type ApplyResult struct {
	Applied    []string
	Skipped    []string // no longer patched
	Mismatched []string // size differs from the live fixture, common prefix applied
}

type record struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	CreatedAt     *time.Time       `json:"created_at,omitempty"`
	FixtureStates map[string][]int `json:"fixture_states"`
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

// Store keeps scenes in memory and one JSON record per scene in dir.
type Store struct {
	log   *logger.Log
	dir   string
	patch *patch.Manager

	mu     sync.RWMutex
	scenes map[string]Scene
	last   time.Time // newest CreatedAt, keeps capture order strict
}

// NewStore returns an empty store. Call Load to read dir.
func NewStore(dir string, p *patch.Manager, log logger.Logger) *Store {
	return &Store{
		log:    log.With(logger.Fields{"module": "scene"}),
		dir:    dir,
		patch:  p,
		scenes: make(map[string]Scene),
	}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load reads every record in the store directory.
func (s *Store) Load() (LoadReport, error) {
	var report LoadReport

	paths, err := jsonfile.Glob(s.dir)
	if err != nil {
		return report, fmt.Errorf("scene store: %w", err)
	}

	loaded := make(map[string]Scene, len(paths))
	for _, path := range paths {
		sc, err := readRecord(path)
		if err != nil {
			s.log.Warnf("skip scene %s: %v", path, err)
			report.Failed = append(report.Failed, LoadFailure{Path: path, Err: err})
			continue
		}
		loaded[sc.ID] = sc
	}

	s.mu.Lock()
	for id, sc := range loaded {
		s.scenes[id] = sc
		if sc.CreatedAt.After(s.last) {
			s.last = sc.CreatedAt
		}
	}
	s.mu.Unlock()

	report.Loaded = len(loaded)
	s.log.Infof("loaded %d scenes", report.Loaded)
	return report, nil
}

func readRecord(path string) (Scene, error) {
	var rec record
	if err := jsonfile.Read(path, &rec); err != nil {
		return Scene{}, dmxerr.Invalid(path, "record", "%v", err)
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		return Scene{}, dmxerr.Invalid(path, "id", "%q is not a uuid", rec.ID)
	}
	if strings.TrimSpace(rec.Name) == "" {
		return Scene{}, dmxerr.Invalid(path, "name", "missing or empty")
	}

	sc := Scene{
		ID:     rec.ID,
		Name:   rec.Name,
		States: make(map[string][]byte, len(rec.FixtureStates)),
	}
	if rec.CreatedAt != nil {
		sc.CreatedAt = *rec.CreatedAt
	}
	for fid, values := range rec.FixtureStates {
		b := make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return Scene{}, dmxerr.Invalid(path, fmt.Sprintf("fixture_states.%s[%d]", fid, i), "%d must be between 0 and 255", v)
			}
			b[i] = byte(v)
		}
		sc.States[fid] = b
	}
	return sc, nil
}

func writeRecord(path string, sc Scene) error {
	created := sc.CreatedAt
	rec := record{
		ID:            sc.ID,
		Name:          sc.Name,
		CreatedAt:     &created,
		FixtureStates: make(map[string][]int, len(sc.States)),
	}
	for fid, values := range sc.States {
		ints := make([]int, len(values))
		for i, v := range values {
			ints[i] = int(v)
		}
		rec.FixtureStates[fid] = ints
	}
	return jsonfile.Write(path, rec)
}

// Capture snapshots every patched fixture under the patch lock, persists the
// scene and returns it.
func (s *Store) Capture(name string) (Scene, error) {
	if strings.TrimSpace(name) == "" {
		return Scene{}, dmxerr.Invalid("scene", "name", "missing or empty")
	}

	sc := Scene{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.stamp(),
	}
	_ = s.patch.Update(func(tx *patch.Tx) error {
		sc.States = tx.Snapshot()
		return nil
	}, nil)

	if err := writeRecord(s.path(sc.ID), sc); err != nil {
		return Scene{}, fmt.Errorf("save scene %q: %w", name, err)
	}

	s.mu.Lock()
	s.scenes[sc.ID] = sc
	s.mu.Unlock()

	s.log.Infof("captured scene %q (%s) with %d fixtures", sc.Name, sc.ID, len(sc.States))
	return sc.clone(), nil
}

// stamp returns the capture time, strictly after every scene already held.
func (s *Store) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now
}

// Get returns a scene by id.
func (s *Store) Get(id string) (Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scenes[id]
	if !ok {
		return Scene{}, dmxerr.NotFound("scene", id)
	}
	return sc.clone(), nil
}

// Find resolves ref as an id or a case-insensitive name. When names repeat
// the newest scene wins, so capturing a name again replaces what it applies.
func (s *Store) Find(ref string) (Scene, error) {
	if sc, err := s.Get(ref); err == nil {
		return sc, nil
	}

	want := cases.Fold().String(strings.TrimSpace(ref))
	list := s.List()
	for i := len(list) - 1; i >= 0; i-- {
		if cases.Fold().String(list[i].Name) == want {
			return list[i], nil
		}
	}
	return Scene{}, dmxerr.NotFound("scene", ref)
}

// List returns every scene, oldest first.
func (s *Store) List() []Scene {
	s.mu.RLock()
	out := make([]Scene, 0, len(s.scenes))
	for _, sc := range s.scenes {
		out = append(out, sc.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Apply writes the scene back into the patched fixtures.
func (s *Store) Apply(ref string) (ApplyResult, error) {
	return s.ApplyTo(ref, nil)
}

// ApplyTo writes the scene back into the patched fixtures and, when sink is
// not nil, pushes the composed universe in the same critical section.
// Fixtures that are no longer patched are skipped.
func (s *Store) ApplyTo(ref string, sink patch.UniverseSink) (ApplyResult, error) {
	sc, err := s.Find(ref)
	if err != nil {
		return ApplyResult{}, err
	}

	ids := make([]string, 0, len(sc.States))
	for id := range sc.States {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var res ApplyResult
	err = s.patch.Update(func(tx *patch.Tx) error {
		for _, id := range ids {
			found, exact := tx.Replace(id, sc.States[id])
			switch {
			case !found:
				res.Skipped = append(res.Skipped, id)
			case !exact:
				res.Mismatched = append(res.Mismatched, id)
				res.Applied = append(res.Applied, id)
			default:
				res.Applied = append(res.Applied, id)
			}
		}
		return nil
	}, sink)
	if err != nil {
		return ApplyResult{}, err
	}

	if len(res.Mismatched) > 0 {
		s.log.Warnf("scene %q: size mismatch for fixtures %v", sc.Name, res.Mismatched)
	}
	s.log.Debugf("applied scene %q: %d applied, %d skipped", sc.Name, len(res.Applied), len(res.Skipped))
	return res, nil
}

// Delete removes a scene and its record. It reports whether ref matched.
func (s *Store) Delete(ref string) (bool, error) {
	sc, err := s.Find(ref)
	if err != nil {
		return false, nil
	}

	s.mu.Lock()
	delete(s.scenes, sc.ID)
	s.mu.Unlock()

	if err := os.Remove(s.path(sc.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, fmt.Errorf("delete scene %q: %w", sc.Name, err)
	}
	s.log.Infof("deleted scene %q", sc.Name)
	return true, nil
}
