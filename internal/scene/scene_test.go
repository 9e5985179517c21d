package scene

import (
	"os"
	"path/filepath"
	"testing"

	"dmxcore/internal/dmx"
	"dmxcore/internal/dmxerr"
	"dmxcore/internal/fixture"
	"dmxcore/internal/logger"
	"dmxcore/internal/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	catalog *fixture.Catalog
	patch   *patch.Manager
	store   *Store
	dir     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	c := fixture.NewCatalog(t.TempDir(), logger.Discard())
	c.Add(&fixture.Definition{Manufacturer: "Test", Name: "A", TotalChannels: 4})
	c.Add(&fixture.Definition{Manufacturer: "Test", Name: "B", TotalChannels: 3})
	c.Add(&fixture.Definition{Manufacturer: "Test", Name: "Wide", TotalChannels: 6})
	p := patch.NewManager(c, logger.Discard())
	dir := t.TempDir()
	return &env{catalog: c, patch: p, store: NewStore(dir, p, logger.Discard()), dir: dir}
}

type sink struct{ last dmx.Universe }

func (s *sink) SetUniverse(u dmx.Universe) { s.last = u }

func TestCaptureApplyRoundTrip(t *testing.T) {
	e := newEnv(t)
	a, err := e.patch.Patch("A", 1, "")
	require.NoError(t, err)
	b, err := e.patch.Patch("B", 5, "")
	require.NoError(t, err)

	require.NoError(t, e.patch.SetValues(a.ID, []int{10, 20, 30, 40}))
	require.NoError(t, e.patch.SetValues(b.ID, []int{1, 2, 3}))

	sc, err := e.store.Capture("Warm Wash")
	require.NoError(t, err)
	assert.Len(t, sc.States, 2)
	assert.FileExists(t, filepath.Join(e.dir, sc.ID+".json"))

	require.NoError(t, e.patch.SetValues(a.ID, []int{0, 0, 0, 0}))
	require.NoError(t, e.patch.SetValues(b.ID, []int{9, 9, 9}))

	s := &sink{}
	res, err := e.store.ApplyTo("Warm Wash", s)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, res.Applied)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Mismatched)

	values, _ := e.patch.Values(a.ID)
	assert.Equal(t, []byte{10, 20, 30, 40}, values)
	values, _ = e.patch.Values(b.ID)
	assert.Equal(t, []byte{1, 2, 3}, values)
	assert.Equal(t, byte(40), s.last.Channel(4))
	assert.Equal(t, byte(3), s.last.Channel(7))
}

func TestCaptureIsDeepCopy(t *testing.T) {
	e := newEnv(t)
	a, err := e.patch.Patch("A", 1, "")
	require.NoError(t, err)
	require.NoError(t, e.patch.SetValue(a.ID, 0, 50))

	sc, err := e.store.Capture("Copy")
	require.NoError(t, err)
	sc.States[a.ID][0] = 99
	require.NoError(t, e.patch.SetValue(a.ID, 0, 77))

	stored, err := e.store.Get(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, byte(50), stored.States[a.ID][0])
}

func TestApplySkipsAndMismatches(t *testing.T) {
	e := newEnv(t)
	a, err := e.patch.Patch("A", 1, "")
	require.NoError(t, err)
	b, err := e.patch.Patch("B", 10, "")
	require.NoError(t, err)
	require.NoError(t, e.patch.SetValues(a.ID, []int{1, 2, 3, 4}))

	sc, err := e.store.Capture("Look")
	require.NoError(t, err)

	require.True(t, e.patch.Unpatch(b.ID))

	res, err := e.store.Apply(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, res.Applied)
	assert.Equal(t, []string{b.ID}, res.Skipped)

	// hand-edited record with a short array for A
	path := filepath.Join(e.dir, "short.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "id": "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
  "name": "Short",
  "fixture_states": {"`+a.ID+`": [200, 201]}
}`), 0o644))
	_, err = e.store.Load()
	require.NoError(t, err)

	res, err = e.store.Apply("short")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, res.Mismatched)
	values, _ := e.patch.Values(a.ID)
	assert.Equal(t, []byte{200, 201, 3, 4}, values)
}

func TestFindListDelete(t *testing.T) {
	e := newEnv(t)
	first, err := e.store.Capture("Blue")
	require.NoError(t, err)
	second, err := e.store.Capture("Red")
	require.NoError(t, err)

	got, err := e.store.Find("BLUE")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	got, err = e.store.Find(second.ID)
	require.NoError(t, err)
	assert.Equal(t, "Red", got.Name)

	_, err = e.store.Find("green")
	assert.ErrorIs(t, err, dmxerr.ErrNotFound)
	_, err = e.store.Apply("green")
	assert.ErrorIs(t, err, dmxerr.ErrNotFound)

	assert.Len(t, e.store.List(), 2)

	ok, err := e.store.Delete("blue")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, filepath.Join(e.dir, first.ID+".json"))
	ok, err = e.store.Delete("blue")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, e.store.List(), 1)

	_, err = e.store.Capture("  ")
	assert.ErrorIs(t, err, dmxerr.ErrValidation)
}

func TestRecaptureResolvesToNewest(t *testing.T) {
	e := newEnv(t)
	a, err := e.patch.Patch("A", 1, "")
	require.NoError(t, err)

	var latest Scene
	for i := 1; i <= 20; i++ {
		require.NoError(t, e.patch.SetValues(a.ID, []int{i, i, i, i}))
		latest, err = e.store.Capture("Look")
		require.NoError(t, err)

		got, err := e.store.Find("look")
		require.NoError(t, err)
		require.Equal(t, latest.ID, got.ID, "capture %d", i)
	}

	list := e.store.List()
	require.Len(t, list, 20)
	assert.Equal(t, latest.ID, list[len(list)-1].ID, "list is oldest first")

	require.NoError(t, e.patch.SetValues(a.ID, []int{0, 0, 0, 0}))
	_, err = e.store.Apply("Look")
	require.NoError(t, err)
	values, _ := e.patch.Values(a.ID)
	assert.Equal(t, []byte{20, 20, 20, 20}, values)

	reloaded := NewStore(e.dir, e.patch, logger.Discard())
	_, err = reloaded.Load()
	require.NoError(t, err)
	got, err := reloaded.Find("Look")
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got.ID, "order survives a reload")

	next, err := reloaded.Capture("Look")
	require.NoError(t, err)
	assert.True(t, next.CreatedAt.After(latest.CreatedAt))
}

func TestLoadIsolatesBadRecords(t *testing.T) {
	e := newEnv(t)
	a, err := e.patch.Patch("Wide", 1, "")
	require.NoError(t, err)
	require.NoError(t, e.patch.SetValues(a.ID, []int{6, 5, 4, 3, 2, 1}))
	sc, err := e.store.Capture("Keep")
	require.NoError(t, err)

	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(e.dir, name), []byte(body), 0o644))
	}
	write("broken.json", `{"id":`)
	write("noid.json", `{"id": "x", "name": "n", "fixture_states": {}}`)
	write("range.json", `{"id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "name": "n", "fixture_states": {"f": [300]}}`)

	reloaded := NewStore(e.dir, e.patch, logger.Discard())
	report, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)
	assert.Len(t, report.Failed, 3)
	for _, f := range report.Failed {
		assert.ErrorIs(t, f.Err, dmxerr.ErrValidation, f.Path)
	}

	got, err := reloaded.Get(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep", got.Name)
	assert.Equal(t, []byte{6, 5, 4, 3, 2, 1}, got.States[a.ID])
	assert.True(t, sc.CreatedAt.Equal(got.CreatedAt), "created_at keeps full resolution")
}
