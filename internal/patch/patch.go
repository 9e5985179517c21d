// Package patch places fixture instances on the universe and composes their
// values into one frame.
package patch

import (
	"sort"
	"sync"

	"dmxcore/internal/dmx"
	"dmxcore/internal/dmxerr"
	"dmxcore/internal/fixture"
	"dmxcore/internal/logger"
	"github.com/google/uuid"
)

// DefinitionSource resolves a definition reference.
type DefinitionSource interface {
	Lookup(id string) (*fixture.Definition, error)
}

// UniverseSink adopts a complete universe. *dmx.Engine is one.
type UniverseSink interface {
	SetUniverse(u dmx.Universe)
}

// Fixture is a read-only view of a patched instance.
type Fixture struct {
	ID           string
	Name         string
	Definition   *fixture.Definition
	StartAddress int
	Values       []byte
}

// EndAddress is the last address the instance occupies.
func (f Fixture) EndAddress() int {
	return f.StartAddress + f.Definition.TotalChannels - 1
}

type instance struct {
	id     string
	name   string
	def    *fixture.Definition
	start  int
	values []byte
}

func (in *instance) end() int { return in.start + in.def.TotalChannels - 1 }

func (in *instance) view() Fixture {
	return Fixture{
		ID:           in.id,
		Name:         in.name,
		Definition:   in.def,
		StartAddress: in.start,
		Values:       append([]byte(nil), in.values...),
	}
}

// Manager owns the patched instances. One mutex covers every read, write and
// compose, and is held while a composed universe is handed to a sink.
type Manager struct {
	log     *logger.Log
	catalog DefinitionSource

	mu        sync.Mutex
	instances map[string]*instance
}

// NewManager returns an empty patch.
func NewManager(catalog DefinitionSource, log logger.Logger) *Manager {
	return &Manager{
		log:       log.With(logger.Fields{"module": "patch"}),
		catalog:   catalog,
		instances: make(map[string]*instance),
	}
}

// Patch places the definition named by ref at start. An empty name takes the
// definition name.
func (m *Manager) Patch(ref string, start int, name string) (Fixture, error) {
	def, err := m.catalog.Lookup(ref)
	if err != nil {
		return Fixture{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	in, err := m.place(uuid.NewString(), name, def, start, def.Defaults())
	if err != nil {
		return Fixture{}, err
	}
	m.log.Infof("patched %q (%s) at %d-%d", in.name, def.Key(), in.start, in.end())
	return in.view(), nil
}

// place validates the range and inserts a new instance. Callers hold mu.
func (m *Manager) place(id, name string, def *fixture.Definition, start int, values []byte) (*instance, error) {
	end := start + def.TotalChannels - 1
	if err := dmxerr.CheckRange("start address", start, 1, dmx.Channels); err != nil {
		return nil, err
	}
	if err := dmxerr.CheckRange("end address", end, 1, dmx.Channels); err != nil {
		return nil, err
	}

	for _, other := range m.sorted() {
		if start <= other.end() && end >= other.start {
			return nil, &dmxerr.AddressConflictError{
				Start:         start,
				End:           end,
				ConflictID:    other.id,
				ConflictName:  other.name,
				ConflictStart: other.start,
				ConflictEnd:   other.end(),
			}
		}
	}

	if name == "" {
		name = def.Name
	}
	in := &instance{id: id, name: name, def: def, start: start, values: values}
	m.instances[id] = in
	return in, nil
}

// Unpatch removes an instance. It reports whether the id was patched.
func (m *Manager) Unpatch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.instances[id]
	if !ok {
		return false
	}
	delete(m.instances, id)
	m.log.Infof("unpatched %q at %d-%d", in.name, in.start, in.end())
	return true
}

// Get returns one instance.
func (m *Manager) Get(id string) (Fixture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.instances[id]
	if !ok {
		return Fixture{}, dmxerr.NotFound("fixture", id)
	}
	return in.view(), nil
}

// List returns every instance ordered by start address.
func (m *Manager) List() []Fixture {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := m.sorted()
	out := make([]Fixture, len(sorted))
	for i, in := range sorted {
		out[i] = in.view()
	}
	return out
}

// Len returns the number of patched instances.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

func (m *Manager) sorted() []*instance {
	out := make([]*instance, 0, len(m.instances))
	for _, in := range m.instances {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// SetValue sets one channel of an instance by offset.
func (m *Manager) SetValue(id string, offset, value int) error {
	return m.Update(func(tx *Tx) error { return tx.SetValue(id, offset, value) }, nil)
}

// SetValues writes values from offset 0. The call is rejected as a whole when
// any value or the length is out of range.
func (m *Manager) SetValues(id string, values []int) error {
	return m.Update(func(tx *Tx) error { return tx.SetValues(id, values) }, nil)
}

// Values returns a copy of an instance's values.
func (m *Manager) Values(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.instances[id]
	if !ok {
		return nil, dmxerr.NotFound("fixture", id)
	}
	return append([]byte(nil), in.values...), nil
}

// Compose builds the universe from the current instances. Unpatched
// addresses are zero.
func (m *Manager) Compose() dmx.Universe {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compose()
}

func (m *Manager) compose() dmx.Universe {
	var u dmx.Universe
	for _, in := range m.instances {
		copy(u[in.start-1:], in.values)
	}
	return u
}

// ApplyTo composes and hands the universe to sink without releasing the
// patch lock in between.
func (m *Manager) ApplyTo(sink UniverseSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sink.SetUniverse(m.compose())
}

// Update runs fn as one transaction. When fn succeeds and sink is not nil
// the result is composed and pushed before the lock is released.
func (m *Manager) Update(fn func(tx *Tx) error, sink UniverseSink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := fn(&Tx{m: m}); err != nil {
		return err
	}
	if sink != nil {
		sink.SetUniverse(m.compose())
	}
	return nil
}

// Tx is the view of the patch inside Update. It must not escape fn.
type Tx struct {
	m *Manager
}

// Snapshot copies the values of every instance.
func (tx *Tx) Snapshot() map[string][]byte {
	out := make(map[string][]byte, len(tx.m.instances))
	for id, in := range tx.m.instances {
		out[id] = append([]byte(nil), in.values...)
	}
	return out
}

// Replace overwrites an instance's values. found is false when id is not
// patched. exact is false when len(values) differs from the instance size;
// then only the common prefix is copied.
func (tx *Tx) Replace(id string, values []byte) (found, exact bool) {
	in, ok := tx.m.instances[id]
	if !ok {
		return false, false
	}
	copy(in.values, values)
	return true, len(values) == len(in.values)
}

// SetValue sets one channel of an instance by offset.
func (tx *Tx) SetValue(id string, offset, value int) error {
	in, ok := tx.m.instances[id]
	if !ok {
		return dmxerr.NotFound("fixture", id)
	}
	if err := dmxerr.CheckRange("offset", offset, 0, len(in.values)-1); err != nil {
		return err
	}
	if err := dmxerr.CheckRange("value", value, 0, 255); err != nil {
		return err
	}
	in.values[offset] = byte(value)
	return nil
}

// SetValues writes values from offset 0, all or nothing.
func (tx *Tx) SetValues(id string, values []int) error {
	in, ok := tx.m.instances[id]
	if !ok {
		return dmxerr.NotFound("fixture", id)
	}
	if err := dmxerr.CheckRange("value count", len(values), 0, len(in.values)); err != nil {
		return err
	}
	for _, v := range values {
		if err := dmxerr.CheckRange("value", v, 0, 255); err != nil {
			return err
		}
	}
	for i, v := range values {
		in.values[i] = byte(v)
	}
	return nil
}
