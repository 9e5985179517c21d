package control

import (
	"time"

	"dmxcore/internal/chaser"
	"dmxcore/internal/dmx"
	"dmxcore/internal/dmxerr"
	"dmxcore/internal/fixture"
	"dmxcore/internal/patch"
	"dmxcore/internal/scene"
)

// FixtureValue sets one channel of a patched fixture by offset.
type FixtureValue struct {
	Offset int
	Value  int
}

// Definitions lists the catalog.
func (s *Service) Definitions() []*fixture.Definition {
	return s.Catalog.List()
}

// PatchFixture places a definition and pushes the new patch to the output.
func (s *Service) PatchFixture(ref string, start int, name string) (patch.Fixture, error) {
	f, err := s.Patch.Patch(ref, start, name)
	if err != nil {
		return patch.Fixture{}, err
	}
	s.Patch.ApplyTo(s.Engine)
	s.persistPatch()
	return f, nil
}

// UnpatchFixture removes an instance. It reports whether id was patched.
func (s *Service) UnpatchFixture(id string) bool {
	if !s.Patch.Unpatch(id) {
		return false
	}
	s.Patch.ApplyTo(s.Engine)
	s.persistPatch()
	return true
}

func (s *Service) persistPatch() {
	if err := s.savePatch(); err != nil {
		s.log.Warnf("%v", err)
	}
}

// Fixtures lists the patch by start address.
func (s *Service) Fixtures() []patch.Fixture {
	return s.Patch.List()
}

// SetFixtureValues writes channels of one fixture and pushes the patch in
// the same critical section. All values are checked before any is written.
func (s *Service) SetFixtureValues(id string, values []FixtureValue) error {
	return s.Patch.Update(func(tx *patch.Tx) error {
		current, ok := tx.Snapshot()[id]
		if !ok {
			return dmxerr.NotFound("fixture", id)
		}
		for _, v := range values {
			if err := tx.SetValue(id, v.Offset, v.Value); err != nil {
				tx.Replace(id, current)
				return err
			}
		}
		return nil
	}, s.Engine)
}

// SetChannel writes one raw channel. The next patch push overwrites it.
func (s *Service) SetChannel(addr, value int) error {
	return s.Engine.SetChannel(addr, value)
}

// SetChannels writes consecutive raw channels from start.
func (s *Service) SetChannels(start int, values []int) error {
	return s.Engine.SetChannels(start, values)
}

// SetChannelValues writes sparse raw channels.
func (s *Service) SetChannelValues(values []dmx.ChannelValue) error {
	return s.Engine.SetChannelValues(values)
}

// GetChannel reads one channel of the output buffer.
func (s *Service) GetChannel(addr int) (byte, error) {
	return s.Engine.GetChannel(addr)
}

// Blackout zeroes the output buffer.
func (s *Service) Blackout() {
	s.Engine.Blackout()
	s.log.Info("blackout")
}

// CaptureScene snapshots the patch.
func (s *Service) CaptureScene(name string) (scene.Scene, error) {
	return s.Scenes.Capture(name)
}

// ListScenes returns every scene, oldest first.
func (s *Service) ListScenes() []scene.Scene {
	return s.Scenes.List()
}

// ApplyScene restores a scene and pushes it to the output.
func (s *Service) ApplyScene(ref string) (scene.ApplyResult, error) {
	return s.Scenes.ApplyTo(ref, s.Engine)
}

// DeleteScene removes a scene. It reports whether ref matched.
func (s *Service) DeleteScene(ref string) (bool, error) {
	return s.Scenes.Delete(ref)
}

// CreateChaser builds an idle chaser over sceneRefs.
func (s *Service) CreateChaser(name string, sceneRefs []string, step time.Duration) (chaser.Info, error) {
	return s.Chasers.Create(name, sceneRefs, step)
}

// StartChaser runs a chaser until it is stopped or the service stops.
func (s *Service) StartChaser(ref string) (chaser.Info, error) {
	return s.Chasers.Start(s.context(), ref)
}

// StopChaser halts a chaser.
func (s *Service) StopChaser(ref string) (chaser.Info, error) {
	return s.Chasers.Stop(ref)
}

// ListChasers returns every chaser by name.
func (s *Service) ListChasers() []chaser.Info {
	return s.Chasers.List()
}
