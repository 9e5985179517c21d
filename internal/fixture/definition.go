// Package fixture parses fixture definition records and keeps the catalog
// they are looked up in.
package fixture

import "fmt"

// CapabilityKind tells whether a capability is a fixed value or a range.
type CapabilityKind int

const (
	CapabilityValue CapabilityKind = iota
	CapabilityRange
)

// Capability describes what a channel does at a value or across a range.
type Capability struct {
	Description string
	Kind        CapabilityKind
	Value       uint8 // set when Kind is CapabilityValue
	Min, Max    uint8 // set when Kind is CapabilityRange
}

// Contains reports whether v selects this capability.
func (c Capability) Contains(v uint8) bool {
	if c.Kind == CapabilityValue {
		return v == c.Value
	}
	return v >= c.Min && v <= c.Max
}

func (c Capability) String() string {
	if c.Kind == CapabilityValue {
		return fmt.Sprintf("%d: %s", c.Value, c.Description)
	}
	return fmt.Sprintf("%d-%d: %s", c.Min, c.Max, c.Description)
}

// Channel is one slot of a fixture.
type Channel struct {
	Name         string
	Type         string
	Offset       int
	Default      uint8
	Min, Max     uint8
	Capabilities []Capability
}

// Describe returns the capability selected by v, if any.
func (c Channel) Describe(v uint8) (Capability, bool) {
	for _, capability := range c.Capabilities {
		if capability.Contains(v) {
			return capability, true
		}
	}
	return Capability{}, false
}

// Definition is a validated fixture template. Definitions are shared
// between patched instances and must not be modified after parsing.
type Definition struct {
	Manufacturer  string
	Name          string
	Type          string
	SchemaVersion string
	TotalChannels int
	Channels      []Channel // empty for an undifferentiated bank of raw channels
	Source        string    // path the record was read from
}

// Key is the "manufacturer - name" composite identity.
func (d *Definition) Key() string {
	return d.Manufacturer + " - " + d.Name
}

// Defaults returns a fresh value array seeded from channel defaults, zero
// for undifferentiated channels.
func (d *Definition) Defaults() []byte {
	values := make([]byte, d.TotalChannels)
	for _, ch := range d.Channels {
		values[ch.Offset] = ch.Default
	}
	return values
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s (%d channels)", d.Key(), d.TotalChannels)
}
