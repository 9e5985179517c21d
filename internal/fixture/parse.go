package fixture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dmxcore/internal/dmxerr"
	"gopkg.in/yaml.v3"
)

const (
	defaultSchemaVersion = "1.0"
	defaultManufacturer  = "Unknown"
	defaultFixtureType   = "Generic"
	defaultChannelType   = "generic"
	maxTotalChannels     = 512
)

// record mirrors the on-disk layout. Pointers tell missing keys apart from
// zero values.
type record struct {
	SchemaVersion *string          `json:"schema_version" yaml:"schema_version"`
	Name          *string          `json:"name" yaml:"name"`
	Manufacturer  *string          `json:"manufacturer" yaml:"manufacturer"`
	Type          *string          `json:"type" yaml:"type"`
	TotalChannels *int             `json:"total_channels" yaml:"total_channels"`
	Channels      *[]channelRecord `json:"channels" yaml:"channels"`
}

type channelRecord struct {
	Name         *string            `json:"name" yaml:"name"`
	Type         *string            `json:"type" yaml:"type"`
	Offset       *int               `json:"dmx_channel_offset" yaml:"dmx_channel_offset"`
	DefaultValue *int               `json:"default_value" yaml:"default_value"`
	MinValue     *int               `json:"min_value" yaml:"min_value"`
	MaxValue     *int               `json:"max_value" yaml:"max_value"`
	Capabilities []capabilityRecord `json:"capabilities" yaml:"capabilities"`
}

type capabilityRecord struct {
	Description *string `json:"description" yaml:"description"`
	Value       *int    `json:"value" yaml:"value"`
	RangeMin    *int    `json:"range_min" yaml:"range_min"`
	RangeMax    *int    `json:"range_max" yaml:"range_max"`
}

// Supported reports whether path has a fixture record extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// ParseFile reads and validates one record, picking the decoder by
// extension.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture definition: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data, path)
	default:
		return ParseJSON(data, path)
	}
}

// ParseJSON validates a JSON record.
func ParseJSON(data []byte, source string) (*Definition, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, dmxerr.Invalid(source, "record", "%v", err)
	}
	return rec.definition(source)
}

// ParseYAML validates a YAML record.
func ParseYAML(data []byte, source string) (*Definition, error) {
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, dmxerr.Invalid(source, "record", "%v", err)
	}
	return rec.definition(source)
}

func (r *record) definition(source string) (*Definition, error) {
	if r.Name == nil || strings.TrimSpace(*r.Name) == "" {
		return nil, dmxerr.Invalid(source, "name", "missing or empty")
	}
	if r.TotalChannels == nil {
		return nil, dmxerr.Invalid(source, "total_channels", "missing")
	}
	total := *r.TotalChannels
	if total <= 0 || total > maxTotalChannels {
		return nil, dmxerr.Invalid(source, "total_channels", "%d must be between 1 and %d", total, maxTotalChannels)
	}

	def := &Definition{
		Name:          *r.Name,
		Manufacturer:  stringOr(r.Manufacturer, defaultManufacturer),
		Type:          stringOr(r.Type, defaultFixtureType),
		SchemaVersion: stringOr(r.SchemaVersion, defaultSchemaVersion),
		TotalChannels: total,
		Source:        source,
	}

	if r.Channels == nil {
		return def, nil
	}

	channels := *r.Channels
	seen := make(map[int]string, len(channels))
	for i, cr := range channels {
		ch, err := cr.channel(source, i, total)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[ch.Offset]; dup {
			return nil, dmxerr.Invalid(source, fmt.Sprintf("channels[%d].dmx_channel_offset", i),
				"offset %d already used by %q", ch.Offset, other)
		}
		seen[ch.Offset] = ch.Name
		def.Channels = append(def.Channels, ch)
	}

	if len(def.Channels) != total {
		return nil, dmxerr.Invalid(source, "channels",
			"%d channels defined but total_channels is %d", len(def.Channels), total)
	}
	return def, nil
}

func (cr channelRecord) channel(source string, i, total int) (Channel, error) {
	field := func(name string) string { return fmt.Sprintf("channels[%d].%s", i, name) }

	if cr.Name == nil || *cr.Name == "" {
		return Channel{}, dmxerr.Invalid(source, field("name"), "missing or empty")
	}
	if cr.Offset == nil {
		return Channel{}, dmxerr.Invalid(source, field("dmx_channel_offset"), "missing")
	}
	if *cr.Offset < 0 || *cr.Offset >= total {
		return Channel{}, dmxerr.Invalid(source, field("dmx_channel_offset"),
			"%d must be between 0 and %d", *cr.Offset, total-1)
	}

	def, err := byteOr(cr.DefaultValue, 0, source, field("default_value"))
	if err != nil {
		return Channel{}, err
	}
	lo, err := byteOr(cr.MinValue, 0, source, field("min_value"))
	if err != nil {
		return Channel{}, err
	}
	hi, err := byteOr(cr.MaxValue, 255, source, field("max_value"))
	if err != nil {
		return Channel{}, err
	}

	ch := Channel{
		Name:    *cr.Name,
		Type:    stringOr(cr.Type, defaultChannelType),
		Offset:  *cr.Offset,
		Default: def,
		Min:     lo,
		Max:     hi,
	}

	for j, capRec := range cr.Capabilities {
		capability, err := capRec.capability(source, fmt.Sprintf("channels[%d].capabilities[%d]", i, j))
		if err != nil {
			return Channel{}, err
		}
		ch.Capabilities = append(ch.Capabilities, capability)
	}
	return ch, nil
}

func (c capabilityRecord) capability(source, field string) (Capability, error) {
	if c.Description == nil || *c.Description == "" {
		return Capability{}, dmxerr.Invalid(source, field+".description", "missing or empty")
	}

	hasRange := c.RangeMin != nil || c.RangeMax != nil
	switch {
	case c.Value != nil && hasRange:
		return Capability{}, dmxerr.Invalid(source, field, "has both value and range")
	case c.Value != nil:
		v, err := byteOr(c.Value, 0, source, field+".value")
		if err != nil {
			return Capability{}, err
		}
		return Capability{Description: *c.Description, Kind: CapabilityValue, Value: v}, nil
	case c.RangeMin != nil && c.RangeMax != nil:
		lo, err := byteOr(c.RangeMin, 0, source, field+".range_min")
		if err != nil {
			return Capability{}, err
		}
		hi, err := byteOr(c.RangeMax, 0, source, field+".range_max")
		if err != nil {
			return Capability{}, err
		}
		if lo > hi {
			return Capability{}, dmxerr.Invalid(source, field, "range_min %d above range_max %d", lo, hi)
		}
		return Capability{Description: *c.Description, Kind: CapabilityRange, Min: lo, Max: hi}, nil
	default:
		return Capability{}, dmxerr.Invalid(source, field, "needs a value or both range_min and range_max")
	}
}

func stringOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func byteOr(v *int, def uint8, source, field string) (uint8, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 || *v > 255 {
		return 0, dmxerr.Invalid(source, field, "%d must be between 0 and 255", *v)
	}
	return uint8(*v), nil
}
