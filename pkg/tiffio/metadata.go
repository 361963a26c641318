package tiffio

import (
	"os"
	"strconv"
	"strings"
)

// Instrument metadata tags. The detector software stores each value as an
// ASCII "Name:Value" string in a private tag.
const (
	TagManufacturer   = 65026
	TagExposureTime   = 65027
	TagRotationActual = 65039
	TagSlitVB         = 65064
	TagSlitVT         = 65066
	TagSlitHR         = 65068
	TagSlitHL         = 65070

	// privateTagStart is the first tag number parsed as a "Name:Value" property
	privateTagStart = 65000
)

// Metadata holds the ASCII tags of a TIFF file
type Metadata struct {
	Tags map[uint16]string
}

// ReadMetadata parses the first IFD of the TIFF at path without decoding pixels
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	_, dir, err := parseDirectory(data)
	if err != nil {
		return nil, err
	}
	return &Metadata{Tags: dir.ascii}, nil
}

// Properties parses every private "Name:Value" tag into a map keyed by name
func (m *Metadata) Properties() map[string]string {
	props := make(map[string]string)
	for tag, raw := range m.Tags {
		if tag < privateTagStart {
			continue
		}
		name, value, ok := splitProperty(raw)
		if ok {
			props[name] = value
		}
	}
	return props
}

// Value returns the value part of the "Name:Value" string stored in tag
func (m *Metadata) Value(tag uint16) (string, bool) {
	raw, ok := m.Tags[tag]
	if !ok {
		return "", false
	}
	_, value, ok := splitProperty(raw)
	return value, ok
}

// Float returns the numeric value stored in tag
func (m *Metadata) Float(tag uint16) (float64, bool) {
	v, ok := m.Value(tag)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func splitProperty(raw string) (string, string, bool) {
	name, value, ok := strings.Cut(raw, ":")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), true
}
