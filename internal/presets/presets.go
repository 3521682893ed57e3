// Package presets loads the mode-preset table referenced by a
// channel's "preset" command field (spec §4.10): a named bundle of
// demodulator defaults. This package only loads and looks up presets;
// internal/channel does not apply them to commands. Grounded on the teacher's deviceid.go, which loads
// its vendor/model table the same way (gopkg.in/yaml.v3, unmarshalled
// once at startup into a lookup map).
package presets

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sdrcore/fastconv/internal/coreerr"
)

// Preset is one named bundle of demodulator defaults. Zero-valued
// fields are not applied — a preset only sets what it names, the same
// rule the source table follows for per-entry sparse overrides.
type Preset struct {
	Name          string   `yaml:"name"`
	Demod         string   `yaml:"demod"` // "linear", "fm", "wfm", "spectrum"
	LowIF         *float64 `yaml:"low"`
	HighIF        *float64 `yaml:"high"`
	KaiserBeta    *float64 `yaml:"kaiser-beta"`
	SquelchOpen   *float64 `yaml:"squelch-open"`
	SquelchClose  *float64 `yaml:"squelch-close"`
	PLToneHz      *float64 `yaml:"pl-tone"`
	AGCEnable     *bool    `yaml:"agc"`
	PLLEnable     *bool    `yaml:"pll"`
	Envelope      *bool    `yaml:"envelope"`
	OutputRate    *int     `yaml:"samprate"`
	OutputChannels *int    `yaml:"channels"`
}

// Table is a loaded, name-indexed set of presets.
type Table struct {
	byName map[string]Preset
}

type document struct {
	Presets []Preset `yaml:"presets"`
}

// Load reads a YAML preset file from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("presets: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Table from in-memory YAML, e.g. an embedded default
// set compiled into the binary.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("presets: parse: %w", err)
	}
	t := &Table{byName: make(map[string]Preset, len(doc.Presets))}
	for _, p := range doc.Presets {
		t.byName[strings.ToLower(p.Name)] = p
	}
	return t, nil
}

// Lookup returns the named preset, case-insensitively.
func (t *Table) Lookup(name string) (Preset, error) {
	if t == nil {
		return Preset{}, fmt.Errorf("presets: no table loaded: %w", coreerr.ErrInvalidConfig)
	}
	p, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return Preset{}, fmt.Errorf("presets: unknown preset %q: %w", name, coreerr.ErrInvalidConfig)
	}
	return p, nil
}

// Names returns every preset name in the table, for status/diagnostic
// listing.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for _, p := range t.byName {
		names = append(names, p.Name)
	}
	return names
}
