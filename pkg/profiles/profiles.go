// Package profiles provides named link presets for the Si4432 water tower
// link. Each profile is a complete si4432.Settings value: carrier frequency,
// data rate, hopping channel and the header signature the towers answer to.
package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/herlein/watertower/pkg/si4432"
	"github.com/herlein/watertower/pkg/synth"
)

// DefaultSignature is the header signature shared by every preset
const DefaultSignature = si4432.DefaultSignature

var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrOutOfRange     = errors.New("profile setting out of range")
)

// Profile represents a complete link configuration
type Profile struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Band        string          `json:"band"`
	Settings    si4432.Settings `json:"settings"`
}

// Registers holds the register values a profile programs. Informational:
// the driver recomputes them from Settings when it applies the profile.
type Registers struct {
	FrequencyBand []byte `json:"frequency_band"` // 0x75..0x77
	Modulation    []byte `json:"modulation"`     // 0x70..0x72
	DataRate      []byte `json:"data_rate"`      // 0x6E..0x6F
	IFFilter      uint8  `json:"if_filter"`      // 0x1C
	ClockRecovery []byte `json:"clock_recovery"` // 0x20..0x25
	Channel       uint8  `json:"channel"`        // 0x79
	Signature     []byte `json:"signature"`      // 0x3A..0x3B and 0x3F..0x40
}

// ProfileConfig is the JSON format for storing profile configurations
type ProfileConfig struct {
	Profile   Profile   `json:"profile"`
	Registers Registers `json:"registers"`
	Timestamp time.Time `json:"timestamp"`
}

// ToRegisters computes the register values for the profile
func (p *Profile) ToRegisters() (*Registers, error) {
	f, ok := synth.Frequency(p.Settings.FrequencyMHz)
	if !ok {
		return nil, fmt.Errorf("%w: %s frequency %.3f MHz", ErrOutOfRange, p.Name, p.Settings.FrequencyMHz)
	}
	b, ok := synth.BaudRate(p.Settings.BaudKbps)
	if !ok {
		return nil, fmt.Errorf("%w: %s baud rate %d kbps", ErrOutOfRange, p.Name, p.Settings.BaudKbps)
	}
	return &Registers{
		FrequencyBand: f.Bytes(),
		Modulation:    b.Modulation[:],
		DataRate:      b.DataRate[:],
		IFFilter:      b.IFFilter,
		ClockRecovery: b.Timing[:],
		Channel:       p.Settings.Channel,
		Signature:     []byte{byte(p.Settings.Signature >> 8), byte(p.Settings.Signature)},
	}, nil
}

// Validate checks that the radio accepts every setting of the profile
func (p *Profile) Validate() error {
	_, err := p.ToRegisters()
	return err
}

// SaveToFile saves a profile configuration to a JSON file
func (p *Profile) SaveToFile(path string) error {
	regs, err := p.ToRegisters()
	if err != nil {
		return err
	}
	config := ProfileConfig{
		Profile:   *p,
		Registers: *regs,
		Timestamp: time.Now(),
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// LoadProfileFromFile loads a profile configuration from a JSON file
func LoadProfileFromFile(path string) (*ProfileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var config ProfileConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	if err := config.Profile.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// EnsureDir ensures the directory for a file path exists
func EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0755)
}

// All returns every preset, freshly built
func All() []*Profile {
	var all []*Profile
	all = append(all, profiles433()...)
	all = append(all, profiles868()...)
	all = append(all, profiles915()...)
	return all
}

// Get returns the preset called name
func Get(name string) (*Profile, error) {
	for _, p := range All() {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}

// List returns the preset names in sorted order
func List() []string {
	var names []string
	for _, p := range All() {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// GenerateAll writes every preset to basePath/<name>.json
func GenerateAll(basePath string) error {
	for _, p := range All() {
		path := filepath.Join(basePath, p.Name+".json")
		if err := EnsureDir(path); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p.Name, err)
		}
		if err := p.SaveToFile(path); err != nil {
			return fmt.Errorf("failed to save profile %s: %w", p.Name, err)
		}
	}
	return nil
}

func newProfile(band string, mhz float64, kbps int, description string) *Profile {
	return &Profile{
		Name:        fmt.Sprintf("%s-%dk", band, kbps),
		Description: description,
		Band:        band,
		Settings: si4432.Settings{
			FrequencyMHz: mhz,
			BaudKbps:     kbps,
			Channel:      0,
			Signature:    DefaultSignature,
		},
	}
}
