package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flynn/json5"
)

// SaveToFile writes the configuration as indented JSON, a subset of JSON5
func SaveToFile(configuration *File, path string) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(configuration, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// LoadFromFile reads and validates a JSON5 configuration file
func LoadFromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var configuration File
	if err := json5.Unmarshal(data, &configuration); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := configuration.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	return &configuration, nil
}

// GetConfigPath returns the conventional location of a named station file
func GetConfigPath(name string) string {
	return filepath.Join("etc", "watertower", fmt.Sprintf("%s.json", name))
}

// GetDumpPath returns the conventional location of a register dump
func GetDumpPath(name string) string {
	return filepath.Join("etc", "watertower", "dumps", fmt.Sprintf("%s.json", name))
}

// SaveDump writes a register dump as indented JSON
func SaveDump(dump *DeviceDump, path string) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dump: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// LoadDump reads a register dump written by SaveDump
func LoadDump(path string) (*DeviceDump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var dump DeviceDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dump: %w", err)
	}

	return &dump, nil
}
