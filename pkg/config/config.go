// Package config loads the driver configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/emergingrobotics/go-harddoom/pkg/driver"
	"gopkg.in/yaml.v3"
)

// Config is the top-level driver configuration
type Config struct {
	RingSize       uint32         `yaml:"ring_size"`
	MaxDevices     int            `yaml:"max_devices"`
	DmaAddressBits uint           `yaml:"dma_address_bits"`
	LogLevel       LogLevel       `yaml:"log_level"`
	Devices        []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one accelerator to probe
type DeviceConfig struct {
	Name      string `yaml:"name"`
	PCI       string `yaml:"pci"`
	UIO       string `yaml:"uio"`
	Microcode string `yaml:"microcode"`
}

// LogLevel is a slog level spelled as debug, info, warn or error
type LogLevel struct {
	slog.Level
}

// UnmarshalYAML parses a level name
func (l *LogLevel) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: log_level must be a scalar", node.Line)
	}
	if err := l.Level.UnmarshalText([]byte(strings.TrimSpace(node.Value))); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// MarshalYAML writes the level name
func (l LogLevel) MarshalYAML() (any, error) {
	return strings.ToLower(l.Level.String()), nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		RingSize:       driver.DefaultRingSize,
		MaxDevices:     driver.MaxDevices,
		DmaAddressBits: driver.DmaAddressBits,
		LogLevel:       LogLevel{slog.LevelInfo},
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and device entries
func (c *Config) Validate() error {
	if c.RingSize < 4 || c.RingSize&(c.RingSize-1) != 0 {
		return fmt.Errorf("ring_size %d must be a power of two of at least 4", c.RingSize)
	}
	if c.MaxDevices < 1 || c.MaxDevices > driver.MaxDevices {
		return fmt.Errorf("max_devices %d out of range [1, %d]", c.MaxDevices, driver.MaxDevices)
	}
	if c.DmaAddressBits < 32 || c.DmaAddressBits > 64 {
		return fmt.Errorf("dma_address_bits %d out of range [32, 64]", c.DmaAddressBits)
	}
	if len(c.Devices) > c.MaxDevices {
		return fmt.Errorf("%d devices configured, max_devices is %d", len(c.Devices), c.MaxDevices)
	}

	names := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.PCI == "" {
			return fmt.Errorf("devices[%d]: pci address required", i)
		}
		name := d.DisplayName()
		if names[name] {
			return fmt.Errorf("devices[%d]: duplicate device %q", i, name)
		}
		names[name] = true
	}
	return nil
}

// DisplayName returns the device name, falling back to its PCI address
func (d DeviceConfig) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.PCI
}

// LoadMicrocode reads a microcode file of little-endian 32-bit words. An
// empty path yields no microcode.
func (d DeviceConfig) LoadMicrocode() ([]uint32, error) {
	if d.Microcode == "" {
		return nil, nil
	}
	data, err := os.ReadFile(d.Microcode)
	if err != nil {
		return nil, fmt.Errorf("failed to read microcode: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("microcode %s: size %d is not a multiple of 4", d.Microcode, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = uint32(data[4*i]) | uint32(data[4*i+1])<<8 | uint32(data[4*i+2])<<16 | uint32(data[4*i+3])<<24
	}
	return words, nil
}

// Logger builds the text logger for the configured level
func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel.Level}))
}
