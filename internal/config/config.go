package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from yaml strings like "2s".
// Bare integers are taken as nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %v", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Companion CompanionConfig `yaml:"companion"`
	Device    DeviceConfig    `yaml:"device"`
}

// BridgeConfig controls how the relay ("bridge") is reached and polled.
type BridgeConfig struct {
	// Address is a bare host:port or a full URL. Empty means the default
	// local bridge on 127.0.0.1:25037.
	Address string `yaml:"address"`

	ConnectTimeout Duration `yaml:"connect_timeout"`
	PollInterval   Duration `yaml:"poll_interval"`
	ProbeTimeout   Duration `yaml:"probe_timeout"`
}

// CompanionConfig controls the development-mode helper that releases a
// conflicting ADB server before a direct connect.
type CompanionConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type DeviceConfig struct {
	// LegacyAndroidVersion is the highest Android release still classified
	// as a legacy (pre-v51) headset.
	LegacyAndroidVersion int `yaml:"legacy_android_version"`
}

func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Address:        "",
			ConnectTimeout: Duration(5 * time.Second),
			PollInterval:   Duration(time.Second),
			ProbeTimeout:   Duration(2 * time.Second),
		},
		Companion: CompanionConfig{
			Enabled: false,
			Port:    25898,
		},
		Device: DeviceConfig{
			LegacyAndroidVersion: 11,
		},
	}
}

// Default returns the built-in configuration, used when no config file is
// present.
func Default() *Config {
	return defaultConfig()
}

// Load reads a yaml config file, applying defaults for any field the file
// does not set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
