package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.yaml.in/yaml/v3"
)

// Backends a slot can use.
const (
	BackendLpac   = "lpac"
	BackendMemory = "memory"
)

// Config represents ~/.euiccctl/config.yaml.
type Config struct {
	Lpac    LpacConfig    `yaml:"lpac"`
	Slots   []SlotConfig  `yaml:"slots"`
	Log     LogConfig     `yaml:"log"`
	Notify  NotifyConfig  `yaml:"notify"`
	Hotplug HotplugConfig `yaml:"hotplug"`
	Server  ServerConfig  `yaml:"server"`
}

// LpacConfig locates the lpac binary.
type LpacConfig struct {
	Path string `yaml:"path"`
}

// SlotConfig describes one SIM slot and how to reach its LPA.
type SlotConfig struct {
	ID      int               `yaml:"id"`
	Name    string            `yaml:"name,omitempty"`
	Backend string            `yaml:"backend"`
	APDU    string            `yaml:"apdu,omitempty"`
	Device  string            `yaml:"device,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// NotifyConfig controls desktop notifications.
type NotifyConfig struct {
	Desktop bool `yaml:"desktop"`
}

// HotplugConfig controls the serial port watcher.
type HotplugConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig controls the HTTP daemon.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration written by `euiccctl config init`: a
// single simulated slot, so the tool works before any modem is set up.
func Default() Config {
	return Config{
		Lpac: LpacConfig{Path: "lpac"},
		Slots: []SlotConfig{
			{ID: 0, Name: "demo", Backend: BackendMemory},
		},
		Log:     LogConfig{Level: "info"},
		Hotplug: HotplugConfig{Interval: 2 * time.Second},
		Server:  ServerConfig{Addr: "127.0.0.1:8642"},
	}
}

// Parse parses config.yaml bytes into a Config. Missing fields take their
// default values.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	cfg.Slots = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Lpac.Path == "" {
		c.Lpac.Path = def.Lpac.Path
	}
	if len(c.Slots) == 0 {
		c.Slots = def.Slots
	}
	for i := range c.Slots {
		if c.Slots[i].Backend == "" {
			c.Slots[i].Backend = BackendLpac
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Hotplug.Interval <= 0 {
		c.Hotplug.Interval = def.Hotplug.Interval
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
}

// Validate checks slot definitions.
func (c Config) Validate() error {
	seen := make(map[int]bool, len(c.Slots))
	for _, s := range c.Slots {
		if s.ID < 0 {
			return fmt.Errorf("slot %d: id must not be negative", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("slot %d: defined more than once", s.ID)
		}
		seen[s.ID] = true
		switch s.Backend {
		case BackendLpac, BackendMemory:
		default:
			return fmt.Errorf("slot %d: unknown backend %q", s.ID, s.Backend)
		}
	}
	return nil
}

// Marshal serializes a Config to YAML bytes.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Load reads the config at path. A missing file yields Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Write saves cfg to path, creating the parent directory.
func Write(path string, cfg Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Slot returns the configuration for slot id.
func (c Config) Slot(id int) (SlotConfig, bool) {
	for _, s := range c.Slots {
		if s.ID == id {
			return s, true
		}
	}
	return SlotConfig{}, false
}

// SlotIDs returns the configured slot ids in ascending order.
func (c Config) SlotIDs() []int {
	ids := make([]int, 0, len(c.Slots))
	for _, s := range c.Slots {
		ids = append(ids, s.ID)
	}
	sort.Ints(ids)
	return ids
}

// Label is the slot's name, or "slot N" when it has none.
func (s SlotConfig) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("slot %d", s.ID)
}

// LpacEnv returns the environment lpac needs for this slot. Entries in Env
// win over the derived ones.
func (s SlotConfig) LpacEnv() map[string]string {
	env := make(map[string]string, len(s.Env)+2)
	if s.APDU != "" {
		env["LPAC_APDU"] = s.APDU
	}
	if s.APDU == "at" && s.Device != "" {
		env["AT_DEVICE"] = s.Device
	}
	for k, v := range s.Env {
		env[k] = v
	}
	return env
}
