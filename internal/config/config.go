// Package config loads netwatch settings from a YAML file and the command line.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iolloyd/netwatch/internal/models"
)

// DefaultInterval is the delay between the end of one cycle and the start of the next
const DefaultInterval = time.Minute

// Target is one configured logical target
type Target struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind,omitempty"`
}

// Config holds every setting. Zero-valued optional fields disable the
// feature they control.
type Config struct {
	Interval     time.Duration `yaml:"interval"`
	Targets      []Target      `yaml:"targets"`
	Netstat      string        `yaml:"netstat"`
	AppCmd       string        `yaml:"appcmd"`
	NoSlots      bool          `yaml:"no_slots"`
	SlotCacheTTL time.Duration `yaml:"slot_cache_ttl"`
	Listen       string        `yaml:"listen"`
	MaxClients   int           `yaml:"max_clients"`
	Verbose      bool          `yaml:"verbose"`
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Interval:     DefaultInterval,
		Netstat:      "netstat",
		SlotCacheTTL: 5 * time.Second,
		MaxClients:   64,
	}
}

// Load reads path over the defaults
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings that have no safe fallback
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.Netstat == "" {
		return fmt.Errorf("netstat path required")
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("max_clients must not be negative")
	}
	for _, t := range c.Targets {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("target with empty name")
		}
		if _, err := models.ParseHostingKind(t.Kind); err != nil {
			return fmt.Errorf("target %s: %w", t.Name, err)
		}
	}
	return nil
}

// ParseTargetArg reads a command-line target. "slot:Name" and "proc:Name"
// designate the hosting kind; anything else is left for the resolver to
// classify.
func ParseTargetArg(arg string) Target {
	if prefix, name, ok := strings.Cut(arg, ":"); ok && name != "" {
		switch strings.ToLower(prefix) {
		case "slot", "pool":
			return Target{Name: name, Kind: "slot"}
		case "proc", "process":
			return Target{Name: name, Kind: "process"}
		}
	}
	return Target{Name: arg}
}

// LogicalTargets builds one unbound target per configured target
func (c Config) LogicalTargets() ([]*models.Target, error) {
	targets := make([]*models.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		kind, err := models.ParseHostingKind(t.Kind)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Name, err)
		}
		targets = append(targets, models.NewTarget(t.Name, kind))
	}
	return targets, nil
}
