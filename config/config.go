package config

import (
	"fmt"
	"os"
	"time"

	"github.com/zenibako/roster-render/render"
	"github.com/zenibako/roster-render/templates"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up when no path is given
const DefaultFile = "roster-render.yaml"

// Config is the roster-render.yaml document
type Config struct {
	Version int           `yaml:"version"`
	Engine  EngineConfig  `yaml:"engine"`
	Project ProjectConfig `yaml:"project"`
	Render  RenderConfig  `yaml:"render"`
}

// EngineConfig locates the render bridge
type EngineConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReplyPort      int    `yaml:"reply_port"`  // 0 means port + 1
	ListenHost     string `yaml:"listen_host"` // Interface replies arrive on; empty means host
	Passcode       string `yaml:"passcode"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// ProjectConfig names the compositions, layer and effect of the roster project
type ProjectConfig struct {
	ControlComp      string `yaml:"control_comp"`
	SelectorLayer    string `yaml:"selector_layer"`
	SelectorEffect   string `yaml:"selector_effect"`
	SelectorProperty string `yaml:"selector_property"`
	RosterComp       string `yaml:"roster_comp"`
	NumberComp       string `yaml:"number_comp"`
	FirstNameComp    string `yaml:"first_name_comp"`
	LastNameComp     string `yaml:"last_name_comp"`
	RosterSize       int    `yaml:"roster_size"`
}

// RenderConfig controls output naming and queue polling
type RenderConfig struct {
	OutputTemplate    templates.OutputTemplate `yaml:"output_template"`
	PollIntervalMS    int                      `yaml:"poll_interval_ms"`
	PollMaxIntervalMS int                      `yaml:"poll_max_interval_ms"`
	PollBackoff       float64                  `yaml:"poll_backoff"`
	WaitForAll        bool                     `yaml:"wait_for_all"` // Wait for every queue item, not only the lead
	RestoreOnFailure  *bool                    `yaml:"restore_on_failure"`
}

// Default port of the render bridge
const (
	DefaultHost = "localhost"
	DefaultPort = 53100
)

// Default returns a config with every field set to its default
func Default() *Config {
	restore := true
	return &Config{
		Version: 1,
		Engine: EngineConfig{
			Host:           DefaultHost,
			Port:           DefaultPort,
			TimeoutSeconds: 10,
		},
		Project: ProjectConfig{
			ControlComp:      render.DefaultControlComp,
			SelectorLayer:    render.DefaultSelectorLayer,
			SelectorEffect:   render.DefaultSelectorEffect,
			SelectorProperty: render.DefaultSelectorProperty,
			RosterComp:       render.DefaultRosterComp,
			NumberComp:       render.DefaultNumberComp,
			FirstNameComp:    render.DefaultFirstNameComp,
			LastNameComp:     render.DefaultLastNameComp,
			RosterSize:       render.DefaultRosterSize,
		},
		Render: RenderConfig{
			OutputTemplate:   templates.Default(),
			PollIntervalMS:   int(render.DefaultPollInterval / time.Millisecond),
			PollBackoff:      1,
			RestoreOnFailure: &restore,
		},
	}
}

// Load reads a config file. Fields missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported %s version: %d", path, cfg.Version)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	if c.Engine.Port <= 0 || c.Engine.Port > 65535 {
		return fmt.Errorf("engine.port %d is out of range", c.Engine.Port)
	}
	if c.Project.RosterSize < 1 {
		return fmt.Errorf("project.roster_size must be at least 1")
	}
	if c.Render.PollIntervalMS < 0 || c.Render.PollMaxIntervalMS < 0 {
		return fmt.Errorf("render poll intervals must not be negative")
	}
	return c.Render.OutputTemplate.Normalize().Validate()
}

// ReplyPort returns the configured reply port, defaulting to port + 1
func (c *Config) ReplyPort() int {
	if c.Engine.ReplyPort == 0 {
		return c.Engine.Port + 1
	}
	return c.Engine.ReplyPort
}

// ListenHost returns the interface the reply listener binds to, defaulting to the bridge host
func (c *Config) ListenHost() string {
	if c.Engine.ListenHost == "" {
		return c.Engine.Host
	}
	return c.Engine.ListenHost
}

// Settings converts the config into orchestrator settings
func (c *Config) Settings() render.Settings {
	s := render.DefaultSettings()
	p := c.Project

	setString(&s.ControlComp, p.ControlComp)
	setString(&s.SelectorLayer, p.SelectorLayer)
	setString(&s.SelectorEffect, p.SelectorEffect)
	setString(&s.SelectorProperty, p.SelectorProperty)
	setString(&s.RosterComp, p.RosterComp)
	setString(&s.NumberComp, p.NumberComp)
	setString(&s.FirstNameComp, p.FirstNameComp)
	setString(&s.LastNameComp, p.LastNameComp)
	if p.RosterSize > 0 {
		s.RosterSize = p.RosterSize
	}

	s.OutputTemplate = c.Render.OutputTemplate.Normalize()
	s.Poll = render.PollPolicy{
		Interval:    time.Duration(c.Render.PollIntervalMS) * time.Millisecond,
		MaxInterval: time.Duration(c.Render.PollMaxIntervalMS) * time.Millisecond,
		Multiplier:  c.Render.PollBackoff,
		WaitForAll:  c.Render.WaitForAll,
	}
	if c.Render.RestoreOnFailure != nil {
		s.RestoreOnFailure = *c.Render.RestoreOnFailure
	}
	return s
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
