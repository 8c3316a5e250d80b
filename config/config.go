// Package config loads the station file describing the attached devices and
// where measurements are mirrored to.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hb9tf/vnasweep/actuator"
	"github.com/hb9tf/vnasweep/vna"
)

type Config struct {
	// Identifier names this station in mirrored rows.
	Identifier string           `yaml:"identifier"`
	Actuator   ActuatorConfig   `yaml:"actuator"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Export     ExportConfig     `yaml:"export"`
	API        APIConfig        `yaml:"api"`
}

type ActuatorConfig struct {
	Keyword    string        `yaml:"keyword"`
	BaudRate   int           `yaml:"baud_rate"`
	Timeout    time.Duration `yaml:"timeout"`
	AckTimeout time.Duration `yaml:"ack_timeout"`
	// Profile is one of actuator.Profiles. Bits, if set, overrides it with
	// the range of an n-bit device.
	Profile string `yaml:"profile"`
	Bits    int    `yaml:"bits"`
}

type InstrumentConfig struct {
	// Addrs are the SCPI raw socket endpoints probed for an analyzer.
	Addrs   []string      `yaml:"addrs"`
	Timeout time.Duration `yaml:"timeout"`
	// Vendors is the probe priority.
	Vendors []string `yaml:"vendors"`
}

type SweepConfig struct {
	Root         string        `yaml:"root"`
	Delay        time.Duration `yaml:"delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Window       *vna.Window   `yaml:"window"`
}

type ExportConfig struct {
	SQLite   *SQLiteConfig   `yaml:"sqlite"`
	Postgres *PostgresConfig `yaml:"postgres"`
	MySQL    *MySQLConfig    `yaml:"mysql"`
	Spectre  *SpectreConfig  `yaml:"spectre"`
	// Traces limits mirrors to these trace IDs. Trace files always get
	// every trace.
	Traces []string `yaml:"traces"`
}

type SQLiteConfig struct {
	File string `yaml:"file"`
}

type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
}

type MySQLConfig struct {
	Addr         string `yaml:"addr"`
	User         string `yaml:"user"`
	PasswordFile string `yaml:"password_file"`
	DBName       string `yaml:"db_name"`
}

type SpectreConfig struct {
	Server string `yaml:"server"`
	Rows   int    `yaml:"rows"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
	// Events is how many recent events the API keeps.
	Events int `yaml:"events"`
}

// Default returns a configuration with every default applied, used when no
// station file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Identifier == "" {
		c.Identifier = uuid.NewString()
	}
	if c.Actuator.Keyword == "" {
		c.Actuator.Keyword = "USB Serial"
	}
	if c.Actuator.BaudRate == 0 {
		c.Actuator.BaudRate = 9600
	}
	if c.Actuator.Timeout == 0 {
		c.Actuator.Timeout = time.Second
	}
	if c.Actuator.AckTimeout == 0 {
		c.Actuator.AckTimeout = 100 * time.Millisecond
	}
	if c.Instrument.Timeout == 0 {
		c.Instrument.Timeout = 5 * time.Second
	}
	if len(c.Instrument.Vendors) == 0 {
		c.Instrument.Vendors = []string{"rohde", "keysight"}
	}
	if c.Sweep.Root == "" {
		c.Sweep.Root = "."
	}
	if c.Sweep.Delay == 0 {
		c.Sweep.Delay = time.Second
	}
	if c.Sweep.PollInterval == 0 {
		c.Sweep.PollInterval = 100 * time.Millisecond
	}
	if c.Export.Spectre != nil && c.Export.Spectre.Rows == 0 {
		c.Export.Spectre.Rows = 16
	}
	if c.Export.MySQL != nil && c.Export.MySQL.DBName == "" {
		c.Export.MySQL.DBName = "vnasweep"
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.API.Events == 0 {
		c.API.Events = 256
	}
}

func (c *Config) validate() error {
	if c.Actuator.Profile != "" {
		if _, ok := actuator.Profiles[c.Actuator.Profile]; !ok {
			return fmt.Errorf("actuator.profile %q unknown, pick one of: %s", c.Actuator.Profile, strings.Join(ProfileNames(), ", "))
		}
	}
	if c.Actuator.Bits < 0 || c.Actuator.Bits > 8 {
		return fmt.Errorf("actuator.bits must be within 0-8, got %d", c.Actuator.Bits)
	}
	for _, v := range c.Instrument.Vendors {
		switch strings.ToLower(v) {
		case "rohde", "keysight":
		default:
			return fmt.Errorf("instrument.vendors: %q is not supported, pick from: rohde, keysight", v)
		}
	}
	if c.Sweep.Delay < 0 {
		return fmt.Errorf("sweep.delay must be positive")
	}
	if c.Sweep.PollInterval < 0 || c.Sweep.PollInterval >= time.Second {
		return fmt.Errorf("sweep.poll_interval must be below one second, got %s", c.Sweep.PollInterval)
	}
	if w := c.Sweep.Window; w != nil && w.Start > w.End {
		return fmt.Errorf("sweep.window start %v above end %v", w.Start, w.End)
	}
	if c.Export.SQLite != nil && c.Export.SQLite.File == "" {
		return fmt.Errorf("export.sqlite.file is required")
	}
	if c.Export.Postgres != nil && c.Export.Postgres.ConnString == "" {
		return fmt.Errorf("export.postgres.conn_string is required")
	}
	if c.Export.MySQL != nil && (c.Export.MySQL.Addr == "" || c.Export.MySQL.User == "") {
		return fmt.Errorf("export.mysql.addr and export.mysql.user are required")
	}
	if c.Export.Spectre != nil && c.Export.Spectre.Server == "" {
		return fmt.Errorf("export.spectre.server is required")
	}
	return nil
}

// Range returns the state range of the configured actuator, or the full
// byte range without a profile.
func (c *Config) Range() actuator.Range {
	switch {
	case c.Actuator.Bits > 0:
		return actuator.BitsRange(c.Actuator.Bits)
	case c.Actuator.Profile != "":
		return actuator.Profiles[c.Actuator.Profile]
	}
	return actuator.Range{Min: 0, Max: 255}
}

// ProfileNames lists the known actuator profiles.
func ProfileNames() []string {
	var names []string
	for n := range actuator.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
