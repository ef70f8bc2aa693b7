// Package config holds the startup configuration of the gateway, collected
// from command line flags and an optional YAML file. Flags win over the
// file, the file wins over defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"
)

type listFlag struct {
	values []string
}

func (f *listFlag) String() string { return strings.Join(f.values, ",") }

func (f *listFlag) Set(value string) error {
	if value == "" {
		f.values = nil
		return nil
	}
	f.values = strings.Split(value, ",")
	return nil
}

// Config of the gateway process.
type Config struct {
	flags *flag.FlagSet

	// ConfigFile is an optional YAML file applied below the flags.
	ConfigFile string

	// Address the gateway listens on.
	Address string `yaml:"address"`

	// SupportAddress serves the metrics exposition.
	SupportAddress string `yaml:"support-address"`

	// FilterDirectories are the watched filter source directories.
	FilterDirectories []string `yaml:"filter-directories"`

	// PollInterval between filter directory scans.
	PollInterval time.Duration `yaml:"-"`

	// PollIntervalString carries the poll interval in the YAML file,
	// yaml.v2 cannot decode into time.Duration directly.
	PollIntervalString string `yaml:"poll-interval"`

	// FilterSuffix of eligible filter sources.
	FilterSuffix string `yaml:"filter-suffix"`

	// MetricsFlavour selects codahale or prometheus.
	MetricsFlavour string `yaml:"metrics-flavour"`

	// LuaModules restricts the modules available to filter scripts.
	LuaModules []string `yaml:"lua-modules"`

	ApplicationLogPrefix      string `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled bool   `yaml:"application-log-json-enabled"`
	AccessLogDisabled         bool   `yaml:"access-log-disabled"`
	AccessLogJSONEnabled      bool   `yaml:"access-log-json-enabled"`

	filterDirectories listFlag
	luaModules        listFlag
}

// NewConfig creates a config with the default values and the flag set
// registered.
func NewConfig() *Config {
	cfg := &Config{}

	flags := flag.NewFlagSet("zuul", flag.ContinueOnError)
	flags.StringVar(&cfg.ConfigFile, "config-file", "", "yaml file with the gateway configuration")
	flags.StringVar(&cfg.Address, "address", ":9090", "address the gateway listens on")
	flags.StringVar(&cfg.SupportAddress, "support-address", ":9911", "address serving the metrics exposition")
	flags.Var(&cfg.filterDirectories, "filter-directories", "comma separated list of watched filter source directories")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", 5*time.Second, "interval between filter directory scans")
	flags.StringVar(&cfg.FilterSuffix, "filter-suffix", ".lua", "suffix of eligible filter source files")
	flags.StringVar(&cfg.MetricsFlavour, "metrics-flavour", "codahale", "metrics backend, one of codahale, prometheus")
	flags.Var(&cfg.luaModules, "lua-modules", "comma separated list of enabled lua modules, empty enables all")
	flags.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", "[APP]", "prefix of the application log lines")
	flags.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "render the application log as json")
	flags.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "disable the access log")
	flags.BoolVar(&cfg.AccessLogJSONEnabled, "access-log-json-enabled", false, "render the access log as json")

	cfg.flags = flags
	return cfg
}

// Parse the given command line arguments and the optional config file.
func (c *Config) Parse(args []string) error {
	if err := c.flags.Parse(args); err != nil {
		return err
	}

	if c.ConfigFile != "" {
		content, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}
		if err := yaml.Unmarshal(content, c); err != nil {
			return fmt.Errorf("invalid config file %s: %w", c.ConfigFile, err)
		}

		if c.PollIntervalString != "" {
			d, err := time.ParseDuration(c.PollIntervalString)
			if err != nil {
				return fmt.Errorf("invalid poll interval %q: %w", c.PollIntervalString, err)
			}
			c.PollInterval = d
		}

		// explicit flags win over file values
		if err := c.flags.Parse(args); err != nil {
			return err
		}
	}

	if len(c.filterDirectories.values) > 0 {
		c.FilterDirectories = c.filterDirectories.values
	}
	if len(c.luaModules.values) > 0 {
		c.LuaModules = c.luaModules.values
	}

	switch c.MetricsFlavour {
	case "codahale", "prometheus":
	default:
		return fmt.Errorf("invalid metrics flavour %q", c.MetricsFlavour)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %v", c.PollInterval)
	}

	return nil
}
