package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/hardup/hardup/pkg/expression"
	"github.com/hardup/hardup/pkg/record"
	"github.com/hardup/hardup/pkg/regex"
)

const (
	EnvPrefix = "HARDUP_"

	WalkerSequential = "sequential"
	WalkerFast       = "fast"
)

type Configuration struct {
	IgnoreMtime       bool     `koanf:"ignore_mtime"`
	UseChecksum       bool     `koanf:"use_checksum"`
	SimulateOnly      bool     `koanf:"simulate_only"`
	ChecksumAlgorithm string   `koanf:"checksum_algorithm"`
	Walker            string   `koanf:"walker"`
	Workers           int      `koanf:"workers"`
	Exclude           []string `koanf:"exclude"`
	Filter            string   `koanf:"filter"`
	LinkRate          int      `koanf:"link_rate"`
	MetricsFile       string   `koanf:"metrics_file"`
}

var defaults = map[string]interface{}{
	"ignore_mtime":       false,
	"use_checksum":       false,
	"simulate_only":      false,
	"checksum_algorithm": record.Adler32.Name(),
	"walker":             WalkerSequential,
	"workers":            0,
	"exclude":            []string{},
	"filter":             "",
	"link_rate":          0,
	"metrics_file":       "",
}

// Load layers defaults, the YAML file at path (when it exists), HARDUP_
// environment variables and finally overrides, then validates the result.
// overrides should only carry values the user set explicitly.
func Load(path string, overrides map[string]interface{}) (*Configuration, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed loading defaults")
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "failed loading config file %q", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed checking config file %q", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, errors.Wrap(err, "failed loading environment")
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, "failed loading flags")
		}
	}

	cfg := &Configuration{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed unmarshalling configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Configuration) Validate() error {
	if _, err := record.HasherByName(c.ChecksumAlgorithm); err != nil {
		return errors.Wrap(err, "invalid checksum_algorithm")
	}

	switch c.Walker {
	case WalkerSequential, WalkerFast:
	default:
		return errors.Errorf("invalid walker %q, expected %q or %q", c.Walker, WalkerSequential, WalkerFast)
	}

	if c.Workers < 0 {
		return errors.Errorf("invalid workers %d, must not be negative", c.Workers)
	}
	if c.LinkRate < 0 {
		return errors.Errorf("invalid link_rate %d, must not be negative", c.LinkRate)
	}

	if _, err := c.ExcludePatterns(); err != nil {
		return errors.Wrap(err, "invalid exclude")
	}
	if _, err := c.FilterExpression(); err != nil {
		return errors.Wrap(err, "invalid filter")
	}

	return nil
}

func (c *Configuration) Hasher() (record.Hasher, error) {
	return record.HasherByName(c.ChecksumAlgorithm)
}

func (c *Configuration) ExcludePatterns() ([]*regex.Pattern, error) {
	return regex.CompileAll(c.Exclude)
}

// FilterExpression returns nil when no filter is configured.
func (c *Configuration) FilterExpression() (*expression.CompiledExpression, error) {
	if strings.TrimSpace(c.Filter) == "" {
		return nil, nil
	}

	return expression.Compile(c.Filter)
}
