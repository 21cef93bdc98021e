// Package config loads the importer settings of the gpumodel command.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/binzume/gpumodel/importer"
	"github.com/binzume/gpumodel/internal/logger"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Import  ImportConfig  `yaml:"import"`
	Logging LoggingConfig `yaml:"logging"`
}

type ImportConfig struct {
	// Option names, see importer.ParseOptions.
	Options []string `yaml:"options"`
	Workers int      `yaml:"workers"`
	Summary string   `yaml:"summary"`
}

type LoggingConfig struct {
	Level string            `yaml:"level"`
	File  logger.FileConfig `yaml:"file"`
}

func Default() *Config {
	return &Config{
		Import: ImportConfig{
			Options: []string{"All"},
			Summary: "text",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  logger.DefaultFileConfig(""),
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep their default value.
func Load(path string) (*Config, error) {
	conf := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(data, conf); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if _, err := c.Import.ImportOptions(); err != nil {
		return err
	}
	if c.Import.Workers < 0 {
		return fmt.Errorf("negative worker count %d", c.Import.Workers)
	}
	switch strings.ToLower(c.Import.Summary) {
	case "", "text", "yaml", "none":
	default:
		return fmt.Errorf("unknown summary format %q", c.Import.Summary)
	}
	return nil
}

// ImportOptions turns the option names into the importer bitset.
func (c *ImportConfig) ImportOptions() (importer.Options, error) {
	return importer.ParseOptions(c.Options)
}

// SetOptions replaces the option names with a comma separated list.
func (c *ImportConfig) SetOptions(list string) {
	c.Options = strings.Split(list, ",")
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
