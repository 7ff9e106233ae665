// Package config loads galleria's configuration from an optional YAML file
// and GALLERIA_* environment variables. Command line flags are applied on top
// by the caller before Finalize is invoked.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/galleria/internal/ffmpeg"
	"github.com/hbomb79/galleria/internal/normalize"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "galleria.yml"
	DefaultReportDir  = "_reports"
	GallerySuffix     = "_gallery"
	CollageSuffix     = "_collage"
)

// Config is the complete, user supplied configuration for a run.
type Config struct {
	SourceRoot       string           `yaml:"source" env:"GALLERIA_SOURCE" validate:"required"`
	TargetRoot       string           `yaml:"target" env:"GALLERIA_TARGET" validate:"required"`
	ReportDir        string           `yaml:"report_dir" env:"GALLERIA_REPORT_DIR"`
	ManifestPath     string           `yaml:"manifest" env:"GALLERIA_MANIFEST"`
	Collage          bool             `yaml:"collage" env:"GALLERIA_COLLAGE" env-default:"false"`
	Concurrency      int              `yaml:"concurrency" env:"GALLERIA_CONCURRENCY" env-default:"1" validate:"gte=1,lte=64"`
	LogLevel         string           `yaml:"log_level" env:"GALLERIA_LOG_LEVEL" env-default:"info" validate:"oneof=verbose trace debug info warn warning error"`
	ContainerPattern string           `yaml:"container_pattern" env:"GALLERIA_CONTAINER_PATTERN" env-default:"^(?i)(_.*|\\d{4}s|projects?|archive.*)$"`
	Ignore           []string         `yaml:"ignore" env:"GALLERIA_IGNORE" env-separator:","`
	SuggestionLimit  int              `yaml:"suggestion_limit" env:"GALLERIA_SUGGESTION_LIMIT" env-default:"3" validate:"gte=0"`
	Image            normalize.Config `yaml:"image" env-prefix:"GALLERIA_"`
	Video            ffmpeg.Config    `yaml:"video" env-prefix:"GALLERIA_"`

	// Tools is a free-form map of binary overrides, e.g. {ffmpeg: /opt/bin/ffmpeg}.
	Tools map[string]any `yaml:"tools,omitempty"`
}

// ToolPaths is the recognised shape of the 'tools' section.
type ToolPaths struct {
	Ffmpeg      string `mapstructure:"ffmpeg"`
	Pdftocairo  string `mapstructure:"pdftocairo"`
	Magick      string `mapstructure:"magick"`
	HeifConvert string `mapstructure:"heif_convert"`
}

// Load reads configuration from the file at path (if it exists) and the
// environment. An explicitly requested file which does not exist is an error;
// the default file is optional.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		path = DefaultConfigFile
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(expanded, cfg); err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", expanded, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return cfg, nil
}

// Finalize expands home-relative paths, applies tool overrides and derived
// defaults, and validates the result. It must be called after any flag
// overrides have been applied.
func (c *Config) Finalize() error {
	for _, p := range []*string{&c.SourceRoot, &c.TargetRoot, &c.ReportDir, &c.ManifestPath} {
		if *p == "" {
			continue
		}

		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %s: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
	}

	if c.ReportDir == "" && c.TargetRoot != "" {
		c.ReportDir = filepath.Join(c.TargetRoot, DefaultReportDir)
	}

	if err := c.applyToolOverrides(); err != nil {
		return err
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	if _, err := regexp.Compile(c.ContainerPattern); err != nil {
		return fmt.Errorf("container_pattern is not a valid regular expression: %w", err)
	}

	return nil
}

// GallerySuffix returns the directory suffix identifying a project's media folder.
func (c *Config) GallerySuffix() string {
	if c.Collage {
		return CollageSuffix
	}

	return GallerySuffix
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) applyToolOverrides() error {
	if len(c.Tools) == 0 {
		return nil
	}

	var tools ToolPaths
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &tools,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(c.Tools); err != nil {
		return fmt.Errorf("invalid tools configuration: %w", err)
	}

	if tools.Ffmpeg != "" {
		c.Video.FfmpegBinPath = tools.Ffmpeg
	}
	if tools.Pdftocairo != "" {
		c.Image.PdftocairoPath = tools.Pdftocairo
	}
	if tools.Magick != "" {
		c.Image.MagickPath = tools.Magick
	}
	if tools.HeifConvert != "" {
		c.Image.HeifConvertPath = tools.HeifConvert
	}

	return nil
}
