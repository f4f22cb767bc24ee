package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// S3Config locates the bucket manifests and catalog snapshots are published
// to. Endpoint is only needed for S3 compatible stores.
type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
}

type AppConfig struct {
	Project struct {
		// Root holds queries/, views/, functions/, procedures/ and pipelines/.
		Root         string   `yaml:"root"`
		Pipelines    string   `yaml:"pipelines"`
		Environments []string `yaml:"environments"`
	} `yaml:"project"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`

	Loader struct {
		Concurrency int           `yaml:"concurrency"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"loader"`

	Catalog struct {
		Path     string `yaml:"path"`
		InMemory bool   `yaml:"inMemory"`
	} `yaml:"catalog"`

	Publish struct {
		S3 S3Config `yaml:"s3"`
		// Snapshot uploads a catalog backup next to the manifests.
		Snapshot bool `yaml:"snapshot"`
	} `yaml:"publish"`
}

// Default returns the configuration used when no file is given.
func Default() AppConfig {
	var cfg AppConfig
	cfg.Project.Root = "."
	cfg.Project.Pipelines = "pipelines"
	cfg.Project.Environments = []string{"sbx", "tst", "acc", "prd"}
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Loader.Concurrency = 8
	cfg.Loader.Timeout = time.Minute
	cfg.Catalog.Path = ".flycs/catalog"
	cfg.Publish.S3.Region = "us-east-1"
	return cfg
}

// Load reads a YAML config file over the defaults.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c AppConfig) Validate() error {
	if c.Loader.Concurrency < 0 {
		return fmt.Errorf("loader.concurrency must not be negative")
	}
	if c.Publish.S3.Enabled && c.Publish.S3.Bucket == "" {
		return fmt.Errorf("publish.s3.bucket is required when publishing is enabled")
	}
	if !c.Catalog.InMemory && c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required unless catalog.inMemory is set")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
