package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Named type to allow reuse and clearer code
type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	SchemaRegistry string   `yaml:"schemaRegistry"`
	UseAvro        bool     `yaml:"useAvro"`
	Buffered       bool     `yaml:"buffered"` // publish once per run
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
}

type CheckpointConfig struct {
	Enabled bool     `yaml:"enabled"`
	Path    string   `yaml:"path"`
	Every   int      `yaml:"every"`  // final epoch is always stored
	Resume  string   `yaml:"resume"` // run id whose latest snapshot seeds training
	S3      S3Config `yaml:"s3"`
}

// DatasetConfig declares a tabular dataset served from DuckDB.
type DatasetConfig struct {
	Path            string   `yaml:"path"` // empty for in-memory
	Setup           []string `yaml:"setup"`
	TrainQuery      string   `yaml:"trainQuery"`
	ValidationQuery string   `yaml:"validationQuery"`
	Features        []string `yaml:"features"`
	Label           string   `yaml:"label"`
	Classes         int      `yaml:"classes"`
	Loss            string   `yaml:"loss"` // cross_entropy (default) or mse
}

type TrainerConfig struct {
	LogEvery int `yaml:"logEvery"`
}

type AppConfig struct {
	Kafka      KafkaConfig              `yaml:"kafka"`
	Checkpoint CheckpointConfig         `yaml:"checkpoint"`
	Datasets   map[string]DatasetConfig `yaml:"datasets"`
	Trainer    TrainerConfig            `yaml:"trainer"`
}

// Default returns the configuration used when no file overrides it.
func Default() AppConfig {
	return AppConfig{
		Kafka: KafkaConfig{
			Topic: "recipe-events",
		},
		Checkpoint: CheckpointConfig{
			Path:  "/tmp/recipeflow/checkpoints",
			Every: 1,
		},
		Datasets: map[string]DatasetConfig{},
	}
}

// Parse reads a YAML config over the defaults and validates it.
func Parse(path string) (AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads and parses a YAML config file into an AppConfig struct.
// It will terminate the program if the file is not found or invalid.
func Load(path string) AppConfig {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Fatalf("Config file not found: %s", path)
	}

	cfg, err := Parse(path)
	if err != nil {
		log.Fatalf("Error loading config file: %v", err)
	}
	return cfg
}

func (c *AppConfig) validate() error {
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka is enabled but no brokers are configured")
	}
	if c.Kafka.UseAvro && c.Kafka.SchemaRegistry == "" {
		return fmt.Errorf("kafka.useAvro requires kafka.schemaRegistry")
	}
	if c.Checkpoint.Every <= 0 {
		c.Checkpoint.Every = 1
	}
	for name, ds := range c.Datasets {
		if ds.TrainQuery == "" || ds.ValidationQuery == "" {
			return fmt.Errorf("dataset %s needs trainQuery and validationQuery", name)
		}
		if len(ds.Features) == 0 || ds.Label == "" {
			return fmt.Errorf("dataset %s needs features and label", name)
		}
	}
	return nil
}
