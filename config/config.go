package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	TraceSig TraceSigConfig `yaml:"tracesig"`
}

// TraceSigConfig is the project configuration.
type TraceSigConfig struct {
	Input      InputConfig      `yaml:"input"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Signatures SignaturesConfig `yaml:"signatures"`
	Output     OutputConfig     `yaml:"output"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	TaskState  TaskStateConfig  `yaml:"task_state"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InputConfig controls the task queue reader.
type InputConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// PipelineConfig controls pipeline behavior.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// SignaturesConfig controls signature matching.
type SignaturesConfig struct {
	Builtin   bool   `yaml:"builtin"`
	SigmaPath string `yaml:"sigma_path"`
}

// RedisConfig controls Redis input.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// OutputConfig controls report output.
type OutputConfig struct {
	Mode string           `yaml:"mode"` // file|http
	File FileOutputConfig `yaml:"file"`
	HTTP HTTPOutputConfig `yaml:"http"`
}

// AlertsConfig controls alert scoring and output.
type AlertsConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Window    time.Duration    `yaml:"window"`
	Threshold int              `yaml:"threshold"`
	MaxRows   int              `yaml:"max_rows"`
	Cooldown  time.Duration    `yaml:"cooldown"`
	File      FileOutputConfig `yaml:"file"`
}

// TaskStateConfig controls compact per-task state persistence.
type TaskStateConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
