package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	LLM struct {
		BaseURL string `yaml:"baseURL"`
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
	} `yaml:"llm"`

	Embedding struct {
		BaseURL string `yaml:"baseURL"`
		Model   string `yaml:"model"`
		Dim     int    `yaml:"dim"`
	} `yaml:"embedding"`

	Newport struct {
		APIKey       string `yaml:"apiKey"`
		BaseURL      string `yaml:"baseURL"`
		DefaultVoice string `yaml:"defaultVoice"`
	} `yaml:"newport"`

	Storage struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"accessKey"`
		SecretKey string `yaml:"secretKey"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"useSSL"`
	} `yaml:"storage"`

	Auth struct {
		PrivateKeyPath string        `yaml:"privateKeyPath"`
		SessionTTL     time.Duration `yaml:"sessionTTL"`
	} `yaml:"auth"`

	Chat struct {
		TopK               int           `yaml:"topK"`
		HistoryLimit       int           `yaml:"historyLimit"`
		SpeechPollAttempts int           `yaml:"speechPollAttempts"`
		SpeechPollInterval time.Duration `yaml:"speechPollInterval"`
		VideoPollAttempts  int           `yaml:"videoPollAttempts"`
		VideoPollInterval  time.Duration `yaml:"videoPollInterval"`
		TaskTTL            time.Duration `yaml:"taskTTL"`
		RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
	} `yaml:"chat"`

	Worker struct {
		Stream      string `yaml:"stream"`
		Group       string `yaml:"group"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"worker"`

	TrustedProxies []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("NEWPORT_API_KEY"); v != "" {
		cfg.Newport.APIKey = v
	}
	if v := os.Getenv("STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("config: redis.addr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.LLM.APIKey == "" {
		return errors.New("config: llm.apiKey is required (set in config.yaml or LLM_API_KEY)")
	}
	if cfg.LLM.Model == "" {
		return errors.New("config: llm.model is required (set in config.yaml)")
	}
	if cfg.Embedding.Model == "" {
		return errors.New("config: embedding.model is required (set in config.yaml)")
	}
	if cfg.Embedding.Dim <= 0 {
		return errors.New("config: embedding.dim is required (set in config.yaml)")
	}
	if cfg.Auth.PrivateKeyPath == "" {
		return errors.New("config: auth.privateKeyPath is required (set in config.yaml)")
	}
	return nil
}
