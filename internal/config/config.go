package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location relative to the
// working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseURL"`
	LogLevel    string `yaml:"logLevel"`

	JWTSecret            string `yaml:"jwtSecret"`
	JWTAlgorithm         string `yaml:"jwtAlgorithm"`
	JWTExpirationMinutes int    `yaml:"jwtExpirationMinutes"`

	StorageBackend string `yaml:"storageBackend"`
	StoragePath    string `yaml:"storagePath"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	LLMProvider string `yaml:"llmProvider"`
	LLMURL      string `yaml:"llmURL"`
	LLMModel    string `yaml:"llmModel"`
	LLMAPIKey   string `yaml:"llmAPIKey"`

	QueueBackend  string `yaml:"queueBackend"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	AMQPURL       string `yaml:"amqpURL"`

	EnrichConcurrency    int `yaml:"enrichConcurrency"`
	EnrichTimeoutSeconds int `yaml:"enrichTimeoutSeconds"`

	RecommendationURL string `yaml:"recommendationURL"`

	LoginRateLimit         int `yaml:"loginRateLimit"`
	LoginRateWindowSeconds int `yaml:"loginRateWindowSeconds"`
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
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ALGORITHM"); v != "" {
		cfg.JWTAlgorithm = v
	}
	if v := os.Getenv("JWT_EXPIRATION_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JWTExpirationMinutes = n
		}
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = v
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := os.Getenv("LLM_URL"); v != "" {
		cfg.LLMURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("QUEUE_BACKEND"); v != "" {
		cfg.QueueBackend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("RECOMMENDATION_URL"); v != "" {
		cfg.RecommendationURL = v
	}
	if v := os.Getenv("ENRICH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EnrichConcurrency = n
		}
	}
	if v := os.Getenv("ENRICH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EnrichTimeoutSeconds = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.JWTAlgorithm == "" {
		cfg.JWTAlgorithm = "HS256"
	}
	if cfg.JWTExpirationMinutes <= 0 {
		cfg.JWTExpirationMinutes = 1440
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "local"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "local"
	}
	if cfg.QueueBackend == "" {
		cfg.QueueBackend = "memory"
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = 4
	}
	if cfg.EnrichTimeoutSeconds <= 0 {
		cfg.EnrichTimeoutSeconds = 30
	}
	if cfg.LoginRateWindowSeconds <= 0 {
		cfg.LoginRateWindowSeconds = 60
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set JWT_SECRET)")
	}
	switch strings.ToLower(cfg.StorageBackend) {
	case "local":
		if cfg.StoragePath == "" {
			return errors.New("config: storagePath is required for local storage")
		}
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minio storage requires endpoint, credentials and bucket")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q", cfg.StorageBackend)
	}
	switch strings.ToLower(cfg.LLMProvider) {
	case "local":
	case "openai":
		if cfg.LLMURL == "" || cfg.LLMModel == "" {
			return errors.New("config: openai provider requires llmURL and llmModel")
		}
	default:
		return fmt.Errorf("config: unknown llmProvider %q", cfg.LLMProvider)
	}
	switch strings.ToLower(cfg.QueueBackend) {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redis queue requires redisAddr")
		}
	case "rabbitmq", "amqp":
		if cfg.AMQPURL == "" {
			return errors.New("config: rabbitmq queue requires amqpURL")
		}
	default:
		return fmt.Errorf("config: unknown queueBackend %q", cfg.QueueBackend)
	}
	if cfg.LoginRateLimit < 0 {
		return errors.New("config: loginRateLimit must be >= 0")
	}
	if cfg.LoginRateLimit > 0 && cfg.RedisAddr == "" {
		return errors.New("config: loginRateLimit requires redisAddr")
	}
	return nil
}
