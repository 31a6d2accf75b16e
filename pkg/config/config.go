package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Storage    StorageConfig
	Engines    EngineConfig
	AssemblyAI AssemblyAIConfig
	Voiceprint VoiceprintConfig
	Realtime   RealtimeConfig
	Fusion     FusionConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	AllowedOrigins  []string
	ShutdownTimeout int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int
	MinConns    int
	AutoMigrate bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

// EngineConfig points at the external speech engines
type EngineConfig struct {
	SpeakerURL     string        `envconfig:"SPEAKER_SERVICE_URL" default:"http://localhost:8002"`
	SpeakerTimeout time.Duration `envconfig:"SPEAKER_TIMEOUT" default:"60s"`
	FunASRHTTPURL  string        `envconfig:"FUNASR_HTTP_URL" default:"http://localhost:8001"`
	FunASRWSURL    string        `envconfig:"FUNASR_WS_URL" default:"ws://localhost:10095"`
	FunASRTimeout  time.Duration `envconfig:"FUNASR_TIMEOUT" default:"10m"`
	ASRProvider    string        `envconfig:"ASR_PROVIDER" default:"funasr"`
}

// AssemblyAIConfig holds the hosted ASR credentials
type AssemblyAIConfig struct {
	APIKey   string `envconfig:"ASSEMBLYAI_API_KEY"`
	Language string `envconfig:"ASSEMBLYAI_LANGUAGE"`
}

// VoiceprintConfig bounds enrollment and identification
type VoiceprintConfig struct {
	MinSamples      int     `envconfig:"MIN_SAMPLES" default:"3"`
	MaxSamples      int     `envconfig:"MAX_SAMPLES" default:"10"`
	Threshold       float64 `envconfig:"THRESHOLD" default:"0.75"`
	SimilarityScale string  `envconfig:"SIMILARITY_SCALE" default:"unit"`
	TopK            int     `envconfig:"TOP_K" default:"5"`
}

// RealtimeConfig tunes streaming sessions
type RealtimeConfig struct {
	MaxReconnects int           `envconfig:"MAX_RECONNECTS" default:"3"`
	ReconnectBase time.Duration `envconfig:"RECONNECT_BASE" default:"1s"`
	ReconnectMax  time.Duration `envconfig:"RECONNECT_MAX" default:"10s"`
	DialTimeout   time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s"`
	SendTimeout   time.Duration `envconfig:"SEND_TIMEOUT" default:"5s"`
	DrainTimeout  time.Duration `envconfig:"DRAIN_TIMEOUT" default:"5s"`
	EventBuffer   int           `envconfig:"EVENT_BUFFER" default:"64"`
	TombstoneTTL  time.Duration `envconfig:"TOMBSTONE_TTL" default:"10m"`
	LockTTL       time.Duration `envconfig:"LOCK_TTL" default:"30s"`
}

// FusionConfig tunes the batch pipeline
type FusionConfig struct {
	MinRepresentative time.Duration `envconfig:"MIN_REPRESENTATIVE" default:"5s"`
	MaxRepresentative time.Duration `envconfig:"MAX_REPRESENTATIVE" default:"30s"`
	SentenceGap       time.Duration `envconfig:"SENTENCE_GAP" default:"1s"`
	MatchConcurrency  int           `envconfig:"MATCH_CONCURRENCY" default:"4"`
	Timeout           time.Duration `envconfig:"TIMEOUT" default:"15m"`
	TempDir           string        `envconfig:"TEMP_DIR"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", "http://localhost:3000"),
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			Name:        getEnv("DB_NAME", "meeting_transcriber"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:    getEnvAsInt("DB_MIN_CONNS", 5),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "your-access-secret-change-in-production"),
			AccessExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", "15m"),
		},
		Storage: StorageConfig{
			Enabled:         getEnvAsBool("STORAGE_ENABLED", false),
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("STORAGE_BUCKET", "voiceprints"),
			UseSSL:          getEnvAsBool("STORAGE_USE_SSL", false),
		},
	}

	sections := []struct {
		prefix string
		target interface{}
	}{
		{"", &config.Engines},
		{"", &config.AssemblyAI},
		{"VOICEPRINT", &config.Voiceprint},
		{"REALTIME", &config.Realtime},
		{"FUSION", &config.Fusion},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.target); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Voiceprint.MinSamples < 1 || c.Voiceprint.MinSamples > 10 {
		return fmt.Errorf("VOICEPRINT_MIN_SAMPLES must be between 1 and 10")
	}
	if c.Voiceprint.MaxSamples < c.Voiceprint.MinSamples {
		return fmt.Errorf("VOICEPRINT_MAX_SAMPLES must be at least VOICEPRINT_MIN_SAMPLES")
	}
	if c.Voiceprint.Threshold < 0 || c.Voiceprint.Threshold > 1 {
		return fmt.Errorf("VOICEPRINT_THRESHOLD must be between 0 and 1")
	}
	switch c.Voiceprint.SimilarityScale {
	case "unit", "cosine":
	default:
		return fmt.Errorf("VOICEPRINT_SIMILARITY_SCALE must be unit or cosine")
	}
	if c.Realtime.MaxReconnects < 0 {
		return fmt.Errorf("REALTIME_MAX_RECONNECTS must not be negative")
	}
	if c.Engines.SpeakerURL == "" {
		return fmt.Errorf("SPEAKER_SERVICE_URL is required")
	}
	switch c.Engines.ASRProvider {
	case "funasr":
		if c.Engines.FunASRHTTPURL == "" {
			return fmt.Errorf("FUNASR_HTTP_URL is required")
		}
	case "assemblyai":
		if c.AssemblyAI.APIKey == "" {
			return fmt.Errorf("ASSEMBLYAI_API_KEY is required when ASR_PROVIDER=assemblyai")
		}
	default:
		return fmt.Errorf("ASR_PROVIDER must be funasr or assemblyai")
	}
	if c.Engines.FunASRWSURL == "" {
		return fmt.Errorf("FUNASR_WS_URL is required")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, defaultValue), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
