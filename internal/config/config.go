package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Masking   MaskingConfig   `mapstructure:"masking"`
	Detox     DetoxConfig     `mapstructure:"detox"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Giphy     GiphyConfig     `mapstructure:"giphy"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Dimensions int    `mapstructure:"dimensions"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type MaskingConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	EntityTypes []string      `mapstructure:"entity_types"`
}

type DetoxConfig struct {
	SimilarityThreshold     float32       `mapstructure:"similarity_threshold"`
	MaxSimilarItems         int           `mapstructure:"max_similar_items"`
	MemeGenerationEnabled   bool          `mapstructure:"meme_generation_enabled"`
	MemeConfidenceThreshold float64       `mapstructure:"meme_confidence_threshold"`
	MemeStyle               string        `mapstructure:"meme_style"`
	CacheTTL                time.Duration `mapstructure:"cache_ttl"`
	MaxTextLength           int           `mapstructure:"max_text_length"`
}

type LLMConfig struct {
	RoutingThreshold float64       `mapstructure:"routing_threshold"`
	Default          BackendConfig `mapstructure:"default"`
	Permissive       BackendConfig `mapstructure:"permissive"`
}

type BackendConfig struct {
	Name        string        `mapstructure:"name"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type GiphyConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Rating  string        `mapstructure:"rating"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

type RateLimitConfig struct {
	Process BucketConfig `mapstructure:"process"`
	Memes   BucketConfig `mapstructure:"memes"`
}

type BucketConfig struct {
	Window time.Duration `mapstructure:"window"`
	Limit  int           `mapstructure:"limit"`
}

type WorkerConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("masking.base_url", "NER_BASE_URL")
	v.BindEnv("masking.api_key", "NER_API_KEY")
	v.BindEnv("llm.default.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.default.base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.permissive.api_key", "PERMISSIVE_API_KEY")
	v.BindEnv("llm.permissive.base_url", "PERMISSIVE_BASE_URL")
	v.BindEnv("giphy.api_key", "GIPHY_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/newscalm.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "news_headlines")
	v.SetDefault("qdrant.dimensions", 1024)

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "memes")

	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.base_url", "https://api.jina.ai/v1")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("masking.base_url", "http://localhost:8090")
	v.SetDefault("masking.timeout", 10*time.Second)
	v.SetDefault("masking.entity_types", []string{
		"PERSON", "ORG", "GPE", "LOC", "PRODUCT", "EVENT", "WORK_OF_ART",
	})

	v.SetDefault("detox.similarity_threshold", 0.7)
	v.SetDefault("detox.max_similar_items", 5)
	v.SetDefault("detox.meme_generation_enabled", true)
	v.SetDefault("detox.meme_confidence_threshold", 0.0)
	v.SetDefault("detox.meme_style", "funny, satirical")
	v.SetDefault("detox.cache_ttl", 24*time.Hour)
	v.SetDefault("detox.max_text_length", 2000)

	v.SetDefault("llm.routing_threshold", 0.75)
	v.SetDefault("llm.default.name", "openai")
	v.SetDefault("llm.default.model", "gpt-4o-mini")
	v.SetDefault("llm.default.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.default.temperature", 0.3)
	v.SetDefault("llm.default.max_tokens", 500)
	v.SetDefault("llm.default.timeout", 60*time.Second)
	v.SetDefault("llm.permissive.name", "grok")
	v.SetDefault("llm.permissive.model", "grok-2")
	v.SetDefault("llm.permissive.base_url", "https://api.x.ai/v1")
	v.SetDefault("llm.permissive.temperature", 0.9)
	v.SetDefault("llm.permissive.max_tokens", 500)
	v.SetDefault("llm.permissive.timeout", 60*time.Second)

	v.SetDefault("giphy.base_url", "https://api.giphy.com/v1")
	v.SetDefault("giphy.rating", "pg-13")
	v.SetDefault("giphy.timeout", 15*time.Second)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_base", time.Second)

	v.SetDefault("rate_limit.process.window", time.Minute)
	v.SetDefault("rate_limit.process.limit", 5)
	v.SetDefault("rate_limit.memes.window", time.Minute)
	v.SetDefault("rate_limit.memes.limit", 10)

	v.SetDefault("worker.count", 5)
	v.SetDefault("worker.queue_size", 100)
}
