package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Milvus     MilvusConfig
	Redis      RedisConfig
	Pipeline   PipelineConfig
	Matcher    MatcherConfig
	Enrichment EnrichmentConfig
	Stats      StatsConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        int
	WriteTimeout       int
	RateLimitPerMinute int
	MaxBodySize        int
	Development        bool
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type PipelineConfig struct {
	IntervalSec int
	RunOnStart  bool
}

type MatcherConfig struct {
	BatchSize        int
	Workers          int
	ChunkAggregation string
	ChunkTopK        int
	PreFilterScore   float64
	NoisyCategories  []string
}

type EnrichmentConfig struct {
	BatchSize         int
	Tier1Threshold    float64
	FallbackThreshold float64
}

type StatsConfig struct {
	WindowDays int
	MinSamples int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/anchorwatch")

	viper.SetEnvPrefix("ANCHORWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.rateLimitPerMinute", 120)
	viper.SetDefault("server.maxBodySize", 32*1024*1024)
	viper.SetDefault("server.development", false)

	viper.SetDefault("sqlite.path", "./data/anchorwatch.db")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "research_vectors")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 3600)

	viper.SetDefault("pipeline.intervalSec", 900)
	viper.SetDefault("pipeline.runOnStart", true)

	viper.SetDefault("matcher.batchSize", 50)
	viper.SetDefault("matcher.workers", 4)
	viper.SetDefault("matcher.chunkAggregation", "topk_mean")
	viper.SetDefault("matcher.chunkTopK", 5)
	viper.SetDefault("matcher.preFilterScore", 0.25)
	viper.SetDefault("matcher.noisyCategories", []string{"News Media", "Misc. Research"})

	viper.SetDefault("enrichment.batchSize", 500)
	viper.SetDefault("enrichment.tier1Threshold", 0.20)
	viper.SetDefault("enrichment.fallbackThreshold", 0.25)

	viper.SetDefault("stats.windowDays", 30)
	viper.SetDefault("stats.minSamples", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
