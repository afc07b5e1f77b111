package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

// StorageConfig selects the document store backend. Driver is one of
// "sqlite", "postgres" or "memory".
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider         string
	Model            string
	APIKey           string
	Temperature      float32
	MaxTokens        int
	TimeoutSec       int
	EmbeddingModel   string
	EmbeddingDim     int
	EmbeddingVersion string
}

// PipelineConfig holds the knobs of the document intelligence pipeline.
type PipelineConfig struct {
	ProcessingCharCap int
	PreviewLength     int
	AnswerTopK        int
	ExcerptLength     int
	LexicalWeight     float64
	SemanticWeight    float64
	BackfillLimit     int
	SeniorYears       int
	MidYears          int
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
	viper.AddConfigPath("/etc/hr-assistant")

	viper.SetEnvPrefix("HR_ASSISTANT")
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
	viper.SetDefault("server.bodyLimit", 20971520)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlitePath", "./data/hrdocs.db")
	viper.SetDefault("storage.postgresDSN", "postgres://localhost:5432/hrdocs")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)
	viper.SetDefault("llm.embeddingVersion", "v1")

	viper.SetDefault("pipeline.processingCharCap", 8000)
	viper.SetDefault("pipeline.previewLength", 500)
	viper.SetDefault("pipeline.answerTopK", 5)
	viper.SetDefault("pipeline.excerptLength", 600)
	viper.SetDefault("pipeline.lexicalWeight", 0.4)
	viper.SetDefault("pipeline.semanticWeight", 0.6)
	viper.SetDefault("pipeline.backfillLimit", 25)
	viper.SetDefault("pipeline.seniorYears", 6)
	viper.SetDefault("pipeline.midYears", 2)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
