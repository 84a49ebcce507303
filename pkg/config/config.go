package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Ollama    OllamaConfig
	Upload    UploadConfig
	Chat      ChatConfig
	Search    SearchConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type OllamaConfig struct {
	BaseURL          string
	ChatModel        string
	VisionModel      string
	EmbeddingModel   string
	TimeoutSec       int
	VisionTimeoutSec int
}

type UploadConfig struct {
	Dir         string
	MaxFileSize int64
}

type ChatConfig struct {
	HistoryLimit        int
	ContextDocuments    int
	ContextContentLimit int
}

type SearchConfig struct {
	ExcerptLength int
	DefaultLimit  int
}

type RateLimitConfig struct {
	ChatPerMinute    int
	UploadsPerMinute int
	APIPerWindow     int
	APIWindowMinutes int
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
	viper.AddConfigPath("/etc/vivi")

	viper.SetEnvPrefix("VIVI")
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
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/vivi.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("ollama.baseURL", "http://localhost:11434")
	viper.SetDefault("ollama.chatModel", "qwen3:0.6b")
	viper.SetDefault("ollama.visionModel", "qwen2.5-vl:3b")
	viper.SetDefault("ollama.embeddingModel", "nomic-embed-text")
	viper.SetDefault("ollama.timeoutSec", 30)
	viper.SetDefault("ollama.visionTimeoutSec", 60)

	viper.SetDefault("upload.dir", "./uploads/documents")
	viper.SetDefault("upload.maxFileSize", 10*1024*1024)

	viper.SetDefault("chat.historyLimit", 10)
	viper.SetDefault("chat.contextDocuments", 3)
	viper.SetDefault("chat.contextContentLimit", 500)

	viper.SetDefault("search.excerptLength", 200)
	viper.SetDefault("search.defaultLimit", 10)

	viper.SetDefault("ratelimit.chatPerMinute", 10)
	viper.SetDefault("ratelimit.uploadsPerMinute", 5)
	viper.SetDefault("ratelimit.apiPerWindow", 100)
	viper.SetDefault("ratelimit.apiWindowMinutes", 15)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
