package vars

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"contractx/types"
)

// GetEnv 获取环境变量，如果不存在则返回默认值
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func GetEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func GetEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

// Config 环境变量配置（支持 Docker 部署，本地开发可放在 .env）
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	// LLM
	LLMProvider   string
	OllamaPath    string
	ChatModel     string
	EmbedModel    string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LLMTimeout    time.Duration

	// PG
	PGUser string
	PGPwd  string
	PGDB   string
	PGHost string
	PGPort string

	StoreBackend  string
	VectorBackend string
	MilvusAddr    string
	Collection    string
	ESAddr        string
	ESIndex       string

	// 抽取与重试
	ExtractConcurrency int
	ExtractRPS         float64
	ExtractBurst       int
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	SummaryMaxChars    int

	// 检索
	RetrievalK    int
	GraphMaxDepth int

	// 定时任务
	BufferTTL time.Duration
	SweepSpec string
	InboxDir  string
	InboxSpec string
}

// Load 先加载 .env（不存在则忽略），再读环境变量
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:  GetEnv("HTTP_ADDR", ":8081"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "text"),

		LLMProvider:   GetEnv("LLM_PROVIDER", ProviderOllama),
		OllamaPath:    GetEnv("OLLAMA_PATH", "http://localhost:11434"),
		ChatModel:     GetEnv("CHAT_MODEL", QWEN7B),
		EmbedModel:    GetEnv("EMBED_MODEL", NOMIC),
		OpenAIKey:     GetEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: GetEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   GetEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMTimeout:    GetEnvDuration("LLM_TIMEOUT", 120*time.Second),

		PGUser: GetEnv("PGUSER", "postgres"),
		PGPwd:  GetEnv("PGPWD", "postgres"),
		PGDB:   GetEnv("PGDB", "contractx"),
		PGHost: GetEnv("PGHOST", "localhost"),
		PGPort: GetEnv("PGPORT", "5432"),

		StoreBackend:  GetEnv("STORE_BACKEND", BackendPostgres),
		VectorBackend: GetEnv("VECTOR_BACKEND", BackendMilvus),
		MilvusAddr:    GetEnv("MILVUSADDR", "127.0.0.1:19530"),
		Collection:    GetEnv("COLLECTION", COLLECTION),
		ESAddr:        GetEnv("ESADDR", "http://localhost:9200"),
		ESIndex:       GetEnv("ES_INDEX", ESINDEX),

		ExtractConcurrency: GetEnvInt("EXTRACT_CONCURRENCY", 2),
		ExtractRPS:         GetEnvFloat("EXTRACT_RPS", 1),
		ExtractBurst:       GetEnvInt("EXTRACT_BURST", 1),
		RetryMaxAttempts:   GetEnvInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:     GetEnvDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:      GetEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
		SummaryMaxChars:    GetEnvInt("SUMMARY_MAX_CHARS", 2000),

		RetrievalK:    GetEnvInt("RETRIEVAL_K", 8),
		GraphMaxDepth: GetEnvInt("GRAPH_MAX_DEPTH", 2),

		BufferTTL: GetEnvDuration("BUFFER_TTL", 30*time.Minute),
		SweepSpec: GetEnv("SWEEP_SPEC", "@every 5m"),
		InboxDir:  GetEnv("INBOX_DIR", ""),
		InboxSpec: GetEnv("INBOX_SPEC", "@every 1m"),
	}
}

// ModelInfo 健康检查和问答概况里展示的配置
func (c Config) ModelInfo() types.ModelInfo {
	chatModel := c.ChatModel
	if c.LLMProvider == ProviderOpenAI {
		chatModel = c.OpenAIModel
	}
	return types.ModelInfo{
		Provider:      c.LLMProvider,
		ChatModel:     chatModel,
		EmbedModel:    c.EmbedModel,
		StoreBackend:  c.StoreBackend,
		VectorBackend: c.VectorBackend,
		RetrievalK:    c.RetrievalK,
		GraphMaxDepth: c.GraphMaxDepth,
	}
}

// DSN gorm postgres 连接串
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.PGHost, c.PGUser, c.PGPwd, c.PGDB, c.PGPort)
}

func (c Config) Validate() error {
	var errs []string
	if c.ExtractConcurrency <= 0 {
		errs = append(errs, "EXTRACT_CONCURRENCY must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		errs = append(errs, "RETRY_MAX_ATTEMPTS must be positive")
	}
	if c.RetrievalK <= 0 {
		errs = append(errs, "RETRIEVAL_K must be positive")
	}
	if c.GraphMaxDepth < 0 || c.GraphMaxDepth > 2 {
		errs = append(errs, "GRAPH_MAX_DEPTH must be between 0 and 2")
	}
	switch c.LLMProvider {
	case ProviderOllama:
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			errs = append(errs, "OPENAI_API_KEY is required for LLM_PROVIDER=openai")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	switch c.VectorBackend {
	case BackendMilvus, BackendES, BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
