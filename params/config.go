package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Market struct {
	Symbol       string
	TickSize     int64
	LotSize      int64
	MaxOrderSize int64
}

type Feed struct {
	// Replace publishes a full snapshot on every change instead of deltas.
	Replace bool
	// BacklogLimit is how many undelivered messages a consumer may queue
	// before they are conflated into one.
	BacklogLimit int
}

type Engine struct {
	QueueSize  int
	TapeBuffer int
}

type Node struct {
	APIAddr string
	LogFile string
	Verbose bool
	// TradeDBPath is the pebble directory for the trade tape. Empty keeps
	// trades in memory only.
	TradeDBPath string
}

type Kafka struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type Feeder struct {
	Enabled bool
	Mode    string // default|high
}

type Config struct {
	Market Market
	Feed   Feed
	Engine Engine
	Node   Node
	Kafka  Kafka
	Feeder Feeder
}

func Default() Config {
	return Config{
		Market: Market{
			Symbol:       "HYPL-USDC",
			TickSize:     1,
			LotSize:      1,
			MaxOrderSize: 1_000_000,
		},
		Feed: Feed{
			Replace:      false,
			BacklogLimit: 64,
		},
		Engine: Engine{
			QueueSize:  1024,
			TapeBuffer: 4096,
		},
		Node: Node{
			APIAddr:     ":8080",
			LogFile:     "data/node.log",
			TradeDBPath: "data/trades",
		},
		Kafka: Kafka{
			Brokers: []string{"localhost:9092"},
			Topic:   "hyperbook.book",
		},
		Feeder: Feeder{
			Mode: "default",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Market.Symbol = getEnv("MARKET_SYMBOL", cfg.Market.Symbol)
	cfg.Market.TickSize = getInt64("MARKET_TICK_SIZE", cfg.Market.TickSize)
	cfg.Market.LotSize = getInt64("MARKET_LOT_SIZE", cfg.Market.LotSize)
	cfg.Market.MaxOrderSize = getInt64("MARKET_MAX_ORDER_SIZE", cfg.Market.MaxOrderSize)

	cfg.Feed.Replace = getBool("FEED_REPLACE_MODE", cfg.Feed.Replace)
	cfg.Feed.BacklogLimit = int(getInt64("FEED_BACKLOG_LIMIT", int64(cfg.Feed.BacklogLimit)))

	cfg.Engine.QueueSize = int(getInt64("ENGINE_QUEUE_SIZE", int64(cfg.Engine.QueueSize)))
	cfg.Engine.TapeBuffer = int(getInt64("TAPE_BUFFER", int64(cfg.Engine.TapeBuffer)))

	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.Verbose = getBool("VERBOSE", cfg.Node.Verbose)
	if path, ok := os.LookupEnv("TRADE_DB_PATH"); ok {
		cfg.Node.TradeDBPath = path // empty selects the in-memory store
	}

	cfg.Kafka.Enabled = getBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
	// Brokers from comma-separated list, e.g. "kafka1:9092,kafka2:9092"
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}

	cfg.Feeder.Enabled = getBool("ENABLE_FEEDER", cfg.Feeder.Enabled)
	cfg.Feeder.Mode = getEnv("FEEDER_MODE", cfg.Feeder.Mode)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Malformed numbers keep the default.
func getInt64(key string, defaultValue int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
