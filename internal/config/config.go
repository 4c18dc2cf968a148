package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/etherlinkx/bridge-engine/pkg/config"
)

// Config holds the runtime configuration for the bridge routing engine.
// It supports environment-based initialization, with sensible defaults.
type Config struct {
	ServiceName string // e.g. "bridge-engine"
	Env         string // e.g. "dev", "uat", "prod"
	LogLevel    string // "debug", "info", etc.
	Port        int    // HTTP API port
	MetricsPort int    // Prometheus /metrics port

	DatabaseURL string // optional; empty disables Postgres history
	PGMaxConns  int32
	PGMinConns  int32
	RedisAddr   string // e.g. localhost:6379
	RedisDB     int
	RedisPass   string
	NATSURL     string // e.g. nats://localhost:4222
	AMQPURL     string // optional; empty disables the command consumer
	AWSRegion   string // for the secrets resolver

	// Quote aggregation tunables. Defaults derive from the product's
	// observed behavior: 30s quote staleness window, short per-provider
	// deadlines so one slow venue cannot stall the fan-out.
	AdapterTimeout     time.Duration // per-provider quote call budget
	AggregateTimeout   time.Duration // overall fan-out budget
	QuoteTTL           time.Duration
	CacheSweepInterval time.Duration

	// Transaction lifecycle tunables.
	ConfirmationTimeout time.Duration // per on-chain confirmation wait
	StatusPollInterval  time.Duration // destination delivery poll cadence
	RetentionWindow     time.Duration // terminal transaction retention
	MaxTxPerAccount     int           // history cap per account
	StoreSweepInterval  time.Duration

	// Messaging.
	OutboundSubject string // NATS subject prefix for lifecycle events
	CommandQueue    string // AMQP queue prefix for inbound commands

	// Provider status feed (websocket). Empty URL disables the feed;
	// the tracker falls back to polling.
	FeedURL string

	// On-chain access. RPCEndpoints maps chain id to JSON-RPC URL, e.g.
	// "1=https://rpc.example/eth,10=https://rpc.example/op".
	RPCEndpoints  map[int64]string
	RelayerURL    string
	RelayerAPIKey string

	// Spenders maps provider name to its router contract, used for the
	// allowance check. Format "relayx=0x...,hopline=0x...".
	Spenders map[string]string

	// Provider endpoints. API keys come from the secrets resolver when an
	// AWS region is configured, or from these env fallbacks.
	RelayXBaseURL   string
	RelayXAPIKey    string
	HoplineBaseURL  string
	StargridBaseURL string
	StargridAPIKey  string

	// SupportedChains limits which chains adapters quote for.
	SupportedChains []int64
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName: pkgconfig.GetEnv("SERVICE_NAME", "bridge-engine"),
		Env:         pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:    pkgconfig.GetEnv("LOG_LEVEL", "info"),
		Port:        pkgconfig.GetEnvInt("PORT", 9040),
		MetricsPort: pkgconfig.GetEnvInt("METRICS_PORT", 9041),

		DatabaseURL: pkgconfig.GetEnv("DATABASE_URL", ""),
		PGMaxConns:  int32(pkgconfig.GetEnvInt("PG_MAX_CONNS", 10)),
		PGMinConns:  int32(pkgconfig.GetEnvInt("PG_MIN_CONNS", 2)),
		RedisAddr:   pkgconfig.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     pkgconfig.GetEnvInt("REDIS_DB", 0),
		RedisPass:   pkgconfig.GetEnv("REDIS_PASS", ""),
		NATSURL:     pkgconfig.GetEnv("NATS_URL", "nats://localhost:4222"),
		AMQPURL:     pkgconfig.GetEnv("AMQP_URL", ""),
		AWSRegion:   pkgconfig.GetEnv("AWS_REGION", "us-east-2"),

		AdapterTimeout:     pkgconfig.GetEnvDuration("ADAPTER_TIMEOUT", 5*time.Second),
		AggregateTimeout:   pkgconfig.GetEnvDuration("AGGREGATE_TIMEOUT", 8*time.Second),
		QuoteTTL:           pkgconfig.GetEnvDuration("QUOTE_TTL", 30*time.Second),
		CacheSweepInterval: pkgconfig.GetEnvDuration("CACHE_SWEEP_INTERVAL", 1*time.Minute),

		ConfirmationTimeout: pkgconfig.GetEnvDuration("CONFIRMATION_TIMEOUT", 2*time.Minute),
		StatusPollInterval:  pkgconfig.GetEnvDuration("STATUS_POLL_INTERVAL", 15*time.Second),
		RetentionWindow:     pkgconfig.GetEnvDuration("RETENTION_WINDOW", 24*time.Hour),
		MaxTxPerAccount:     pkgconfig.GetEnvInt("MAX_TX_PER_ACCOUNT", 50),
		StoreSweepInterval:  pkgconfig.GetEnvDuration("STORE_SWEEP_INTERVAL", 5*time.Minute),

		OutboundSubject: pkgconfig.GetEnv("OUTBOUND_SUBJECT", "evt.bridge"),
		CommandQueue:    pkgconfig.GetEnv("COMMAND_QUEUE", "inbound.bridge"),

		FeedURL: pkgconfig.GetEnv("FEED_URL", ""),

		RPCEndpoints:  parseChainMap(pkgconfig.GetEnv("RPC_ENDPOINTS", "")),
		RelayerURL:    pkgconfig.GetEnv("RELAYER_URL", "http://localhost:9050"),
		RelayerAPIKey: pkgconfig.GetEnv("RELAYER_API_KEY", ""),

		Spenders: parseStringMap(pkgconfig.GetEnv("PROVIDER_SPENDERS", "")),

		RelayXBaseURL:   pkgconfig.GetEnv("RELAYX_BASE_URL", "https://api.relayx.exchange"),
		RelayXAPIKey:    pkgconfig.GetEnv("RELAYX_API_KEY", ""),
		HoplineBaseURL:  pkgconfig.GetEnv("HOPLINE_BASE_URL", "https://api.hopline.io"),
		StargridBaseURL: pkgconfig.GetEnv("STARGRID_BASE_URL", "https://api.stargrid.finance"),
		StargridAPIKey:  pkgconfig.GetEnv("STARGRID_API_KEY", ""),

		SupportedChains: parseChainList(pkgconfig.GetEnv("SUPPORTED_CHAINS", "1,10,42161,8453,137")),
	}
}

// parseChainMap parses "1=url,10=url" into a chain id keyed map.
func parseChainMap(raw string) map[int64]string {
	out := make(map[int64]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil {
			continue
		}
		out[id] = strings.TrimSpace(v)
	}
	return out
}

// parseStringMap parses "name=value,name=value".
func parseStringMap(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

func parseChainList(raw string) []int64 {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
