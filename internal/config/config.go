package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

// Price sources.
const (
	PriceSourceLens      = "lens"
	PriceSourceCoinGecko = "coingecko"
)

// Snapshot sources.
const (
	SnapshotSourceSubgraph = "subgraph"
	SnapshotSourceChain    = "chain"
)

// Vault list sources for the protocol pass.
const (
	VaultListAll      = "all"
	VaultListStatic   = "static"
	VaultListRegistry = "registry"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Network string

	EthRPCURL              string
	SubgraphURL            string
	SubgraphRetryMax       int
	SubgraphRetryBaseDelay time.Duration
	SubgraphRPS            float64

	CoinGeckoURL      string
	CoinGeckoPlatform string
	CoinGeckoDelay    time.Duration
	CoinGeckoRetryMax int
	CoinGeckoRPS      float64

	PriceSource       string
	LensOracleAddress common.Address
	PriceCacheTTL     time.Duration

	SnapshotSource  string
	VaultListSource string
	RegistryAddress common.Address
	VaultAddresses  []common.Address

	FanoutLimit        int
	ImplausibleCeiling fixedpoint.Amount
	ItemTimeout        time.Duration
	AllOrNothing       bool

	CacheBackend     string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ResponseCacheTTL time.Duration

	DatabaseURL          string
	ReportWorkerInterval time.Duration
	HTTPPort             string
	AdminAPIKey          string

	GoogleSheetsID        string
	GoogleCredentialsJSON string
	XLSXExportPath        string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Network: envOrDefault("NETWORK", "mainnet"),

		EthRPCURL:              envOrDefault("ETH_RPC_URL", ""),
		SubgraphURL:            envOrDefault("SUBGRAPH_URL", "https://api.thegraph.com/subgraphs/name/rareweasel/yearn-vaults-v2-subgraph-mainnet"),
		SubgraphRetryMax:       envOrDefaultInt("SUBGRAPH_RETRY_MAX", 5),
		SubgraphRetryBaseDelay: envOrDefaultDuration("SUBGRAPH_RETRY_BASE_DELAY", 2*time.Second),
		SubgraphRPS:            envOrDefaultFloat("SUBGRAPH_RPS", 5),

		CoinGeckoURL:      envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoPlatform: envOrDefault("COINGECKO_PLATFORM", "ethereum"),
		CoinGeckoDelay:    envOrDefaultDuration("COINGECKO_DELAY", 6*time.Second),
		CoinGeckoRetryMax: envOrDefaultInt("COINGECKO_RETRY_MAX", 5),
		CoinGeckoRPS:      envOrDefaultFloat("COINGECKO_RPS", 0.5),

		PriceSource:       envOrDefaultChoice("PRICE_SOURCE", PriceSourceLens, PriceSourceLens, PriceSourceCoinGecko),
		LensOracleAddress: envOrDefaultAddress("LENS_ORACLE_ADDRESS", "0x83d95e0D5f402511dB06817Aff3f9eA88224B030"),
		PriceCacheTTL:     envOrDefaultDuration("PRICE_CACHE_TTL", 5*time.Minute),

		SnapshotSource:  envOrDefaultChoice("SNAPSHOT_SOURCE", SnapshotSourceSubgraph, SnapshotSourceSubgraph, SnapshotSourceChain),
		VaultListSource: envOrDefaultChoice("VAULT_LIST_SOURCE", VaultListAll, VaultListAll, VaultListStatic, VaultListRegistry),
		RegistryAddress: envOrDefaultAddress("REGISTRY_ADDRESS", "0x50c1a2eA0a861A967D9d0FFE2AE4012c2E053804"),
		VaultAddresses:  envAddresses("VAULT_ADDRESSES"),

		FanoutLimit:        envOrDefaultInt("FANOUT_LIMIT", 8),
		ImplausibleCeiling: envOrDefaultUsd("IMPLAUSIBLE_EARNINGS_CEILING_USD", "1000000000"),
		ItemTimeout:        envOrDefaultDuration("ITEM_TIMEOUT", 30*time.Second),
		AllOrNothing:       envOrDefaultBool("ALL_OR_NOTHING", false),

		CacheBackend:     envOrDefaultChoice("CACHE_BACKEND", CacheMemory, CacheMemory, CacheRedis, CacheNone),
		RedisAddr:        envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    envOrDefault("REDIS_PASSWORD", ""),
		RedisDB:          envOrDefaultInt("REDIS_DB", 0),
		ResponseCacheTTL: envOrDefaultDuration("RESPONSE_CACHE_TTL", 5*time.Minute),

		DatabaseURL:          envOrDefaultWarn("DATABASE_URL", ""),
		ReportWorkerInterval: envOrDefaultDuration("REPORT_WORKER_INTERVAL", 24*time.Hour),
		HTTPPort:             envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:          envOrDefault("ADMIN_API_KEY", ""),

		GoogleSheetsID:        envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		XLSXExportPath:        envOrDefault("XLSX_EXPORT_PATH", ""),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			slog.Warn("invalid number env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultChoice(key, defaultVal string, allowed ...string) string {
	v := strings.ToLower(envOrDefault(key, defaultVal))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	slog.Warn("unsupported env var value, using default", "key", key, "value", v, "allowed", allowed, "default", defaultVal)
	return defaultVal
}

func envOrDefaultAddress(key, defaultVal string) common.Address {
	v := envOrDefault(key, defaultVal)
	if !common.IsHexAddress(v) {
		slog.Warn("invalid address env var, using default", "key", key, "value", v, "default", defaultVal)
		return common.HexToAddress(defaultVal)
	}
	return common.HexToAddress(v)
}

// envAddresses parses a comma-separated address list, skipping invalid entries.
func envAddresses(key string) []common.Address {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []common.Address
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !common.IsHexAddress(part) {
			slog.Warn("skipping invalid address in env var", "key", key, "value", part)
			continue
		}
		out = append(out, common.HexToAddress(part))
	}
	return out
}

func envOrDefaultUsd(key, defaultVal string) fixedpoint.Amount {
	def, _ := fixedpoint.FromDecimalString(defaultVal, fixedpoint.USDDecimals)
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	a, err := fixedpoint.FromDecimalString(v, fixedpoint.USDDecimals)
	if err != nil || a.Sign() <= 0 {
		slog.Warn("invalid USD amount env var, using default", "key", key, "value", v, "default", defaultVal)
		return def
	}
	return a
}
