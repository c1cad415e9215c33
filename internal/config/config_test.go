package config

import (
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might affect defaults
	for _, key := range []string{
		"SUBGRAPH_URL", "DATABASE_URL", "COINGECKO_URL", "HTTP_PORT", "SUBGRAPH_RETRY_MAX",
		"PRICE_SOURCE", "SNAPSHOT_SOURCE", "VAULT_ADDRESSES", "FANOUT_LIMIT",
		"IMPLAUSIBLE_EARNINGS_CEILING_USD", "CACHE_BACKEND", "ALL_OR_NOTHING",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Network != "mainnet" {
		t.Errorf("Network = %q, want mainnet", cfg.Network)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.CoinGeckoURL != "https://api.coingecko.com/api/v3" {
		t.Errorf("CoinGeckoURL = %q, want default", cfg.CoinGeckoURL)
	}
	if cfg.SubgraphRetryMax != 5 {
		t.Errorf("SubgraphRetryMax = %d, want 5", cfg.SubgraphRetryMax)
	}
	if cfg.SubgraphRetryBaseDelay != 2*time.Second {
		t.Errorf("SubgraphRetryBaseDelay = %v, want 2s", cfg.SubgraphRetryBaseDelay)
	}
	if cfg.PriceSource != PriceSourceLens {
		t.Errorf("PriceSource = %q, want lens", cfg.PriceSource)
	}
	if cfg.SnapshotSource != SnapshotSourceSubgraph {
		t.Errorf("SnapshotSource = %q, want subgraph", cfg.SnapshotSource)
	}
	if cfg.CacheBackend != CacheMemory {
		t.Errorf("CacheBackend = %q, want memory", cfg.CacheBackend)
	}
	if cfg.FanoutLimit != 8 {
		t.Errorf("FanoutLimit = %d, want 8", cfg.FanoutLimit)
	}
	if got := cfg.ImplausibleCeiling.ToDecimalString(); got != "1000000000.000000" {
		t.Errorf("ImplausibleCeiling = %s, want 1000000000.000000", got)
	}
	if cfg.AllOrNothing {
		t.Error("AllOrNothing = true, want false")
	}
	if len(cfg.VaultAddresses) != 0 {
		t.Errorf("VaultAddresses = %v, want empty", cfg.VaultAddresses)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SUBGRAPH_URL", "https://indexer.example.com/graphql")
	t.Setenv("DATABASE_URL", "postgres://localhost/testdb")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SUBGRAPH_RETRY_MAX", "10")
	t.Setenv("SUBGRAPH_RETRY_BASE_DELAY", "5s")
	t.Setenv("SUBGRAPH_RPS", "2.5")
	t.Setenv("PRICE_SOURCE", "CoinGecko")
	t.Setenv("SNAPSHOT_SOURCE", "chain")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("IMPLAUSIBLE_EARNINGS_CEILING_USD", "5000.5")
	t.Setenv("ALL_OR_NOTHING", "true")
	t.Setenv("VAULT_ADDRESSES", "0x00000000000000000000000000000000000000a1, 0x00000000000000000000000000000000000000a2")

	cfg := Load()

	if cfg.SubgraphURL != "https://indexer.example.com/graphql" {
		t.Errorf("SubgraphURL = %q, want override", cfg.SubgraphURL)
	}
	if cfg.DatabaseURL != "postgres://localhost/testdb" {
		t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
	if cfg.SubgraphRetryMax != 10 {
		t.Errorf("SubgraphRetryMax = %d, want 10", cfg.SubgraphRetryMax)
	}
	if cfg.SubgraphRetryBaseDelay != 5*time.Second {
		t.Errorf("SubgraphRetryBaseDelay = %v, want 5s", cfg.SubgraphRetryBaseDelay)
	}
	if cfg.SubgraphRPS != 2.5 {
		t.Errorf("SubgraphRPS = %v, want 2.5", cfg.SubgraphRPS)
	}
	if cfg.PriceSource != PriceSourceCoinGecko {
		t.Errorf("PriceSource = %q, want coingecko", cfg.PriceSource)
	}
	if cfg.SnapshotSource != SnapshotSourceChain {
		t.Errorf("SnapshotSource = %q, want chain", cfg.SnapshotSource)
	}
	if cfg.CacheBackend != CacheRedis {
		t.Errorf("CacheBackend = %q, want redis", cfg.CacheBackend)
	}
	if got := cfg.ImplausibleCeiling.ToDecimalString(); got != "5000.500000" {
		t.Errorf("ImplausibleCeiling = %s, want 5000.500000", got)
	}
	if !cfg.AllOrNothing {
		t.Error("AllOrNothing = false, want true")
	}
	want := []common.Address{
		common.HexToAddress("0xa1"),
		common.HexToAddress("0xa2"),
	}
	if len(cfg.VaultAddresses) != len(want) {
		t.Fatalf("VaultAddresses len = %d, want %d", len(cfg.VaultAddresses), len(want))
	}
	for i := range want {
		if cfg.VaultAddresses[i] != want[i] {
			t.Errorf("VaultAddresses[%d] = %s, want %s", i, cfg.VaultAddresses[i].Hex(), want[i].Hex())
		}
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("SUBGRAPH_RETRY_MAX", "not-a-number")
	t.Setenv("SUBGRAPH_RETRY_BASE_DELAY", "invalid-duration")
	t.Setenv("PRICE_SOURCE", "oracle-of-delphi")
	t.Setenv("LENS_ORACLE_ADDRESS", "0xnothex")
	t.Setenv("IMPLAUSIBLE_EARNINGS_CEILING_USD", "-1")
	t.Setenv("COINGECKO_RPS", "fast")
	t.Setenv("VAULT_ADDRESSES", "bogus,0x00000000000000000000000000000000000000a1")

	cfg := Load()

	if cfg.SubgraphRetryMax != 5 {
		t.Errorf("SubgraphRetryMax = %d, want default 5 on invalid input", cfg.SubgraphRetryMax)
	}
	if cfg.SubgraphRetryBaseDelay != 2*time.Second {
		t.Errorf("SubgraphRetryBaseDelay = %v, want default 2s on invalid input", cfg.SubgraphRetryBaseDelay)
	}
	if cfg.PriceSource != PriceSourceLens {
		t.Errorf("PriceSource = %q, want default lens on invalid input", cfg.PriceSource)
	}
	if cfg.LensOracleAddress != common.HexToAddress("0x83d95e0D5f402511dB06817Aff3f9eA88224B030") {
		t.Errorf("LensOracleAddress = %s, want default on invalid input", cfg.LensOracleAddress.Hex())
	}
	if got := cfg.ImplausibleCeiling.ToDecimalString(); got != "1000000000.000000" {
		t.Errorf("ImplausibleCeiling = %s, want default on invalid input", got)
	}
	if cfg.CoinGeckoRPS != 0.5 {
		t.Errorf("CoinGeckoRPS = %v, want default 0.5 on invalid input", cfg.CoinGeckoRPS)
	}
	if len(cfg.VaultAddresses) != 1 {
		t.Errorf("VaultAddresses = %v, want only the valid entry", cfg.VaultAddresses)
	}
}
