package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/mtlprog/vaultstat/internal/cache"
	"github.com/mtlprog/vaultstat/internal/config"
	"github.com/mtlprog/vaultstat/internal/earnings"
	"github.com/mtlprog/vaultstat/internal/oracle"
	"github.com/mtlprog/vaultstat/internal/subgraph"
	"github.com/mtlprog/vaultstat/internal/vault"
)

// app holds the wired earnings stack shared by every subcommand.
type app struct {
	cfg        config.Config
	eth        *ethclient.Client // nil without ETH_RPC_URL
	calculator *earnings.Calculator
	service    earnings.Service
	memory     *cache.Memory // set for the in-process response cache
	closers    []func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.EthRPCURL != "" {
		eth, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
		if err != nil {
			return nil, fmt.Errorf("dialing ethereum rpc: %w", err)
		}
		a.eth = eth
		a.closers = append(a.closers, eth.Close)
	}

	sg := subgraph.NewClient(cfg.SubgraphURL, cfg.SubgraphRetryMax, cfg.SubgraphRetryBaseDelay, limiter(cfg.SubgraphRPS))

	var snapshots earnings.SnapshotSource = sg
	if cfg.SnapshotSource == config.SnapshotSourceChain {
		if a.eth == nil {
			return nil, errors.New("SNAPSHOT_SOURCE=chain requires ETH_RPC_URL")
		}
		snapshots = vault.NewLiveSnapshots(a.eth, sg, cfg.FanoutLimit)
	}

	prices, err := a.priceSource()
	if err != nil {
		return nil, err
	}

	lister, err := a.vaultLister()
	if err != nil {
		return nil, err
	}

	a.calculator = earnings.NewCalculator(snapshots, sg, prices, lister, earnings.Options{
		Concurrency:        cfg.FanoutLimit,
		ImplausibleCeiling: cfg.ImplausibleCeiling,
		AllOrNothing:       cfg.AllOrNothing,
		ItemTimeout:        cfg.ItemTimeout,
	})

	a.service, err = a.responseCache(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("earnings stack ready",
		"network", cfg.Network,
		"prices", cfg.PriceSource,
		"snapshots", cfg.SnapshotSource,
		"vaults", cfg.VaultListSource,
		"cache", cfg.CacheBackend,
	)
	return a, nil
}

func (a *app) priceSource() (oracle.Source, error) {
	var src oracle.Source
	switch a.cfg.PriceSource {
	case config.PriceSourceCoinGecko:
		src = oracle.NewCoinGeckoClient(a.cfg.CoinGeckoURL, a.cfg.CoinGeckoPlatform, a.cfg.CoinGeckoDelay, a.cfg.CoinGeckoRetryMax, limiter(a.cfg.CoinGeckoRPS))
	default:
		if a.eth == nil {
			return nil, errors.New("PRICE_SOURCE=lens requires ETH_RPC_URL")
		}
		lens, err := oracle.NewLensOracle(a.eth, a.cfg.LensOracleAddress)
		if err != nil {
			return nil, fmt.Errorf("creating lens oracle: %w", err)
		}
		src = lens
	}
	if a.cfg.PriceCacheTTL > 0 {
		src = oracle.NewCached(src, a.cfg.PriceCacheTTL)
	}
	return src, nil
}

// vaultLister returns nil when the protocol pass should cover every indexed vault.
func (a *app) vaultLister() (earnings.VaultLister, error) {
	switch a.cfg.VaultListSource {
	case config.VaultListStatic:
		if len(a.cfg.VaultAddresses) == 0 {
			slog.Warn("VAULT_LIST_SOURCE=static with empty VAULT_ADDRESSES, protocol reports will be empty")
		}
		return vault.StaticRegistry(a.cfg.VaultAddresses), nil
	case config.VaultListRegistry:
		if a.eth == nil {
			return nil, errors.New("VAULT_LIST_SOURCE=registry requires ETH_RPC_URL")
		}
		reg, err := vault.NewChainRegistry(a.eth, a.cfg.RegistryAddress)
		if err != nil {
			return nil, fmt.Errorf("creating vault registry: %w", err)
		}
		return reg, nil
	default:
		return nil, nil
	}
}

func (a *app) responseCache(ctx context.Context) (earnings.Service, error) {
	switch a.cfg.CacheBackend {
	case config.CacheNone:
		return a.calculator, nil
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB, "vaultstat:"+a.cfg.Network+":")
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := r.Close(); err != nil {
				slog.Warn("closing redis", "error", err)
			}
		})
		return earnings.NewCached(a.calculator, r, a.cfg.ResponseCacheTTL), nil
	default:
		a.memory = cache.NewMemory()
		return earnings.NewCached(a.calculator, a.memory, a.cfg.ResponseCacheTTL), nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// limiter returns nil for a non-positive rate, which disables limiting.
func limiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
