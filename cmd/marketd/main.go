package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftsettle/config"
	"nftsettle/native/access"
	"nftsettle/native/assets"
	"nftsettle/native/auction"
	"nftsettle/native/common"
	"nftsettle/native/fees"
	"nftsettle/native/ledger"
	"nftsettle/native/market"
	"nftsettle/observability/logging"
	"nftsettle/rpc"
	"nftsettle/storage"
)

const (
	jwtSecretEnv = "MARKETD_ADMIN_JWT_SECRET"
	envEnv       = "MARKETD_ENV"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memState := flag.Bool("mem", false, "DEV ONLY: keep settlement state in memory instead of the data directory")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(os.Getenv(envEnv))
	if env == "" {
		env = cfg.Env
	}
	logger := logging.Setup("marketd", env, cfg.LogPath)

	var db storage.Database
	if *memState {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	state, err := storage.OpenState(db)
	if err != nil {
		panic(fmt.Sprintf("Failed to load settlement state: %v", err))
	}

	server, err := wire(cfg, state, logger)
	if err != nil {
		logger.Error("Failed to wire settlement engines", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		logger.Error("RPC server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("marketd stopped")
}

// wire builds the engine graph from configuration and restores any
// admin-mutated fee and role snapshots committed since the config file was
// written.
func wire(cfg *config.Config, state *storage.State, logger *slog.Logger) (*rpc.Server, error) {
	escrow, err := cfg.Escrow()
	if err != nil {
		return nil, err
	}
	feeSink, err := cfg.FeeSink()
	if err != nil {
		return nil, err
	}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		return nil, err
	}
	admin, err := cfg.AdminAddress()
	if err != nil {
		return nil, err
	}
	platformToken, hasPlatform, err := cfg.Platform()
	if err != nil {
		return nil, err
	}

	coinBps, tokenBps := cfg.CoinFeeBps, cfg.TokenFeeBps
	if snapshot, ok, err := state.FeesGet(); err != nil {
		return nil, err
	} else if ok {
		coinBps, tokenBps = snapshot.CoinBps, snapshot.TokenBps
		if sink, err := config.ParseAddress(snapshot.Destination); err == nil {
			feeSink = sink
		}
	}
	if snapshot, ok, err := state.RolesGet(); err != nil {
		return nil, err
	} else if ok {
		if restored, err := config.ParseAddress(snapshot.Owner); err == nil {
			owner = restored
		}
		if restored, err := config.ParseAddress(snapshot.Admin); err == nil {
			admin = restored
		}
	}

	policy, err := fees.NewPolicy(coinBps, tokenBps, feeSink)
	if err != nil {
		return nil, err
	}
	roles := access.NewController(owner, admin)
	pauses := common.NewPauseSet()

	feed := rpc.NewFeed(state, logger)
	policy.SetEmitter(feed)

	// Local mode runs against in-process asset and value backends. Seed
	// accounts so the surface is exercisable out of the box.
	registry := assets.NewMemoryRegistry()
	led := ledger.NewMemoryLedger()
	led.MintNative(escrow, big.NewInt(0))

	mkt := market.NewEngine(escrow)
	mkt.SetState(state)
	mkt.SetRegistry(registry)
	mkt.SetLedger(led)
	mkt.SetPolicy(policy)
	mkt.SetRoles(roles)
	mkt.SetPauses(pauses)
	mkt.SetEmitter(feed)
	if hasPlatform {
		mkt.SetPlatformToken(platformToken)
	}
	if err := mkt.InitCurrencies(); err != nil {
		return nil, err
	}
	currencies, err := cfg.Currencies()
	if err != nil {
		return nil, err
	}
	for _, currency := range currencies {
		if err := mkt.AddCurrency(owner, currency); err != nil {
			return nil, err
		}
	}

	auc := auction.NewEngine(escrow)
	auc.SetState(state)
	auc.SetResolver(assets.StaticResolver{registryContract: registry})
	auc.SetLedger(led)
	auc.SetFeeProvider(policy)
	auc.SetRoles(roles)
	auc.SetPauses(pauses)
	auc.SetEmitter(feed)
	if hasPlatform {
		auc.SetPlatformToken(platformToken)
	}

	logger.Info("settlement engines wired",
		"escrow", ethcommon.Address(escrow).Hex(),
		"feeSink", ethcommon.Address(feeSink).Hex(),
		"coinBps", coinBps,
		"tokenBps", tokenBps,
	)

	return rpc.NewServer(rpc.ServerConfig{
		Market:    mkt,
		Auction:   auc,
		Pauses:    pauses,
		Policy:    policy,
		Roles:     roles,
		State:     state,
		Feed:      feed,
		Logger:    logger,
		JWTSecret: adminSecret(cfg),
	}), nil
}

// registryContract is the well-known asset contract handle for the local
// in-process registry.
var registryContract = [20]byte{0x0a}

func adminSecret(cfg *config.Config) string {
	if secret := strings.TrimSpace(os.Getenv(jwtSecretEnv)); secret != "" {
		return secret
	}
	return cfg.AdminJWTSecret
}
