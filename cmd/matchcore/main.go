// Command matchcore wires the matching engine, durability layer, collateral
// interlock, and settlement batcher together and runs the settlement loop
// until an interrupt is received. It is demo/operational wiring, not a
// public API surface (§1 non-goal: no transport layer is specified).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/hyperperp/matchcore/internal/chaingateway"
	"github.com/hyperperp/matchcore/internal/collateral"
	"github.com/hyperperp/matchcore/internal/durability"
	"github.com/hyperperp/matchcore/internal/logging"
	"github.com/hyperperp/matchcore/internal/matching"
	"github.com/hyperperp/matchcore/internal/settlement"
	"github.com/hyperperp/matchcore/internal/snapshotcache"
)

func main() {
	logging.Configure(envOr("LOG_LEVEL", "info"), os.Getenv("LOG_PRETTY") == "true")

	if err := godotenv.Load(); err != nil {
		log.Info().Msg(".env not loaded, continuing with process environment")
	}

	log.Info().Msg("starting matchcore")

	db, err := durability.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	if _, err := db.Exec(durability.Schema); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	store, err := durability.NewMySQLStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("prepare durability store")
	}
	defer store.Close()

	gateway := chaingateway.NewMockGateway()
	if envOr("CHAIN_GATEWAY", "mock") != "mock" {
		// A real Chain Gateway client is an outer-layer integration (§1 non-goal);
		// operators wire one in by replacing this constructor.
		log.Fatal().Msg("no non-mock chain gateway is wired; set CHAIN_GATEWAY=mock or provide one")
	}

	interlock := collateral.New(gateway, 10)

	var cache snapshotcache.Cache
	if os.Getenv("SNAPSHOT_CACHE_DISABLED") != "true" {
		zc, err := snapshotcache.NewZstdCache()
		if err != nil {
			log.Fatal().Err(err).Msg("construct snapshot cache")
		}
		defer zc.Close()
		cache = zc
	}

	engine := matching.New(store, interlock, cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.LoadPendingOrders(ctx); err != nil {
		log.Fatal().Err(err).Msg("load pending orders")
	}

	batcher := settlement.New(store, gateway)
	batcher.Start(ctx)
	defer batcher.Stop()

	log.Info().Msg("matchcore running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := batcher.DrainOnce(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final drain before shutdown failed")
	}

	log.Info().Msg("matchcore stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
