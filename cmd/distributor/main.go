package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/dammv2"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/logger"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/metrics"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/server"
	pgstore "github.com/TokenHarvester/investor-fee-distributor/pkg/store/postgres"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/streamflow"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/treasury"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultRPCURL = "https://api.mainnet-beta.solana.com"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", "0.0.0.0:8080", "address to listen on for the distribution API")
	metricsAddrFlag := flag.String("metrics-addr", "0.0.0.0:0", "address to listen on for prometheus metrics")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "maximum time to wait for graceful shutdown")
	runMigrationsFlag := flag.Bool("run-migrations", false, "run database migrations on startup")
	rateLimitFlag := flag.Float64("rate-limit", 1, "distribute calls allowed per second per IP")
	rateBurstFlag := flag.Int("rate-burst", 10, "distribute call burst per IP")

	rpcURLFlag := flag.String("rpc-url", "", "Solana RPC URL (or set SOLANA_RPC_URL env var)")
	programIDFlag := flag.String("program-id", "", "distributor program id (or set DISTRIBUTOR_PROGRAM_ID env var)")
	poolFlag := flag.String("pool", "", "DAMM v2 pool address (or set DAMM_POOL env var)")
	positionFlag := flag.String("position", "", "honorary fee position address (or set DAMM_POSITION env var)")
	quoteMintFlag := flag.String("quote-mint", "", "quote mint address (or set QUOTE_MINT env var)")

	flag.Parse()

	// Best-effort .env for local development.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	connStr := os.Getenv("POSTGRES_URL")
	if connStr == "" {
		return fmt.Errorf("POSTGRES_URL is required")
	}

	rpcURL := firstNonEmpty(*rpcURLFlag, os.Getenv("SOLANA_RPC_URL"), defaultRPCURL)

	programID, err := requiredKey(*programIDFlag, "DISTRIBUTOR_PROGRAM_ID")
	if err != nil {
		return err
	}
	pool, err := requiredKey(*poolFlag, "DAMM_POOL")
	if err != nil {
		return err
	}
	position, err := requiredKey(*positionFlag, "DAMM_POSITION")
	if err != nil {
		return err
	}
	quoteMint, err := requiredKey(*quoteMintFlag, "QUOTE_MINT")
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start metrics server
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	if *runMigrationsFlag {
		log.Info("running database migrations")
		if err := pgstore.RunMigrations(connStr); err != nil {
			return err
		}
	}

	dbPool, err := pgstore.NewPool(ctx, connStr)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	store, err := pgstore.New(pgstore.Config{Logger: log, Pool: dbPool})
	if err != nil {
		return err
	}

	rpcClient := solanarpc.New(rpcURL)
	log.Info("solana rpc client initialized", "url", rpcURL)

	oracle, err := streamflow.NewReader(streamflow.Config{Logger: log, RPC: rpcClient})
	if err != nil {
		return err
	}
	claimer, err := dammv2.NewClaimer(dammv2.Config{
		Logger:    log,
		RPC:       rpcClient,
		Pool:      pool,
		Position:  position,
		QuoteMint: quoteMint,
	})
	if err != nil {
		return err
	}
	executor, err := treasury.NewExecutor(treasury.Config{Logger: log, ProgramID: programID})
	if err != nil {
		return err
	}

	engine, err := distributor.New(distributor.Config{
		Logger:     log,
		Store:      store,
		Claimer:    claimer,
		LockOracle: oracle,
		Transfers:  executor,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		Engine:          engine,
		Store:           store,
		Pinger:          store,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		RateLimit:       rate.Limit(*rateLimitFlag),
		RateBurst:       *rateBurstFlag,
		VersionInfo:     server.VersionInfo{Version: version, Commit: commit, Date: date},
	})
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func requiredKey(flagValue, envVar string) (solana.PublicKey, error) {
	value := firstNonEmpty(flagValue, os.Getenv(envVar))
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", envVar)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", envVar, err)
	}
	return key, nil
}
