package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/racevault/ledger/pkg/chain"
	"github.com/malbeclabs/racevault/ledger/pkg/clickhouse"
	"github.com/malbeclabs/racevault/ledger/pkg/events"
	"github.com/malbeclabs/racevault/ledger/pkg/kafka"
	"github.com/malbeclabs/racevault/ledger/pkg/metrics"
	"github.com/malbeclabs/racevault/ledger/pkg/server"
	"github.com/malbeclabs/racevault/ledger/pkg/store/memory"
	"github.com/malbeclabs/racevault/ledger/pkg/store/postgres"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
	"github.com/malbeclabs/racevault/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ledgerStore is what the binary needs from a store backend.
type ledgerStore interface {
	vault.Store
	events.Outbox
	Ping(ctx context.Context) error
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	jsonLogsFlag := flag.Bool("json-logs", false, "emit JSON logs instead of colored text")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "address for the HTTP API (or set RACEVAULT_LISTEN_ADDR env var)")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "address for prometheus metrics, empty to disable (or set RACEVAULT_METRICS_ADDR env var)")
	storeFlag := flag.String("store", "postgres", "store backend: postgres or memory (or set RACEVAULT_STORE env var)")
	migrateFlag := flag.Bool("migrate", false, "apply postgres migrations on startup")
	programIDFlag := flag.String("program-id", vault.DefaultProgramID.String(), "program id used to derive vault addresses (or set RACEVAULT_PROGRAM_ID env var)")

	relayIntervalFlag := flag.Duration("relay-interval", 2*time.Second, "outbox relay poll interval")
	relayBatchFlag := flag.Int("relay-batch-size", 100, "maximum events published per relay batch")

	// ClickHouse event sink
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port), empty to disable (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "enable TLS for ClickHouse (or set CLICKHOUSE_SECURE=true env var)")

	// Kafka event sink
	kafkaBrokersFlag := flag.StringSlice("kafka-brokers", nil, "Kafka seed brokers, empty to disable (or set KAFKA_BROKERS env var, comma separated)")
	kafkaTopicFlag := flag.String("kafka-topic", kafka.DefaultTopic, "Kafka topic for ledger events (or set KAFKA_TOPIC env var)")
	kafkaEnsureTopicFlag := flag.Bool("kafka-ensure-topic", false, "create the Kafka topic if it does not exist")

	solanaRPCFlag := flag.String("solana-rpc-url", "", "Solana RPC URL used by reconcile, empty to disable (or set SOLANA_RPC_URL env var)")
	sentryDSNFlag := flag.String("sentry-dsn", "", "Sentry DSN, empty to disable (or set SENTRY_DSN env var)")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	overrideString(listenAddrFlag, "RACEVAULT_LISTEN_ADDR")
	overrideString(metricsAddrFlag, "RACEVAULT_METRICS_ADDR")
	overrideString(storeFlag, "RACEVAULT_STORE")
	overrideString(programIDFlag, "RACEVAULT_PROGRAM_ID")
	overrideString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	overrideString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	overrideString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	overrideString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		*kafkaBrokersFlag = strings.Split(env, ",")
	}
	overrideString(kafkaTopicFlag, "KAFKA_TOPIC")
	overrideString(solanaRPCFlag, "SOLANA_RPC_URL")
	overrideString(sentryDSNFlag, "SENTRY_DSN")

	log := logger.NewWithOptions(logger.Options{Verbose: *verboseFlag, JSON: *jsonLogsFlag})

	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}

	if *sentryDSNFlag != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         *sentryDSNFlag,
			Release:     version,
			Environment: os.Getenv("RACEVAULT_ENV"),
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry enabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, log, *storeFlag, *migrateFlag)
	if err != nil {
		return err
	}
	defer closeStore()

	var sinks []events.Sink
	sinks = append(sinks, events.NewLogSink(log))
	if *clickhouseAddrFlag != "" {
		client, err := clickhouse.NewClient(ctx, log, clickhouse.Config{
			Addr:     *clickhouseAddrFlag,
			Database: *clickhouseDatabaseFlag,
			Username: *clickhouseUsernameFlag,
			Password: *clickhousePasswordFlag,
			Secure:   *clickhouseSecureFlag,
		})
		if err != nil {
			return err
		}
		sink, err := clickhouse.NewEventSink(clickhouse.EventSinkConfig{Logger: log, Client: client})
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	if len(*kafkaBrokersFlag) > 0 {
		sink, err := kafka.NewSink(ctx, kafka.SinkConfig{
			Logger:      log,
			Brokers:     *kafkaBrokersFlag,
			Topic:       *kafkaTopicFlag,
			EnsureTopic: *kafkaEnsureTopicFlag,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	sink := events.NewMultiSink(sinks...)
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("failed to close event sinks", "error", err)
		}
	}()

	engineCfg := vault.EngineConfig{
		Logger:    log,
		Store:     store,
		ProgramID: programID,
	}
	if *solanaRPCFlag != "" {
		reader, err := chain.NewBalanceReader(chain.BalanceReaderConfig{
			Logger: log,
			RPC:    chain.NewRPCClient(*solanaRPCFlag),
		})
		if err != nil {
			return err
		}
		engineCfg.ChainBalances = reader
		log.Info("chain reconciliation enabled", "rpc_url", *solanaRPCFlag)
	}
	engine, err := vault.NewEngine(engineCfg)
	if err != nil {
		return err
	}

	relay, err := events.NewRelay(events.RelayConfig{
		Logger:    log,
		Outbox:    store,
		Sink:      sink,
		Interval:  *relayIntervalFlag,
		BatchSize: *relayBatchFlag,
	})
	if err != nil {
		return err
	}

	build := server.BuildInfo{Version: version, Commit: commit, Date: date}
	srv, err := server.New(server.Config{
		Logger: log,
		Ledger: engine,
		Store:  store,
		Build:  build,
	})
	if err != nil {
		return err
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	g, ctx := errgroup.WithContext(ctx)
	if *metricsAddrFlag != "" {
		listener, err := net.Listen("tcp", *metricsAddrFlag)
		if err != nil {
			return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
		}
		log.Info("prometheus metrics server listening", "address", listener.Addr().String())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			if err := metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		return relay.Run(ctx)
	})
	g.Go(func() error {
		return srv.Run(ctx, *listenAddrFlag)
	})

	log.Info("racevault started", "version", version, "commit", commit, "store", *storeFlag, "sinks", len(sinks))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("racevault stopped")
	return nil
}

func openStore(ctx context.Context, log *slog.Logger, kind string, migrate bool) (ledgerStore, func(), error) {
	switch kind {
	case "memory":
		log.Warn("using in-memory store; state is lost on exit")
		return memory.New(), func() {}, nil
	case "postgres":
		cfg, err := postgres.LoadConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := postgres.MigrateUp(ctx, log, cfg.ConnString()); err != nil {
				return nil, nil, err
			}
		}
		pool, err := postgres.NewPool(ctx, log, cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := postgres.NewStore(postgres.StoreConfig{Logger: log, Pool: pool})
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (expected postgres or memory)", kind)
	}
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
