package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/racevault/admin/internal/admin"
	"github.com/malbeclabs/racevault/ledger/pkg/clickhouse"
	"github.com/malbeclabs/racevault/ledger/pkg/store/postgres"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
	"github.com/malbeclabs/racevault/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// PostgreSQL configuration
	pgHostFlag := flag.String("postgres-host", "localhost", "PostgreSQL host (or set POSTGRES_HOST env var)")
	pgPortFlag := flag.String("postgres-port", "5432", "PostgreSQL port (or set POSTGRES_PORT env var)")
	pgDatabaseFlag := flag.String("postgres-db", "", "PostgreSQL database (or set POSTGRES_DB env var)")
	pgUsernameFlag := flag.String("postgres-user", "", "PostgreSQL username (or set POSTGRES_USER env var)")
	pgPasswordFlag := flag.String("postgres-password", "", "PostgreSQL password (or set POSTGRES_PASSWORD env var)")
	pgSSLModeFlag := flag.String("postgres-sslmode", "disable", "PostgreSQL sslmode (or set POSTGRES_SSLMODE env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Vault options
	programIDFlag := flag.String("program-id", vault.DefaultProgramID.String(), "program id used to derive vault addresses (or set RACEVAULT_PROGRAM_ID env var)")
	mintFlag := flag.String("mint", "", "token mint of the vault")
	participantFlag := flag.String("participant", "", "also print the accounts of this recipient/referrer (with --addresses)")
	keypairFlag := flag.String("keypair", "", "solana-keygen file of the vault authority (with --bootstrap)")
	depositFlag := flag.Uint64("initial-deposit", 0, "base units credited to custody after bootstrap")

	// Commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run PostgreSQL ledger migrations (up)")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last PostgreSQL ledger migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show PostgreSQL ledger migration status")
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Run ClickHouse event table migrations")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show ClickHouse event table migration status")
	resetEventsFlag := flag.Bool("reset-events", false, "Drop the ClickHouse ledger event tables")
	bootstrapFlag := flag.Bool("bootstrap", false, "Initialize the vault for --mint with --keypair as authority")
	addressesFlag := flag.Bool("addresses", false, "Print the derived accounts of the vault for --mint")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	overrideString(pgHostFlag, "POSTGRES_HOST")
	overrideString(pgPortFlag, "POSTGRES_PORT")
	overrideString(pgDatabaseFlag, "POSTGRES_DB")
	overrideString(pgUsernameFlag, "POSTGRES_USER")
	overrideString(pgPasswordFlag, "POSTGRES_PASSWORD")
	overrideString(pgSSLModeFlag, "POSTGRES_SSLMODE")
	overrideString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	overrideString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	overrideString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	overrideString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	overrideString(programIDFlag, "RACEVAULT_PROGRAM_ID")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgCfg := admin.PgMigrateConfig{
		Host:     *pgHostFlag,
		Port:     *pgPortFlag,
		Database: *pgDatabaseFlag,
		Username: *pgUsernameFlag,
		Password: *pgPasswordFlag,
		SSLMode:  *pgSSLModeFlag,
	}
	chCfg := clickhouse.Config{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}

	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}

	// Execute commands
	switch {
	case *pgMigrateFlag:
		return admin.PgMigrateUp(ctx, log, pgCfg)

	case *pgMigrateDownFlag:
		return admin.PgMigrateDown(ctx, log, pgCfg)

	case *pgMigrateStatusFlag:
		return admin.PgMigrateStatus(ctx, log, pgCfg)

	case *clickhouseMigrateFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate")
		}
		return clickhouse.Up(ctx, log, chCfg)

	case *clickhouseMigrateStatusFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-status")
		}
		return clickhouse.MigrationStatus(ctx, log, chCfg)

	case *resetEventsFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --reset-events")
		}
		client, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer client.Close()
		_, err = admin.ResetEvents(ctx, admin.ResetEventsConfig{
			Client:      client,
			Database:    *clickhouseDatabaseFlag,
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})
		return err

	case *bootstrapFlag:
		mint, err := parseMint(*mintFlag)
		if err != nil {
			return err
		}
		if *keypairFlag == "" {
			return fmt.Errorf("--keypair is required for --bootstrap")
		}
		pg := postgres.Config{
			Host:     pgCfg.Host,
			Port:     pgCfg.Port,
			Database: pgCfg.Database,
			Username: pgCfg.Username,
			Password: pgCfg.Password,
			SSLMode:  pgCfg.SSLMode,
		}
		pool, err := postgres.NewPool(ctx, log, pg)
		if err != nil {
			return err
		}
		defer pool.Close()
		store, err := postgres.NewStore(postgres.StoreConfig{Logger: log, Pool: pool})
		if err != nil {
			return err
		}
		vaultCfg, err := admin.Bootstrap(ctx, admin.BootstrapConfig{
			Logger:         log,
			Store:          store,
			ProgramID:      programID,
			KeypairPath:    *keypairFlag,
			Mint:           mint,
			InitialDeposit: *depositFlag,
		})
		if err != nil {
			return err
		}
		addrs, err := admin.DeriveAddresses(programID, vaultCfg.Mint, solana.PublicKey{})
		if err != nil {
			return err
		}
		admin.PrintAddresses(os.Stdout, addrs)
		return nil

	case *addressesFlag:
		mint, err := parseMint(*mintFlag)
		if err != nil {
			return err
		}
		var participant solana.PublicKey
		if *participantFlag != "" {
			if participant, err = solana.PublicKeyFromBase58(*participantFlag); err != nil {
				return fmt.Errorf("invalid participant: %w", err)
			}
		}
		addrs, err := admin.DeriveAddresses(programID, mint, participant)
		if err != nil {
			return err
		}
		admin.PrintAddresses(os.Stdout, addrs)
		return nil
	}

	flag.Usage()
	return nil
}

func parseMint(s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, fmt.Errorf("--mint is required")
	}
	mint, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid mint: %w", err)
	}
	return mint, nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
