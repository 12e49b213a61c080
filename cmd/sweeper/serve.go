package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"solana-sweeper/internal/api"
	"solana-sweeper/internal/config"
	"solana-sweeper/internal/forward"
	"solana-sweeper/internal/monitor"
	"solana-sweeper/internal/notify"
	"solana-sweeper/internal/pool"
	"solana-sweeper/internal/registry"
	"solana-sweeper/internal/solana"
	"solana-sweeper/internal/storage"
	chstore "solana-sweeper/internal/storage/clickhouse"
	"solana-sweeper/internal/storage/memory"
	"solana-sweeper/internal/storage/migrations"
	pgstore "solana-sweeper/internal/storage/postgres"
	"solana-sweeper/internal/storage/sqlite"
	"solana-sweeper/internal/sweeper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sweeper service",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.Int("port", 5000, "HTTP port for the API, liveness and metrics")
	f.String("store", config.DriverSQLite, "Session store: sqlite, postgres or memory")
	f.String("sqlite-path", "wallets.db", "SQLite database file")
	f.String("postgres-dsn", "", "PostgreSQL connection string")
	f.String("clickhouse-dsn", "", "ClickHouse connection string for the sweep ledger")
	f.String("amqp-url", "", "AMQP broker URL for event publishing")

	for key, flag := range map[string]string{
		"PORT":           "port",
		"STORE_DRIVER":   "store",
		"SQLITE_PATH":    "sqlite-path",
		"POSTGRES_DSN":   "postgres-dsn",
		"CLICKHOUSE_DSN": "clickhouse-dsn",
		"AMQP_URL":       "amqp-url",
	} {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// stores holds the opened persistence backends.
type stores struct {
	sessions storage.SessionStore
	sweeps   storage.SweepStore
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(v)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger("sweeper")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	notifier, closeNotifier := buildNotifier(cfg)
	defer closeNotifier()

	p := pool.New(cfg.RPCURLs, cfg.AccountsPerEndpoint)
	if p.Len() == 0 {
		logger.Printf("WARNING: no RPC endpoints configured (RPC_URL, RPC_URL2 ... RPC_URL%d)", config.MaxEndpoints)
	}
	logger.Printf("Using %d RPC endpoint(s), %d account(s) each", p.Len(), p.Capacity())

	fwd, err := forward.New(forward.Config{
		Destination:    cfg.Destination,
		Fee:            cfg.FeeLamports,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, newLogger("forward"))
	if err != nil {
		return err
	}

	monitorLogger := newLogger("monitor")
	manager := monitor.NewManager(monitor.ManagerOptions{
		Connections: monitor.NewConnections(
			monitor.WSDialer(solana.DefaultWSConfig()),
			monitor.HTTPRPC(),
		),
		Processor: monitor.NewProcessor(monitor.ProcessorOptions{
			Forwarder: fwd,
			Notifier:  notifier,
			Sweeps:    st.sweeps,
			Logger:    monitorLogger,
		}),
		Health: monitor.NewHealth(p.Endpoints(), cfg.ErrorThreshold),
		Logger: monitorLogger,
	})

	svc := sweeper.New(sweeper.Options{
		Registry:       registry.New(p),
		Manager:        manager,
		Sessions:       st.sessions,
		Sweeps:         st.sweeps,
		Notifier:       notifier,
		Destination:    fwd.Destination(),
		ReportInterval: cfg.ReportInterval,
		Logger:         logger,
	})
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Printf("Error closing service: %v", err)
		}
	}()

	if owner, err := svc.AutoResume(ctx); err != nil {
		logger.Printf("Auto-resume failed: %v", err)
	} else if owner != "" {
		logger.Printf("Resumed monitoring for owner %s", owner)
	}

	if cfg.AdminToken == "" {
		logger.Printf("WARNING: ADMIN_TOKEN is empty, command routes are unauthenticated")
	}
	server := api.NewServer(api.Options{
		Commands: svc,
		Token:    cfg.AdminToken,
		Logger:   newLogger("api"),
	})

	logger.Printf("Sweeping to %s, withholding %d lamports per transfer", fwd.Destination(), fwd.Fee())
	err = server.ListenAndServe(ctx, ":"+strconv.Itoa(cfg.Port))
	logger.Printf("Shutting down...")
	return err
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}
	logger := newLogger("storage")

	switch cfg.StoreDriver {
	case config.DriverMemory:
		st.sessions = memory.NewSessionStore()
		logger.Printf("Using in-memory session store (not persisted)")

	case config.DriverPostgres:
		pgPool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.closers = append(st.closers, pgPool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pgPool); err != nil {
			st.close()
			return nil, err
		}
		st.sessions = pgstore.NewSessionStore(pgPool)
		logger.Printf("Using PostgreSQL session store")

	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		store := sqlite.NewSessionStore(db)
		st.closers = append(st.closers, func() {
			if err := store.Close(); err != nil {
				logger.Printf("Error closing sqlite: %v", err)
			}
		})
		st.sessions = store
		logger.Printf("Using SQLite session store at %s", cfg.SQLitePath)
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, func() {
			if err := conn.Close(); err != nil {
				logger.Printf("Error closing clickhouse: %v", err)
			}
		})
		st.sweeps = chstore.NewSweepStore(conn)
		logger.Printf("Recording sweeps in ClickHouse")
	} else {
		st.sweeps = memory.NewSweepStore()
	}
	return st, nil
}

func buildNotifier(cfg *config.Config) (notify.Notifier, func()) {
	notifiers := notify.Multi{notify.NewTelegram(cfg.BotToken)}
	closeFn := func() {}

	if cfg.AMQPURL != "" {
		logger := newLogger("amqp")
		pub, err := notify.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Printf("Event publishing disabled: %v", err)
		} else {
			notifiers = append(notifiers, pub)
			closeFn = func() {
				if err := pub.Close(); err != nil {
					logger.Printf("Error closing broker connection: %v", err)
				}
			}
		}
	}
	return notifiers, closeFn
}
