package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bitcoin-collector/internal/config"
	"bitcoin-collector/internal/fetcher"
	"bitcoin-collector/internal/metrics"
	"bitcoin-collector/internal/scheduler"
	"bitcoin-collector/internal/service"
	"bitcoin-collector/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFetchers() (*fetcher.Blockchain, *fetcher.Price) {
	blockchain := fetcher.NewBlockchain(fetcher.BlockchainOptions{
		Endpoint:  a.Config.Blockchain.Endpoint,
		Timeout:   a.Config.Blockchain.RequestTimeout,
		UserAgent: a.Config.Blockchain.UserAgent,
	}, a.Logger)

	price := fetcher.NewPrice(fetcher.PriceOptions{
		Endpoint:  a.Config.Price.Endpoint,
		Asset:     a.Config.Price.Asset,
		Currency:  a.Config.Price.Currency,
		Timeout:   a.Config.Price.RequestTimeout,
		UserAgent: a.Config.Price.UserAgent,
	}, a.Logger)

	return blockchain, price
}

func (a *App) openStore(ctx context.Context) (*storage.Store, error) {
	if a.Config.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn not configured: %w", storage.ErrNotConfigured)
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	return storage.NewStore(pool, storage.DefaultSchema(a.Config.Database.Table)), nil
}

// prepareStore connects and brings the table up to the current schema. Any failure is fatal
// for the calling command.
func (a *App) prepareStore(ctx context.Context) (*storage.Store, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Run executes the long-running collector.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.prepareStore(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("cannot prepare database")
		return err
	}
	defer store.Close()

	recorder := metrics.NewRecorder(a.Config.Metrics.Namespace)
	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Scheduler.Interval,
		AlignToInterval: a.Config.Scheduler.AlignToInterval,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	blockchain, price := a.newFetchers()
	svc := service.New(a.Config, sched, blockchain, price, store, recorder, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		server := metrics.NewServer(addr, recorder, a.Logger)
		g.Go(func() error {
			if err := server.Run(gctx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return svc.Run(gctx)
	})

	a.Logger.Info().
		Str("table", store.Schema().Table).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting collector")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("collector terminated with error")
		return err
	}

	a.Logger.Info().Msg("collector stopped")
	return nil
}

// CollectOnce ensures the schema and runs a single cycle.
func (a *App) CollectOnce(ctx context.Context) error {
	store, err := a.prepareStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	blockchain, price := a.newFetchers()
	svc := service.New(a.Config, nil, blockchain, price, store, nil, a.Logger)
	return svc.RunCycle(ctx, time.Now().UTC())
}

// Migrate ensures the schema and reports the version reached.
func (a *App) Migrate(ctx context.Context) error {
	store, err := a.prepareStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	schema := store.Schema()
	a.Logger.Info().Str("table", schema.Table).Int("version", schema.Version()).Msg("schema up to date")
	fmt.Fprintf(a.Out, "table %s at schema version %d\n", schema.Table, schema.Version())
	return nil
}

// ExportOptions hold parameters for exporting stored observations.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
