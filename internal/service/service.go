package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bitcoin-collector/internal/config"
	"bitcoin-collector/internal/fetcher"
	"bitcoin-collector/internal/metrics"
	"bitcoin-collector/internal/scheduler"
	"bitcoin-collector/internal/storage"
)

// Stage names the step of a cycle.
type Stage string

const (
	StageFetching   Stage = "fetching"
	StageComposing  Stage = "composing"
	StagePersisting Stage = "persisting"
	StageSleeping   Stage = "sleeping"
)

// CycleError reports which stage abandoned a cycle.
type CycleError struct {
	Stage Stage
	Err   error
}

func (e *CycleError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *CycleError) Unwrap() error { return e.Err }

// Service orchestrates fetching, composing and persisting observations.
type Service struct {
	scheduler  *scheduler.Scheduler
	blockchain fetcher.BlockchainFetcher
	price      fetcher.PriceFetcher
	store      storage.ObservationWriter
	locker     storage.AdvisoryLocker
	lockKey    int64
	metrics    *metrics.Recorder
	logger     zerolog.Logger
}

// New constructs the collector service. sched may be nil when only RunCycle is used.
func New(cfg *config.Config, sched *scheduler.Scheduler, blockchain fetcher.BlockchainFetcher, price fetcher.PriceFetcher, store storage.ObservationWriter, recorder *metrics.Recorder, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	var lockKey int64
	if cfg != nil {
		lockKey = cfg.Scheduler.AdvisoryLockKey
	}

	return &Service{
		scheduler:  sched,
		blockchain: blockchain,
		price:      price,
		store:      store,
		locker:     locker,
		lockKey:    lockKey,
		metrics:    recorder,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run drives cycles on the scheduler until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, tick time.Time) error {
		// RunCycle has already logged the failure with its stage.
		_ = s.RunCycle(ctx, tick)
		s.logger.Debug().Str("stage", string(StageSleeping)).Time("tick", tick).Msg("cycle finished")
		return nil
	})
}

// RunCycle performs one fetch-compose-persist cycle. Both fetches must succeed before anything
// is written; any failure is logged and returned as a *CycleError.
func (s *Service) RunCycle(ctx context.Context, tick time.Time) error {
	started := time.Now()
	log := s.logger.With().Time("tick", tick).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		cycleErr := &CycleError{Stage: StageFetching, Err: err}
		log.Error().Err(err).Str("stage", string(StageFetching)).Msg("cycle skipped")
		s.metrics.ObserveCycle(metrics.OutcomeSkipped, time.Since(started), cycleErr)
		return cycleErr
	}
	if !proceed {
		log.Debug().Msg("skip cycle because advisory lock held elsewhere")
		s.metrics.ObserveCycle(metrics.OutcomeSkipped, time.Since(started), nil)
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	chain, quote, err := s.fetch(ctx, log)
	if err != nil {
		cycleErr := &CycleError{Stage: StageFetching, Err: err}
		s.metrics.ObserveCycle(metrics.OutcomeFetchFailed, time.Since(started), cycleErr)
		return cycleErr
	}

	obs := Compose(chain, quote)

	if s.store == nil {
		cycleErr := &CycleError{Stage: StagePersisting, Err: storage.ErrNotConfigured}
		log.Error().Err(cycleErr.Err).Str("stage", string(StagePersisting)).Msg("observation not stored")
		s.metrics.ObserveCycle(metrics.OutcomePersistFailed, time.Since(started), cycleErr)
		return cycleErr
	}
	if err := s.store.InsertObservation(ctx, obs); err != nil {
		cycleErr := &CycleError{Stage: StagePersisting, Err: err}
		log.Error().Err(err).
			Str("stage", string(StagePersisting)).
			Int64("height", obs.Height).
			Msg("failed to insert observation")
		s.metrics.ObserveCycle(metrics.OutcomePersistFailed, time.Since(started), cycleErr)
		return cycleErr
	}

	s.metrics.RowInserted(obs.Height, quote.Price)
	s.metrics.ObserveCycle(metrics.OutcomeSuccess, time.Since(started), nil)
	log.Info().
		Int64("height", obs.Height).
		Str("hash", obs.Hash).
		Float64("price", quote.Price).
		Float64("volume_24h", quote.Volume24h).
		Dur("elapsed", time.Since(started)).
		Msg("observation recorded")
	return nil
}

// fetch runs both fetches concurrently and waits for both to settle.
func (s *Service) fetch(ctx context.Context, log zerolog.Logger) (fetcher.BlockchainSnapshot, fetcher.PriceSnapshot, error) {
	var (
		chain    fetcher.BlockchainSnapshot
		quote    fetcher.PriceSnapshot
		chainErr error
		priceErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		chain, chainErr = s.blockchain.FetchBlockchain(ctx)
		return chainErr
	})
	g.Go(func() error {
		quote, priceErr = s.price.FetchPrice(ctx)
		return priceErr
	})
	_ = g.Wait()

	if chainErr != nil {
		s.reportFetchError(log, fetcher.SourceBlockchain, chainErr)
		chainErr = fmt.Errorf("fetch blockchain: %w", chainErr)
	}
	if priceErr != nil {
		s.reportFetchError(log, fetcher.SourcePrice, priceErr)
		priceErr = fmt.Errorf("fetch price: %w", priceErr)
	}
	if err := errors.Join(chainErr, priceErr); err != nil {
		return fetcher.BlockchainSnapshot{}, fetcher.PriceSnapshot{}, err
	}
	return chain, quote, nil
}

func (s *Service) reportFetchError(log zerolog.Logger, source string, err error) {
	kind := errorKind(err)
	s.metrics.FetchFailed(source, kind)
	log.Error().Err(err).
		Str("stage", string(StageFetching)).
		Str("source", source).
		Str("kind", kind).
		Msg("fetch failed; skipping cycle")
}

func errorKind(err error) string {
	var netErr *fetcher.NetworkError
	var decodeErr *fetcher.DecodeError
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &decodeErr):
		return "decode"
	default:
		return "other"
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
