package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/metrics"
)

const (
	defaultPollInterval    = 30 * time.Second
	metricsShutdownTimeout = 5 * time.Second
	sweepStage             = "sweep"
)

type dispatchService interface {
	Sweep(ctx context.Context) (int, error)
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dispatch     dispatchService
	Metrics      *metrics.DispatchMetrics
	PollInterval time.Duration
	MetricsAddr  string
}

// Service drives the periodic batching sweep and exposes its metrics.
type Service struct {
	logg         *logger.Logger
	dispatch     dispatchService
	metrics      *metrics.DispatchMetrics
	pollInterval time.Duration
	metricsAddr  string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Dispatch == nil {
		return nil, errors.New("dispatch service is required")
	}

	pollInterval := params.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Service{
		logg:         params.Logger,
		dispatch:     params.Dispatch,
		metrics:      params.Metrics,
		pollInterval: pollInterval,
		metricsAddr:  params.MetricsAddr,
	}, nil
}

// Run sweeps until the context is canceled. The metrics endpoint lives and
// dies with the loop.
func (s *Service) Run(ctx context.Context) error {
	var metricsServer *http.Server
	serverErrs := make(chan error, 1)
	if s.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: s.metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrs <- err
			}
			close(serverErrs)
		}()
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var loopErr error
loop:
	for {
		select {
		case <-ctx.Done():
			loopErr = ctx.Err()
			break loop
		case err := <-serverErrs:
			if err != nil {
				loopErr = err
				break loop
			}
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		loopErr = multierr.Append(loopErr, metricsServer.Shutdown(shutdownCtx))
	}
	return loopErr
}

func (s *Service) runSweep(ctx context.Context) {
	start := time.Now()
	enqueued, err := s.dispatch.Sweep(ctx)
	s.metrics.ObserveSweepDuration(sweepStage, time.Since(start))
	if err != nil {
		s.metrics.IncFailures(sweepStage)
		s.logg.Error(ctx, "dispatch sweep failed", err)
		return
	}
	for i := 0; i < enqueued; i++ {
		s.metrics.IncRoutesEnqueued(sweepStage)
	}
	if enqueued > 0 {
		sweepCtx := s.logg.WithField(ctx, "routes_enqueued", enqueued)
		s.logg.Info(sweepCtx, "dispatch sweep enqueued routes")
	}
}
