// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/stakeplan"
	"github.com/blinklabs-io/stakeplan/internal/config"
	"github.com/blinklabs-io/stakeplan/scheduler"
	"github.com/blinklabs-io/stakeplan/staking"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// nodeOptions translates the loaded configuration into node options
func nodeOptions(
	cfg *config.Config,
	logger *slog.Logger,
	registry prometheus.Registerer,
) ([]stakeplan.ConfigOptionFunc, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	return []stakeplan.ConfigOptionFunc{
		stakeplan.WithLogger(logger),
		stakeplan.WithDatabasePath(cfg.DatabasePath),
		stakeplan.WithMetadataPlugin(cfg.MetadataPlugin),
		stakeplan.WithNotifierPlugin(cfg.NotifierPlugin),
		stakeplan.WithCollectors(staking.Collectors{
			Asset:  cfg.Collectors.Asset,
			Fee:    cfg.Collectors.Fee,
			Reward: cfg.Collectors.Reward,
		}),
		stakeplan.WithOverdraftAccounts(cfg.Collectors.Overdraft...),
		stakeplan.WithSchedule(cfg.Schedule),
		stakeplan.WithGiveRewardUniqueFromPlanId(cfg.GiveRewardUniqueFromPlanId),
		stakeplan.WithShutdownTimeout(shutdownTimeout),
		stakeplan.WithPrometheusRegistry(registry),
		stakeplan.WithTracing(cfg.Tracing),
		stakeplan.WithTracingStdout(cfg.TracingStdout),
	}, nil
}

// Open starts a node for one-shot commands. Its scheduler has no jobs
// scheduled and no metrics are exported.
func Open(cfg *config.Config, logger *slog.Logger) (*stakeplan.Node, error) {
	opts, err := nodeOptions(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	opts = append(opts, stakeplan.WithSchedule(scheduler.Schedule{}))
	n, err := stakeplan.New(stakeplan.NewConfig(opts...))
	if err != nil {
		return nil, err
	}
	if err := n.Start(); err != nil {
		return nil, errors.Join(err, n.Stop())
	}
	return n, nil
}

func newMetricsServer(cfg *config.Config, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	opts, err := nodeOptions(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	shutdownTimeout, _ := cfg.ShutdownTimeoutDuration()
	n, err := stakeplan.New(stakeplan.NewConfig(opts...))
	if err != nil {
		return err
	}
	// Metrics listener
	metricsServer := newMetricsServer(cfg, prometheus.DefaultGatherer)
	logger.Info(
		"serving prometheus metrics on "+metricsServer.Addr,
		"component", "node",
	)
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			metricsErr <- fmt.Errorf("failed to start metrics listener: %w", err)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- n.Run()
	}()

	shutdownMetrics := func() {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "component", "node", "error", err)
		}
	}

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown", "component", "node")
		shutdownMetrics()
		if err := n.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "component", "node", "error", err)
			return err
		}
		<-errChan
		logger.Info("shutdown complete", "component", "node")
		return nil
	case err := <-metricsErr:
		logger.Error("metrics listener error", "component", "node", "error", err)
		if stopErr := n.Stop(); stopErr != nil {
			logger.Error("shutdown errors occurred during error cleanup", "component", "node", "error", stopErr)
		}
		<-errChan
		return err
	case err := <-errChan:
		shutdownMetrics()
		if err != nil {
			logger.Error("node error", "component", "node", "error", err)
			return err
		}
		logger.Info("node stopped", "component", "node")
		return nil
	}
}
