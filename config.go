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

package stakeplan

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/stakeplan/scheduler"
	"github.com/blinklabs-io/stakeplan/staking"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry               prometheus.Registerer
	logger                     *slog.Logger
	clock                      staking.Clock
	rewardSource               staking.RewardSource
	dataDir                    string
	metadataPlugin             string
	notifierPlugin             string
	schedule                   scheduler.Schedule
	collectors                 staking.Collectors
	overdraftAccounts          []uint
	giveRewardUniqueFromPlanId uint
	tracing                    bool
	tracingStdout              bool
	shutdownTimeout            time.Duration
}

func (n *Node) configValidate() error {
	col := n.config.collectors
	if col.Asset == 0 || col.Fee == 0 || col.Reward == 0 {
		return errors.New("asset, fee and reward collector accounts are required")
	}
	if col.Asset == col.Fee || col.Asset == col.Reward || col.Fee == col.Reward {
		return errors.New("collector accounts must be distinct")
	}
	if n.config.tracingStdout && !n.config.tracing {
		return errors.New("stdout tracing requires tracing to be enabled")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new stakeplan config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. An empty
// path with the sqlite plugin keeps everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithMetadataPlugin specifies the metadata store plugin (sqlite, postgres, mysql)
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithNotifierPlugin specifies the plugin used to tell watching users about
// free plan capacity
func WithNotifierPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.notifierPlugin = plugin
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithClock replaces the wall clock used by every temporal check
func WithClock(clock staking.Clock) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithRewardSource specifies where plan rewards are fetched from. Without
// one the fetch job fails for every candidate plan
func WithRewardSource(source staking.RewardSource) ConfigOptionFunc {
	return func(c *Config) {
		c.rewardSource = source
	}
}

// WithOverdraftAccounts lets the given wallet accounts go below zero. Every
// other account, the asset collector included, fails transfers it cannot
// cover.
func WithOverdraftAccounts(userIds ...uint) ConfigOptionFunc {
	return func(c *Config) {
		c.overdraftAccounts = append(c.overdraftAccounts, userIds...)
	}
}

// WithCollectors specifies the system accounts of the money flow
func WithCollectors(collectors staking.Collectors) ConfigOptionFunc {
	return func(c *Config) {
		c.collectors = collectors
	}
}

// WithSchedule specifies the cron specs of the scheduler jobs
func WithSchedule(schedule scheduler.Schedule) ConfigOptionFunc {
	return func(c *Config) {
		c.schedule = schedule
	}
}

// WithGiveRewardUniqueFromPlanId specifies the first plan id whose user
// reward payouts are unique per user
func WithGiveRewardUniqueFromPlanId(planId uint) ConfigOptionFunc {
	return func(c *Config) {
		c.giveRewardUniqueFromPlanId = planId
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies how long a graceful shutdown may take
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
