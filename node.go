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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/stakeplan/database"
	"github.com/blinklabs-io/stakeplan/event"
	"github.com/blinklabs-io/stakeplan/notify"
	"github.com/blinklabs-io/stakeplan/scheduler"
	"github.com/blinklabs-io/stakeplan/staking"
	"github.com/blinklabs-io/stakeplan/wallet"
)

const defaultShutdownTimeout = 30 * time.Second

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	wallet        *wallet.Ledger
	notifier      notify.Notifier
	engine        *staking.Engine
	scheduler     *scheduler.Runner
	ctx           context.Context
	cancel        context.CancelFunc
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	startOnce     sync.Once
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	n := &Node{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		done:     make(chan struct{}),
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	if err := n.configValidate(); err != nil {
		n.cancel()
		n.eventBus.Stop()
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

// Run starts the node and blocks until Stop is called
func (n *Node) Run() error {
	if err := n.Start(); err != nil {
		if stopErr := n.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		return err
	}
	// Wait for shutdown signal
	<-n.done
	return nil
}

// Start opens the database and starts the engine and scheduler without
// blocking
func (n *Node) Start() error {
	err := errors.New("node already started")
	n.startOnce.Do(func() {
		err = n.start()
	})
	return err
}

func (n *Node) start() error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:        n.config.dataDir,
		MetadataPlugin: n.config.metadataPlugin,
		Logger:         n.config.logger,
		PromRegistry:   n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	n.wallet = wallet.New(
		n.db,
		wallet.WithLogger(n.config.logger),
		wallet.WithOverdraftUsers(n.config.overdraftAccounts...),
	)
	// Start notifier
	notifier, err := notify.New(n.config.notifierPlugin, n.config.logger)
	if err != nil {
		return err
	}
	n.notifier = notifier
	// Load engine
	engine, err := staking.NewEngine(staking.EngineConfig{
		PromRegistry:               n.config.promRegistry,
		Database:                   n.db,
		Wallet:                     n.wallet,
		Clock:                      n.config.clock,
		RewardSource:               n.config.rewardSource,
		Notifier:                   n.notifier,
		EventBus:                   n.eventBus,
		Logger:                     n.config.logger,
		Collectors:                 n.config.collectors,
		GiveRewardUniqueFromPlanId: n.config.giveRewardUniqueFromPlanId,
	})
	if err != nil {
		return fmt.Errorf("failed to load staking engine: %w", err)
	}
	n.engine = engine
	n.eventBus.SubscribeFunc(
		event.CapacityIncreasedEventType,
		n.handleCapacityIncreased,
	)
	// Start scheduler
	n.scheduler = scheduler.New(
		scheduler.WithLogger(n.config.logger),
		scheduler.WithPromRegistry(n.config.promRegistry),
	)
	for _, job := range scheduler.EngineJobs(n.engine, n.config.schedule, n.config.logger) {
		if err := n.scheduler.Add(job); err != nil {
			return err
		}
	}
	n.scheduler.Start()
	n.config.logger.Info(
		"node started",
		"component", "node",
		"metadata_plugin", n.config.metadataPlugin,
		"notifier_plugin", n.config.notifierPlugin,
		"scheduler_enabled", n.config.schedule.Enabled,
	)
	return nil
}

// Engine returns the staking engine. It is nil until the node is started
func (n *Node) Engine() *staking.Engine {
	return n.engine
}

// Scheduler returns the job runner. It is nil until the node is started
func (n *Node) Scheduler() *scheduler.Runner {
	return n.scheduler
}

func (n *Node) handleCapacityIncreased(evt event.Event) {
	data, ok := evt.Data.(event.CapacityIncreasedEvent)
	if !ok {
		return
	}
	if err := n.engine.NotifyUsers(n.ctx, data.PlanID); err != nil {
		n.config.logger.Error(
			"failed to notify plan watchers",
			"component", "node",
			"plan_id", data.PlanID,
			"error", err,
		)
	}
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := defaultShutdownTimeout
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop scheduling new work and abort running jobs
	if n.scheduler != nil {
		n.scheduler.Stop()
	}
	n.cancel()

	// Phase 2: Drain event handlers before closing what they use
	if n.eventBus != nil {
		n.eventBus.Stop()
	}
	if n.notifier != nil {
		if stopErr := n.notifier.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("notifier shutdown: %w", stopErr))
		}
	}

	// Phase 3: Close database
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}
