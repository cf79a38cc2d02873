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
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/stakeplan/database"
	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/event"
	"github.com/blinklabs-io/stakeplan/scheduler"
	"github.com/blinklabs-io/stakeplan/staking"
	"github.com/blinklabs-io/stakeplan/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCollectors = staking.Collectors{Asset: 9001, Fee: 9002, Reward: 9003}

type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(NewConfig())
	require.ErrorContains(t, err, "collector accounts are required")

	_, err = New(NewConfig(WithCollectors(staking.Collectors{Asset: 1, Fee: 1, Reward: 2})))
	require.ErrorContains(t, err, "distinct")

	_, err = New(NewConfig(WithCollectors(testCollectors), WithTracingStdout(true)))
	require.ErrorContains(t, err, "requires tracing")
}

func TestConfigOptions(t *testing.T) {
	schedule := scheduler.Schedule{Enabled: true, Default: "0 */5 * * * *"}
	cfg := NewConfig(
		WithDatabasePath("/tmp/data"),
		WithMetadataPlugin("postgres"),
		WithNotifierPlugin("kafka"),
		WithSchedule(schedule),
		WithGiveRewardUniqueFromPlanId(12),
		WithShutdownTimeout(5*time.Second),
		WithTracing(true),
		WithOverdraftAccounts(9002),
		WithOverdraftAccounts(9003),
	)
	assert.NotNil(t, cfg.logger)
	assert.Equal(t, "/tmp/data", cfg.dataDir)
	assert.Equal(t, "postgres", cfg.metadataPlugin)
	assert.Equal(t, "kafka", cfg.notifierPlugin)
	assert.Equal(t, schedule, cfg.schedule)
	assert.Equal(t, uint(12), cfg.giveRewardUniqueFromPlanId)
	assert.Equal(t, 5*time.Second, cfg.shutdownTimeout)
	assert.True(t, cfg.tracing)
	assert.Equal(t, []uint{9002, 9003}, cfg.overdraftAccounts)
	assert.False(t, cfg.tracingStdout)
}

func TestNodeNotifiesWatchersOnCapacityIncrease(t *testing.T) {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	clock := staking.NewManualClock(start.Add(time.Hour))
	logs := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	n, err := New(NewConfig(
		WithLogger(logger),
		WithCollectors(testCollectors),
		WithClock(clock),
	))
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() { _ = n.Stop() })
	require.Error(t, n.Start())
	require.NotNil(t, n.Engine())
	require.NotNil(t, n.Scheduler())
	assert.NotEmpty(t, n.Scheduler().JobNames())

	db := n.Engine().Database()
	platform := &models.ExternalEarningPlatform{
		Currency:    "ADA",
		Tp:          models.PlatformTypeStaking,
		IsAvailable: true,
	}
	require.NoError(t, db.CreatePlatform(platform, nil))
	plan := &models.Plan{
		ExternalPlatformID:       platform.ID,
		AnnouncedAt:              start.Add(-24 * time.Hour),
		OpenedAt:                 start,
		RequestPeriod:            48 * time.Hour,
		StakedAt:                 start.Add(72 * time.Hour),
		StakingPeriod:            30 * 24 * time.Hour,
		UnstakingPeriod:          48 * time.Hour,
		RewardAnnouncementPeriod: 24 * time.Hour,
		TotalCapacity:            decimal.NewFromInt(1000),
		InitialPoolCapacity:      decimal.NewFromInt(1000),
		MinStakingAmount:         decimal.NewFromInt(10),
		StakingPrecision:         decimal.NewFromInt(1),
	}
	require.NoError(t, db.CreatePlan(plan, nil))
	require.NoError(t, n.Engine().AddWatch(7, plan.ID))

	n.eventBus.Publish(
		event.CapacityIncreasedEventType,
		event.NewEvent(
			event.CapacityIncreasedEventType,
			event.CapacityIncreasedEvent{PlanID: plan.ID, FreeCapacity: plan.TotalCapacity},
		),
	)
	assert.Eventually(
		t,
		func() bool { return strings.Contains(logs.String(), "plan has free capacity") },
		5*time.Second,
		10*time.Millisecond,
	)
	assert.Eventually(
		t,
		func() bool {
			ids, err := n.Engine().WatchedPlanIds(7)
			return err == nil && len(ids) == 0
		},
		5*time.Second,
		10*time.Millisecond,
	)

	require.NoError(t, n.Stop())
	require.NoError(t, n.Stop())
}

func TestNodeCollectorsOverdraftIsOptIn(t *testing.T) {
	debit := func(t *testing.T, opts ...ConfigOptionFunc) error {
		t.Helper()
		n, err := New(NewConfig(append([]ConfigOptionFunc{WithCollectors(testCollectors)}, opts...)...))
		require.NoError(t, err)
		require.NoError(t, n.Start())
		t.Cleanup(func() { _ = n.Stop() })
		return n.Engine().Database().Transaction(true).Do(func(txn *database.Txn) error {
			_, err := n.wallet.CreateAndCommitTransaction(
				txn,
				testCollectors.Asset,
				"ADA",
				decimal.NewFromInt(-1),
				"test",
				1,
				"debit empty collector",
			)
			return err
		})
	}

	require.ErrorIs(t, debit(t), wallet.ErrInsufficientBalance)
	require.ErrorIs(t, debit(t, WithOverdraftAccounts(testCollectors.Fee)), wallet.ErrInsufficientBalance)
	require.NoError(t, debit(t, WithOverdraftAccounts(testCollectors.Asset)))
}
