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

package staking

import (
	"testing"
	"time"

	"github.com/blinklabs-io/stakeplan/database"
	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCurrency = "ADA"

	assetCollector  uint = 9001
	feeCollector    uint = 9002
	rewardCollector uint = 9003
)

var testStart = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *database.Database
	ledger   *wallet.Ledger
	clock    *ManualClock
	engine   *Engine
	platform *models.ExternalEarningPlatform
}

func newTestEnv(t *testing.T, opts ...func(*EngineConfig)) *testEnv {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	clock := NewManualClock(testStart)
	collectors := Collectors{
		Asset:  assetCollector,
		Fee:    feeCollector,
		Reward: rewardCollector,
	}
	ledger := wallet.New(
		db,
		wallet.WithOverdraftUsers(collectors.Accounts()...),
		wallet.WithNowFunc(clock.Now),
	)
	cfg := EngineConfig{
		Database:   db,
		Wallet:     ledger,
		Clock:      clock,
		Collectors: collectors,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	platform := &models.ExternalEarningPlatform{
		Currency:    testCurrency,
		Tp:          models.PlatformTypeStaking,
		IsAvailable: true,
	}
	require.NoError(t, db.CreatePlatform(platform, nil))
	return &testEnv{
		db:       db,
		ledger:   ledger,
		clock:    clock,
		engine:   engine,
		platform: platform,
	}
}

// createPlan stores a plan that opens at testStart, closes requests two days
// later and stakes for 30 days starting on day three
func (env *testEnv) createPlan(t *testing.T, mutate ...func(*models.Plan)) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		ExternalPlatformID:       env.platform.ID,
		AnnouncedAt:              testStart.Add(-24 * time.Hour),
		OpenedAt:                 testStart,
		RequestPeriod:            48 * time.Hour,
		StakedAt:                 testStart.Add(72 * time.Hour),
		StakingPeriod:            30 * 24 * time.Hour,
		UnstakingPeriod:          48 * time.Hour,
		RewardAnnouncementPeriod: 24 * time.Hour,
		TotalCapacity:            decimal.NewFromInt(1000),
		InitialPoolCapacity:      decimal.NewFromInt(1000),
		MinStakingAmount:         decimal.NewFromInt(10),
		StakingPrecision:         decimal.NewFromInt(1),
		Fee:                      decimal.RequireFromString("0.1"),
		IsExtendable:             true,
		IsInstantlyUnstakable:    true,
	}
	for _, fn := range mutate {
		fn(plan)
	}
	require.NoError(t, env.db.CreatePlan(plan, nil))
	return plan
}

func (env *testEnv) deposit(t *testing.T, userId uint, amount string) {
	t.Helper()
	_, err := env.ledger.Deposit(
		userId,
		testCurrency,
		decimal.RequireFromString(amount),
		"test funding",
	)
	require.NoError(t, err)
}

func (env *testEnv) plan(t *testing.T, planId uint) *models.Plan {
	t.Helper()
	plan, err := env.db.GetPlan(planId, nil)
	require.NoError(t, err)
	return plan
}

func (env *testEnv) seedPlanRow(t *testing.T, row *models.PlanTransaction) *models.PlanTransaction {
	t.Helper()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = env.clock.Now()
	}
	require.NoError(t, env.db.CreatePlanTransaction(row, nil))
	return row
}

func (env *testEnv) seedUserRow(t *testing.T, row *models.StakingTransaction) *models.StakingTransaction {
	t.Helper()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = env.clock.Now()
	}
	require.NoError(t, env.db.CreateStakingTransaction(row, nil))
	return row
}

func (env *testEnv) activePlanRow(
	t *testing.T,
	planId uint,
	tp models.PlanTransactionType,
) *models.PlanTransaction {
	t.Helper()
	row, err := env.db.GetActivePlanTransaction(planId, tp, nil)
	require.NoError(t, err)
	return row
}

func (env *testEnv) activeUserRow(
	t *testing.T,
	userId uint,
	planId uint,
	tp models.StakingTransactionType,
) *models.StakingTransaction {
	t.Helper()
	row, err := env.db.GetActiveStakingTransaction(userId, planId, tp, nil)
	require.NoError(t, err)
	return row
}

func (env *testEnv) balance(t *testing.T, userId uint) decimal.Decimal {
	t.Helper()
	balance, err := env.ledger.Balance(userId, testCurrency, nil)
	require.NoError(t, err)
	return balance
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(
		t,
		decimal.RequireFromString(expected).Equal(actual),
		"expected %s, got %s",
		expected,
		actual.String(),
	)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
