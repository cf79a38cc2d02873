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

	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/event"
	"github.com/blinklabs-io/stakeplan/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(EngineConfig{})
	require.Error(t, err)
	env := newTestEnv(t)
	_, err = NewEngine(EngineConfig{Database: env.db})
	require.Error(t, err)
}

func TestIsIdempotencyError(t *testing.T) {
	assert.True(t, IsIdempotencyError(ErrAlreadyCreated))
	assert.True(t, IsIdempotencyError(ErrParentIsNotCreated))
	assert.True(t, IsIdempotencyError(ErrTooSoon))
	assert.False(t, IsIdempotencyError(ErrTooLate))
	assert.False(t, IsIdempotencyError(ErrFailedAssetTransfer))
	assert.False(t, IsIdempotencyError(nil))
}

func TestTransitionMetricsAndEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	bus := event.NewEventBus(nil, nil)
	t.Cleanup(bus.Stop)
	env := newTestEnv(t, func(cfg *EngineConfig) {
		cfg.PromRegistry = reg
		cfg.EventBus = bus
	})
	_, transitions := bus.Subscribe(event.TransitionEventType)
	plan := env.createPlan(t)
	env.deposit(t, 7, "50")
	env.clock.Advance(time.Hour)

	require.NoError(t, env.engine.CreateRequest(7, plan.ID, dec("20")))
	require.ErrorIs(t, env.engine.SystemApproveStakeAmount(plan.ID), ErrTooSoon)

	assert.InDelta(t, 1, testutil.ToFloat64(
		env.engine.metrics.transitions.WithLabelValues("create_request", "ok"),
	), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(
		env.engine.metrics.transitions.WithLabelValues("system_approve_stake_amount", "too_soon"),
	), 0)

	select {
	case evt := <-transitions:
		data, ok := evt.Data.(event.TransitionEvent)
		require.True(t, ok)
		assert.Equal(t, "create_request", data.Transition)
		assert.Equal(t, uint(7), data.UserID)
		assert.Equal(t, plan.ID, data.PlanID)
		assertDecimal(t, "20", data.Amount)
	case <-time.After(time.Second):
		t.Fatal("no transition event")
	}
	// Failed transitions are not published
	select {
	case evt := <-transitions:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}

func (env *testEnv) walletTxCount(t *testing.T, userId uint) int {
	t.Helper()
	txs, err := env.ledger.Transactions(userId, nil)
	require.NoError(t, err)
	return len(txs)
}

func TestRepeatedTransitionSkipsWallet(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t)
	env.deposit(t, 7, "50")
	env.clock.Advance(time.Hour)
	require.NoError(t, env.engine.CreateRequest(7, plan.ID, dec("20")))

	env.clock.Set(plan.RequestClosesAt())
	require.NoError(t, env.engine.SystemApproveStakeAmount(plan.ID))
	assert.Equal(t, 1, env.walletTxCount(t, assetCollector))
	assertDecimal(t, "20", env.balance(t, assetCollector))

	require.ErrorIs(t, env.engine.SystemApproveStakeAmount(plan.ID), ErrAlreadyCreated)
	assert.Equal(t, 1, env.walletTxCount(t, assetCollector))
	assertDecimal(t, "20", env.balance(t, assetCollector))
}

func TestWalletFailureRollsBackSettlement(t *testing.T) {
	env := newTestEnv(t, func(cfg *EngineConfig) {
		cfg.Wallet = wallet.New(cfg.Database)
	})
	plan := env.createPlan(t, func(p *models.Plan) {
		p.Fee = dec("0.2")
		p.FilledCapacity = dec("900")
	})
	env.stakedUser(t, plan, 1, "600")
	env.stakedUser(t, plan, 2, "300")
	env.seedPlanRow(t, &models.PlanTransaction{
		PlanID:    plan.ID,
		Tp:        models.PlanTransactionTypeFetchedReward,
		Amount:    dec("150"),
		CreatedAt: plan.StakingEndsAt(),
	})
	env.clock.Set(plan.StakingEndsAt().Add(time.Hour))
	require.NoError(t, env.engine.AnnounceReward(plan.ID))
	require.NoError(t, env.engine.ApproveRewardAmount(plan.ID))
	announcement := env.activePlanRow(t, plan.ID, models.PlanTransactionTypeAnnounceReward)
	require.NotNil(t, announcement)
	assertDecimal(t, "120", announcement.Amount)

	// The asset collector holds nothing and may not overdraw
	err := env.engine.WithdrawUsersRewardFromPlan(plan.ID)
	require.ErrorIs(t, err, ErrFailedAssetTransfer)
	for _, tp := range []models.PlanTransactionType{
		models.PlanTransactionTypeFee,
		models.PlanTransactionTypeGiveReward,
		models.PlanTransactionTypeSystemReward,
	} {
		exists, err := env.db.PlanTransactionExists(plan.ID, tp, nil)
		require.NoError(t, err)
		assert.False(t, exists, tp)
	}
	assert.Equal(t, 0, env.walletTxCount(t, feeCollector))
	assert.Equal(t, 0, env.walletTxCount(t, rewardCollector))
	assert.Equal(t, 0, env.walletTxCount(t, assetCollector))
	still := env.activePlanRow(t, plan.ID, models.PlanTransactionTypeAnnounceReward)
	require.NotNil(t, still)
	assert.Equal(t, announcement.ID, still.ID)

	env.deposit(t, assetCollector, "150")
	require.NoError(t, env.engine.WithdrawUsersRewardFromPlan(plan.ID))
	assertDecimal(t, "0", env.balance(t, assetCollector))
	assertDecimal(t, "30", env.balance(t, feeCollector))
	assertDecimal(t, "12", env.balance(t, rewardCollector))
}
