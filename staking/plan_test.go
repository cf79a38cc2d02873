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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCandidates(t *testing.T, expected []uint, query func() ([]uint, error)) {
	t.Helper()
	ids, err := query()
	require.NoError(t, err)
	assert.ElementsMatch(t, expected, ids)
}

func TestPlanLifecycleWithExtension(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine
	planA := env.createPlan(t)
	planB := env.createPlan(t, func(p *models.Plan) {
		p.ExtendedFromID = &planA.ID
		p.OpenedAt = testStart.Add(20 * 24 * time.Hour)
		p.StakedAt = planA.StakingEndsAt()
		p.TotalCapacity = dec("500")
		p.InitialPoolCapacity = dec("500")
	})

	env.deposit(t, 1, "200")
	env.clock.Advance(time.Hour)
	require.NoError(t, engine.CreateRequest(1, planA.ID, dec("123.456")))

	// Request window
	require.ErrorIs(t, engine.SystemApproveStakeAmount(planA.ID), ErrTooSoon)
	requireCandidates(t, []uint{}, engine.PlanIdsToApproveStakeAmount)

	env.clock.Set(planA.RequestClosesAt().Add(time.Minute))
	requireCandidates(t, []uint{planA.ID}, engine.PlanIdsToApproveStakeAmount)
	require.NoError(t, engine.SystemApproveStakeAmount(planA.ID))
	assertDecimal(t, "123", env.balance(t, assetCollector))
	require.ErrorIs(t, engine.SystemApproveStakeAmount(planA.ID), ErrAlreadyCreated)
	assertDecimal(t, "123", env.balance(t, assetCollector))
	requireCandidates(t, []uint{}, engine.PlanIdsToApproveStakeAmount)

	// Staking starts
	require.ErrorIs(t, engine.StakeAssets(planA.ID), ErrTooSoon)
	requireCandidates(t, []uint{}, engine.PlanIdsToStake)
	env.clock.Set(planA.StakedAt.Add(time.Hour))
	requireCandidates(t, []uint{planA.ID}, engine.PlanIdsToStake)
	require.NoError(t, engine.StakeAssets(planA.ID))
	pool := env.activePlanRow(t, planA.ID, models.PlanTransactionTypeStake)
	require.NotNil(t, pool)
	assertDecimal(t, "123", pool.Amount)
	assert.Nil(t, env.activePlanRow(t, planA.ID, models.PlanTransactionTypeSystemStakeAmountApproval))
	require.ErrorIs(t, engine.StakeAssets(planA.ID), ErrAlreadyCreated)

	requireCandidates(t, []uint{planA.ID}, engine.PlanIdsToAssignStaking)
	requireCandidates(t, []uint{1}, func() ([]uint, error) {
		return engine.UserIdsToAssignStaking(planA.ID)
	})
	require.NoError(t, engine.StakeUserAssets(1, planA.ID))
	stake := env.activeUserRow(t, 1, planA.ID, models.StakingTransactionTypeStake)
	require.NotNil(t, stake)
	assertDecimal(t, "123", stake.Amount)
	require.NotNil(t, stake.PlanTransactionID)
	assert.Equal(t, pool.ID, *stake.PlanTransactionID)
	assertDecimal(t, "0", env.activePlanRow(t, planA.ID, models.PlanTransactionTypeStake).Amount)
	require.ErrorIs(t, engine.StakeUserAssets(1, planA.ID), ErrAlreadyCreated)
	requireCandidates(t, []uint{}, engine.PlanIdsToAssignStaking)

	// Staking ends
	env.clock.Set(planA.StakingEndsAt().Add(time.Hour))
	require.ErrorIs(t, engine.CreateExtendOut(planA.ID), ErrTooSoon)
	requireCandidates(t, []uint{planA.ID}, engine.PlanIdsToEndUserStaking)
	require.NoError(t, engine.EndUserStaking(1, planA.ID))
	require.ErrorIs(t, engine.EndUserStaking(1, planA.ID), ErrAlreadyCreated)
	extendOut := env.activeUserRow(t, 1, planA.ID, models.StakingTransactionTypeExtendOut)
	require.NotNil(t, extendOut)
	assertDecimal(t, "123", extendOut.Amount)
	assert.Nil(t, env.activeUserRow(t, 1, planA.ID, models.StakingTransactionTypeStake))
	requireCandidates(t, []uint{}, engine.PlanIdsToEndUserStaking)

	requireCandidates(t, []uint{planA.ID}, engine.PlanIdsToCreateExtendOut)
	require.NoError(t, engine.CreateExtendOut(planA.ID))
	require.ErrorIs(t, engine.CreateExtendOut(planA.ID), ErrAlreadyCreated)
	planExtendOut := env.activePlanRow(t, planA.ID, models.PlanTransactionTypeExtendOut)
	require.NotNil(t, planExtendOut)
	assertDecimal(t, "123", planExtendOut.Amount)
	planUnstake := env.activePlanRow(t, planA.ID, models.PlanTransactionTypeUnstake)
	require.NotNil(t, planUnstake)
	assertDecimal(t, "0", planUnstake.Amount)
	assertDecimal(t, "123", env.plan(t, planA.ID).ExtendedCapacity)
	requireCandidates(t, []uint{}, engine.PlanIdsToCreateExtendOut)

	// Extension into the successor
	requireCandidates(t, []uint{planA.ID}, engine.PlanIdsToExtendStaking)
	requireCandidates(t, []uint{}, engine.PlanIdsToExtendUsers)
	require.ErrorIs(t, engine.ExtendUserStaking(1, planA.ID), ErrParentIsNotCreated)
	require.NoError(t, engine.CreateExtendIn(planA.ID))
	require.ErrorIs(t, engine.CreateExtendIn(planA.ID), ErrAlreadyCreated)
	successor := env.plan(t, planB.ID)
	assertDecimal(t, "623", successor.TotalCapacity)
	assertDecimal(t, "123", successor.FilledCapacity)
	assertDecimal(t, "123", successor.FilledByExtension)
	successorPool := env.activePlanRow(t, planB.ID, models.PlanTransactionTypeStake)
	require.NotNil(t, successorPool)
	assertDecimal(t, "123", successorPool.Amount)
	requireCandidates(t, []uint{}, engine.PlanIdsToExtendStaking)

	requireCandidates(t, []uint{planA.ID}, engine.PlanIdsToExtendUsers)
	requireCandidates(t, []uint{1}, func() ([]uint, error) {
		return engine.UserIdsToExtend(planA.ID)
	})
	require.NoError(t, engine.ExtendUserStaking(1, planA.ID))
	require.ErrorIs(t, engine.ExtendUserStaking(1, planA.ID), ErrAlreadyCreated)
	successorStake := env.activeUserRow(t, 1, planB.ID, models.StakingTransactionTypeStake)
	require.NotNil(t, successorStake)
	assertDecimal(t, "123", successorStake.Amount)
	extendIn := env.activeUserRow(t, 1, planB.ID, models.StakingTransactionTypeExtendIn)
	require.NotNil(t, extendIn)
	require.NotNil(t, extendIn.ParentID)
	assert.Equal(t, extendOut.ID, *extendIn.ParentID)
	assertDecimal(t, "0", env.activePlanRow(t, planB.ID, models.PlanTransactionTypeStake).Amount)
	requireCandidates(t, []uint{}, engine.PlanIdsToExtendUsers)

	// Release after the unstaking period
	requireCandidates(t, []uint{}, engine.PlanIdsToCreateRelease)
	require.ErrorIs(t, engine.CreateRelease(planA.ID), ErrTooSoon)
	env.clock.Set(planA.UnstakingEndsAt().Add(time.Hour))
	requireCandidates(t, []uint{planA.ID}, engine.PlanIdsToCreateRelease)
	require.NoError(t, engine.CreateRelease(planA.ID))
	require.ErrorIs(t, engine.CreateRelease(planA.ID), ErrAlreadyCreated)
	assertDecimal(t, "123", env.balance(t, assetCollector))
	assertDecimal(t, "0", env.plan(t, planA.ID).ReleasedCapacity)
	require.ErrorIs(t, engine.ReleaseUserAssets(1, planA.ID), ErrParentIsNotCreated)
	requireCandidates(t, []uint{}, engine.PlanIdsToReleaseUserAssets)
}

func TestStakeUserAssetsRejectsUncoveredRequest(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t)
	env.deposit(t, 1, "100")
	env.clock.Advance(time.Hour)
	require.NoError(t, env.engine.CreateRequest(1, plan.ID, dec("50")))
	require.ErrorIs(t, env.engine.StakeUserAssets(1, plan.ID), ErrParentIsNotCreated)

	env.clock.Set(plan.StakedAt.Add(time.Hour))
	env.seedPlanRow(t, &models.PlanTransaction{
		PlanID: plan.ID,
		Tp:     models.PlanTransactionTypeStake,
		Amount: dec("20"),
	})
	require.NoError(t, env.engine.StakeUserAssets(1, plan.ID))
	assert.Nil(t, env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeStake))
	rejected := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeSystemRejectedCreate)
	require.NotNil(t, rejected)
	assertDecimal(t, "50", rejected.Amount)
	assertDecimal(t, "100", env.balance(t, 1))
	assertDecimal(t, "0", env.plan(t, plan.ID).FilledCapacity)
	assertDecimal(t, "20", env.activePlanRow(t, plan.ID, models.PlanTransactionTypeStake).Amount)
	require.ErrorIs(t, env.engine.StakeUserAssets(1, plan.ID), ErrAlreadyCreated)
}

func TestCreateExtendInRequiresSingleSuccessor(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t)
	env.clock.Set(plan.StakingEndsAt().Add(time.Hour))
	env.seedPlanRow(t, &models.PlanTransaction{
		PlanID: plan.ID,
		Tp:     models.PlanTransactionTypeExtendOut,
		Amount: dec("10"),
	})
	require.ErrorIs(t, env.engine.CreateExtendIn(plan.ID), ErrAdminMistake)
	for range 2 {
		env.createPlan(t, func(p *models.Plan) {
			p.ExtendedFromID = &plan.ID
		})
	}
	require.ErrorIs(t, env.engine.CreateExtendIn(plan.ID), ErrAdminMistake)

	fixed := env.createPlan(t, func(p *models.Plan) {
		p.IsExtendable = false
	})
	require.ErrorIs(t, env.engine.CreateExtendIn(fixed.ID), ErrNonExtendablePlan)
}

func TestReleaseUnstakedAssets(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, func(p *models.Plan) {
		p.IsExtendable = false
	})
	env.clock.Set(plan.StakingEndsAt().Add(time.Hour))
	env.seedPlanRow(t, &models.PlanTransaction{
		PlanID: plan.ID,
		Tp:     models.PlanTransactionTypeStake,
		Amount: dec("0"),
	})
	env.seedUserRow(t, &models.StakingTransaction{
		UserID: 1,
		PlanID: plan.ID,
		Tp:     models.StakingTransactionTypeStake,
		Amount: dec("103"),
	})
	require.NoError(t, env.engine.EndUserStaking(1, plan.ID))
	require.NoError(t, env.engine.CreateExtendOut(plan.ID))
	assertDecimal(t, "103", env.activePlanRow(t, plan.ID, models.PlanTransactionTypeUnstake).Amount)
	assertDecimal(t, "0", env.activePlanRow(t, plan.ID, models.PlanTransactionTypeExtendOut).Amount)
	requireCandidates(t, []uint{}, env.engine.PlanIdsToExtendStaking)

	requireCandidates(t, []uint{}, env.engine.PlanIdsToReleaseUserAssets)
	env.clock.Set(plan.UnstakingEndsAt())
	require.NoError(t, env.engine.CreateRelease(plan.ID))
	assertDecimal(t, "-103", env.balance(t, assetCollector))
	assertDecimal(t, "103", env.plan(t, plan.ID).ReleasedCapacity)

	requireCandidates(t, []uint{plan.ID}, env.engine.PlanIdsToReleaseUserAssets)
	requireCandidates(t, []uint{1}, func() ([]uint, error) {
		return env.engine.UserIdsToReleaseAssets(plan.ID)
	})
	require.NoError(t, env.engine.ReleaseUserAssets(1, plan.ID))
	require.ErrorIs(t, env.engine.ReleaseUserAssets(1, plan.ID), ErrAlreadyCreated)
	assertDecimal(t, "103", env.balance(t, 1))
	release := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeRelease)
	require.NotNil(t, release)
	require.NotNil(t, release.WalletTransactionID)
	requireCandidates(t, []uint{}, env.engine.PlanIdsToReleaseUserAssets)
}
