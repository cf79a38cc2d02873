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

// stakedUser seeds a user stake in a plan that is in its staking period
func (env *testEnv) stakedUser(
	t *testing.T,
	plan *models.Plan,
	userId uint,
	amount string,
) *models.StakingTransaction {
	t.Helper()
	if env.clock.Now().Before(plan.StakedAt) {
		env.clock.Set(plan.StakedAt.Add(time.Hour))
	}
	return env.seedUserRow(t, &models.StakingTransaction{
		UserID:    userId,
		PlanID:    plan.ID,
		Tp:        models.StakingTransactionTypeStake,
		Amount:    dec(amount),
		CreatedAt: plan.StakedAt,
	})
}

func TestEndUserStaking(t *testing.T) {
	testDefs := []struct {
		name       string
		extendable bool
		// runs while staking is still in progress
		setup          func(t *testing.T, env *testEnv, plan *models.Plan)
		extendOut      string
		unstake        string
		acceptedEnd    bool
		unstakeParentT models.StakingTransactionType
	}{
		{
			name:       "extend everything",
			extendable: true,
			extendOut:  "103",
		},
		{
			name:       "end request",
			extendable: true,
			setup: func(t *testing.T, env *testEnv, plan *models.Plan) {
				require.NoError(t, env.engine.CreateEndRequest(1, plan.ID, dec("40.7")))
			},
			extendOut:      "63",
			unstake:        "40",
			acceptedEnd:    true,
			unstakeParentT: models.StakingTransactionTypeEndRequest,
		},
		{
			name:       "end request above stake",
			extendable: true,
			setup: func(t *testing.T, env *testEnv, plan *models.Plan) {
				env.seedUserRow(t, &models.StakingTransaction{
					UserID: 1,
					PlanID: plan.ID,
					Tp:     models.StakingTransactionTypeEndRequest,
					Amount: dec("500"),
				})
			},
			extendOut:      "0",
			unstake:        "103",
			acceptedEnd:    true,
			unstakeParentT: models.StakingTransactionTypeEndRequest,
		},
		{
			name:       "auto end",
			extendable: true,
			setup: func(t *testing.T, env *testEnv, plan *models.Plan) {
				require.NoError(t, env.engine.CreateEndRequest(1, plan.ID, dec("10")))
				require.NoError(t, env.engine.EnableAutoEnd(1, plan.ID))
			},
			extendOut:      "0",
			unstake:        "103",
			acceptedEnd:    true,
			unstakeParentT: models.StakingTransactionTypeAutoEndRequest,
		},
		{
			name:       "non extendable",
			extendable: false,
			extendOut:  "0",
			unstake:    "103",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			env := newTestEnv(t)
			plan := env.createPlan(t, func(p *models.Plan) {
				p.IsExtendable = testDef.extendable
			})
			stake := env.stakedUser(t, plan, 1, "103")
			if testDef.setup != nil {
				testDef.setup(t, env, plan)
			}
			require.ErrorIs(t, env.engine.EndUserStaking(1, plan.ID), ErrTooSoon)

			env.clock.Set(plan.StakingEndsAt())
			require.NoError(t, env.engine.EndUserStaking(1, plan.ID))
			require.ErrorIs(t, env.engine.EndUserStaking(1, plan.ID), ErrAlreadyCreated)

			extendOut := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeExtendOut)
			require.NotNil(t, extendOut)
			assertDecimal(t, testDef.extendOut, extendOut.Amount)
			require.NotNil(t, extendOut.ParentID)
			assert.Equal(t, stake.ID, *extendOut.ParentID)

			unstake := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeUnstake)
			if testDef.unstake == "" {
				assert.Nil(t, unstake)
			} else {
				require.NotNil(t, unstake)
				assertDecimal(t, testDef.unstake, unstake.Amount)
				if testDef.unstakeParentT == 0 {
					assert.Nil(t, unstake.ParentID)
				} else {
					require.NotNil(t, unstake.ParentID)
					requests, err := env.db.GetStakingTransactionsByPlan(plan.ID, testDef.unstakeParentT, nil)
					require.NoError(t, err)
					require.NotEmpty(t, requests)
					assert.Equal(t, requests[len(requests)-1].ID, *unstake.ParentID)
				}
			}
			accepted, err := env.db.StakingTransactionExists(
				1,
				plan.ID,
				models.StakingTransactionTypeSystemAcceptedEnd,
				nil,
			)
			require.NoError(t, err)
			assert.Equal(t, testDef.acceptedEnd, accepted)
		})
	}
}

func TestEndUserStakingWithoutStake(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t)
	env.clock.Set(plan.StakingEndsAt())
	require.ErrorIs(t, env.engine.EndUserStaking(1, plan.ID), ErrParentIsNotCreated)
}

func TestCreateEndRequest(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t)
	fixed := env.createPlan(t, func(p *models.Plan) {
		p.IsExtendable = false
	})
	env.stakedUser(t, plan, 1, "100")
	env.stakedUser(t, fixed, 1, "100")

	require.ErrorIs(t, env.engine.CreateEndRequest(2, plan.ID, dec("10")), ErrParentIsNotCreated)
	require.ErrorIs(t, env.engine.CreateEndRequest(1, plan.ID, dec("0.5")), ErrInvalidAmount)
	require.ErrorIs(t, env.engine.CreateEndRequest(1, fixed.ID, dec("10")), ErrNonExtendablePlan)
	require.NoError(t, env.engine.CreateEndRequest(1, plan.ID, dec("10")))
	require.ErrorIs(t, env.engine.CreateEndRequest(1, plan.ID, dec("20")), ErrAlreadyCreated)

	request := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeEndRequest)
	require.NotNil(t, request)
	assertDecimal(t, "10", request.Amount)
	require.NotNil(t, request.UniqueKey)

	env.clock.Set(plan.StakingEndsAt())
	require.ErrorIs(t, env.engine.CreateEndRequest(1, plan.ID, dec("10")), ErrTooLate)
}

func TestInstantEndRequest(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, func(p *models.Plan) {
		p.StakingPrecision = dec("0.1")
		p.FilledCapacity = dec("100")
	})
	stake := env.stakedUser(t, plan, 1, "25")
	announcement := env.seedUserRow(t, &models.StakingTransaction{
		UserID: 1,
		PlanID: plan.ID,
		Tp:     models.StakingTransactionTypeAnnounceReward,
		Amount: dec("3.23"),
	})

	require.ErrorIs(t, env.engine.CreateInstantEndRequest(1, plan.ID, dec("-1")), ErrInvalidAmount)
	require.ErrorIs(t, env.engine.CreateInstantEndRequest(2, plan.ID, dec("1")), ErrParentIsNotCreated)
	require.ErrorIs(t, env.engine.CreateInstantEndRequest(1, plan.ID, dec("15.1")), ErrInvalidAmount)
	require.ErrorIs(t, env.engine.CreateInstantEndRequest(1, plan.ID, dec("25.1")), ErrInvalidAmount)

	require.NoError(t, env.engine.CreateInstantEndRequest(1, plan.ID, dec("2.55")))
	require.NoError(t, env.engine.CreateInstantEndRequest(1, plan.ID, dec("2.5")))
	request := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeInstantEndRequest)
	require.NotNil(t, request)
	assertDecimal(t, "5", request.Amount)
	require.NotNil(t, request.ParentID)

	requireCandidates(t, []uint{plan.ID}, env.engine.PlanIdsToApplyInstantEndRequests)
	requireCandidates(t, []uint{1}, func() ([]uint, error) {
		return env.engine.UserIdsToApplyInstantEndRequests(plan.ID)
	})
	require.NoError(t, env.engine.ApplyInstantEndRequest(1, plan.ID))
	require.ErrorIs(t, env.engine.ApplyInstantEndRequest(1, plan.ID), ErrParentIsNotCreated)
	requireCandidates(t, []uint{}, env.engine.PlanIdsToApplyInstantEndRequests)

	current := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeStake)
	require.NotNil(t, current)
	assert.Equal(t, stake.ID, current.ID)
	assertDecimal(t, "20", current.Amount)
	assertDecimal(t, "95", env.plan(t, plan.ID).FilledCapacity)
	unstake := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeUnstake)
	require.NotNil(t, unstake)
	assertDecimal(t, "5", unstake.Amount)
	require.NotNil(t, unstake.ParentID)
	assert.Equal(t, request.ID, *unstake.ParentID)
	scaled := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeAnnounceReward)
	require.NotNil(t, scaled)
	assert.Equal(t, announcement.ID, scaled.ID)
	assertDecimal(t, "2.584", scaled.Amount)

	// Reverting puts the stake and capacity back
	require.ErrorIs(t, env.engine.CancelEndRequest(1, plan.ID, dec("0")), ErrInvalidAmount)
	require.ErrorIs(t, env.engine.CancelEndRequest(1, plan.ID, dec("4")), ErrParentIsNotCreated)
	require.NoError(t, env.engine.CancelEndRequest(1, plan.ID, dec("5")))
	assertDecimal(t, "25", env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeStake).Amount)
	assertDecimal(t, "100", env.plan(t, plan.ID).FilledCapacity)
	assert.Nil(t, env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeUnstake))
	require.ErrorIs(t, env.engine.CancelEndRequest(1, plan.ID, dec("5")), ErrParentIsNotCreated)

	env.clock.Set(plan.StakingEndsAt())
	require.ErrorIs(t, env.engine.CreateInstantEndRequest(1, plan.ID, dec("1")), ErrTooLate)
}

func TestApplyInstantEndRequestRejectsExcess(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t)
	env.stakedUser(t, plan, 1, "20")
	env.seedUserRow(t, &models.StakingTransaction{
		UserID: 1,
		PlanID: plan.ID,
		Tp:     models.StakingTransactionTypeInstantEndRequest,
		Amount: dec("30"),
	})
	require.NoError(t, env.engine.ApplyInstantEndRequest(1, plan.ID))
	rejected := env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeSystemRejectedEnd)
	require.NotNil(t, rejected)
	assertDecimal(t, "30", rejected.Amount)
	assertDecimal(t, "20", env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeStake).Amount)
}

func TestInstantEndNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t, func(p *models.Plan) {
		p.IsInstantlyUnstakable = false
	})
	env.stakedUser(t, plan, 1, "20")
	require.ErrorIs(
		t,
		env.engine.CreateInstantEndRequest(1, plan.ID, dec("10")),
		ErrNotInstantlyUnstakable,
	)
}

func TestAutoEnd(t *testing.T) {
	env := newTestEnv(t)
	plan := env.createPlan(t)
	fixed := env.createPlan(t, func(p *models.Plan) {
		p.IsExtendable = false
	})
	env.stakedUser(t, plan, 1, "20")

	require.ErrorIs(t, env.engine.EnableAutoEnd(1, 999), ErrInvalidPlanId)
	require.NoError(t, env.engine.EnableAutoEnd(1, plan.ID))
	require.NoError(t, env.engine.EnableAutoEnd(1, plan.ID))
	rows, err := env.db.GetStakingTransactionsByPlan(plan.ID, models.StakingTransactionTypeAutoEndRequest, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NotNil(t, env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeAutoEndRequest))

	require.NoError(t, env.engine.SetAutoRenewal(1, plan.ID, true))
	assert.Nil(t, env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeAutoEndRequest))
	require.NoError(t, env.engine.DisableAutoEnd(1, plan.ID))

	require.NoError(t, env.engine.SetAutoRenewal(1, plan.ID, false))
	assert.NotNil(t, env.activeUserRow(t, 1, plan.ID, models.StakingTransactionTypeAutoEndRequest))

	require.NoError(t, env.engine.EnableAutoEnd(1, fixed.ID))
	assert.Nil(t, env.activeUserRow(t, 1, fixed.ID, models.StakingTransactionTypeAutoEndRequest))

	env.clock.Set(plan.StakingEndsAt())
	require.ErrorIs(t, env.engine.DisableAutoEnd(1, plan.ID), ErrTooLate)
}
