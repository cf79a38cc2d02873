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

func planIdsOf(plans []models.Plan) []uint {
	ret := make([]uint, 0, len(plans))
	for _, p := range plans {
		ret = append(ret, p.ID)
	}
	return ret
}

func TestPlanReaders(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine
	planA := env.createPlan(t)
	planB := env.createPlan(t, func(p *models.Plan) {
		p.ExtendedFromID = &planA.ID
		p.AnnouncedAt = testStart.Add(10 * 24 * time.Hour)
		p.OpenedAt = testStart.Add(20 * 24 * time.Hour)
		p.StakedAt = planA.StakingEndsAt()
	})
	planC := env.createPlan(t, func(p *models.Plan) {
		p.AnnouncedAt = testStart.Add(-20 * 24 * time.Hour)
		p.OpenedAt = testStart.Add(-10 * 24 * time.Hour)
		p.StakedAt = testStart.Add(-7 * 24 * time.Hour)
		p.StakingPeriod = 10 * 24 * time.Hour
		p.IsExtendable = false
	})
	env.clock.Advance(time.Hour)

	requireCandidates(t, []uint{planA.ID}, engine.OpenPlanIds)

	all, err := engine.AllPlans()
	require.NoError(t, err)
	assert.Equal(t, []uint{planA.ID, planC.ID}, planIdsOf(all))

	active, err := engine.AllActivePlans()
	require.NoError(t, err)
	assert.Equal(t, []uint{planC.ID}, planIdsOf(active))

	ancestors, err := engine.AncestorPlans(planB.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{planB.ID, planA.ID}, planIdsOf(ancestors))
	ancestors, err = engine.AncestorPlans(planC.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{planC.ID}, planIdsOf(ancestors))

	require.NoError(t, engine.CheckExistence(planA.ID))
	require.ErrorIs(t, engine.CheckExistence(999), ErrInvalidPlanId)
	_, err = engine.GetPlanToRead(999)
	require.ErrorIs(t, err, ErrInvalidPlanId)

	currency, err := engine.PlanCurrency(planA.ID)
	require.NoError(t, err)
	assert.Equal(t, testCurrency, currency)

	extendable, err := engine.IsPlanExtendable(planC.ID)
	require.NoError(t, err)
	assert.False(t, extendable)
	extendable, err = engine.IsPlanExtendable(planA.ID)
	require.NoError(t, err)
	assert.True(t, extendable)
}

func TestOpenPlanIdsNeedsRoomForMinimum(t *testing.T) {
	env := newTestEnv(t)
	env.createPlan(t, func(p *models.Plan) {
		p.FilledCapacity = dec("995")
	})
	roomy := env.createPlan(t, func(p *models.Plan) {
		p.FilledCapacity = dec("989")
	})
	env.clock.Advance(time.Hour)
	requireCandidates(t, []uint{roomy.ID}, env.engine.OpenPlanIds)
}
