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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/blinklabs-io/stakeplan/database/models"
)

// Candidate query names used in metrics and by the scheduler
const (
	QueryApproveStakeAmount = "approve_stake_amount"
	QueryStake              = "stake"
	QueryAssignStaking      = "assign_staking"
	QueryFetchRewards       = "fetch_rewards"
	QueryAnnounceRewards    = "announce_rewards"
	QueryEndUserStaking     = "end_user_staking"
	QueryCreateExtendOut    = "create_extend_out"
	QueryExtendStaking      = "extend_staking"
	QueryExtendUsers        = "extend_users"
	QueryCreateRelease      = "create_release"
	QueryReleaseUsers       = "release_users"
	QueryPayRewards         = "pay_rewards"
	QueryInstantEnd         = "instant_end"
	QueryWithdrawRewards    = "withdraw_rewards"
)

// fetchInterval is the minimum time between two reward fetches of a plan
const fetchInterval = time.Hour

func (e *Engine) observeQuery(name string, start time.Time) {
	e.metrics.queryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func planIds(plans []models.Plan, keep func(*models.Plan) bool) []uint {
	ret := []uint{}
	for i := range plans {
		if keep(&plans[i]) {
			ret = append(ret, plans[i].ID)
		}
	}
	return ret
}

// plansWithActivePlanRow loads the plans that have an active plan row of tp
func (e *Engine) plansWithActivePlanRow(tp models.PlanTransactionType) ([]models.Plan, error) {
	ids, err := e.db.PlanIdsWithActivePlanTransaction(tp, nil)
	if err != nil {
		return nil, err
	}
	return e.db.GetPlans(ids, nil)
}

func (e *Engine) plansWithActiveUserRow(tp models.StakingTransactionType) ([]models.Plan, error) {
	ids, err := e.db.PlanIdsWithActiveStakingTransaction(tp, nil)
	if err != nil {
		return nil, err
	}
	return e.db.GetPlans(ids, nil)
}

// plansWithPositivePlanRow returns ids of plans having any plan row of tp
// with a positive amount
func (e *Engine) plansWithPositivePlanRow(tp models.PlanTransactionType) ([]uint, error) {
	ids, err := e.db.PlanIdsWithPlanTransaction(tp, nil)
	if err != nil {
		return nil, err
	}
	rows, err := e.db.GetPlanTransactionsByType(tp, ids, nil, nil)
	if err != nil {
		return nil, err
	}
	ret := []uint{}
	for _, row := range rows {
		if row.Amount.IsPositive() && !slices.Contains(ret, row.PlanID) {
			ret = append(ret, row.PlanID)
		}
	}
	slices.Sort(ret)
	return ret, nil
}

// PlanIdsToApproveStakeAmount returns plans whose request window closed
// without a stake amount approval
func (e *Engine) PlanIdsToApproveStakeAmount() ([]uint, error) {
	defer e.observeQuery(QueryApproveStakeAmount, time.Now())
	now := e.now()
	plans, err := e.db.GetPlansOpenedBeforeWithout(
		now,
		models.PlanTransactionTypeSystemStakeAmountApproval,
		nil,
	)
	if err != nil {
		return nil, err
	}
	return planIds(plans, func(p *models.Plan) bool {
		return p.RequestClosesAt().Before(now)
	}), nil
}

// PlanIdsToStake returns plans with an unconsumed approval past staked_at
func (e *Engine) PlanIdsToStake() ([]uint, error) {
	defer e.observeQuery(QueryStake, time.Now())
	now := e.now()
	plans, err := e.plansWithActivePlanRow(models.PlanTransactionTypeSystemStakeAmountApproval)
	if err != nil {
		return nil, err
	}
	return planIds(plans, func(p *models.Plan) bool {
		return p.StakedAt.Before(now)
	}), nil
}

// PlanIdsToAssignStaking returns plans with unassigned stake
func (e *Engine) PlanIdsToAssignStaking() ([]uint, error) {
	defer e.observeQuery(QueryAssignStaking, time.Now())
	return e.plansWithPositivePlanRow(models.PlanTransactionTypeStake)
}

// PlanIdsToFetchRewards returns plans in (or just past) staking that were not
// fetched within the last hour
func (e *Engine) PlanIdsToFetchRewards() ([]uint, error) {
	defer e.observeQuery(QueryFetchRewards, time.Now())
	now := e.now()
	plans, err := e.db.GetPlansStakedBefore(now, nil)
	if err != nil {
		return nil, err
	}
	ids := planIds(plans, func(p *models.Plan) bool {
		return now.Before(p.StakingEndsAt().Add(p.RewardAnnouncementPeriod))
	})
	recentAfter := now.Add(-fetchInterval)
	recent, err := e.db.GetPlanTransactionsByType(
		models.PlanTransactionTypeFetchedReward,
		ids,
		&recentAfter,
		nil,
	)
	if err != nil {
		return nil, err
	}
	for _, row := range recent {
		ids = slices.DeleteFunc(ids, func(id uint) bool { return id == row.PlanID })
	}
	return ids, nil
}

// PlanIdsToAnnounceRewards returns staked plans without an announcement in
// the current period and without the final announcement
func (e *Engine) PlanIdsToAnnounceRewards() ([]uint, error) {
	defer e.observeQuery(QueryAnnounceRewards, time.Now())
	now := e.now()
	plans, err := e.db.GetPlansStakedBefore(now, nil)
	if err != nil {
		return nil, err
	}
	ids := planIds(plans, func(*models.Plan) bool { return true })
	announcements, err := e.db.GetPlanTransactionsByType(
		models.PlanTransactionTypeAnnounceReward,
		ids,
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}
	done := make(map[uint]bool)
	for i := range plans {
		plan := &plans[i]
		for _, row := range announcements {
			if row.PlanID != plan.ID {
				continue
			}
			if row.CreatedAt.After(now.Add(-plan.RewardAnnouncementPeriod)) ||
				row.CreatedAt.Equal(plan.StakingEndsAt()) {
				done[plan.ID] = true
				break
			}
		}
	}
	return planIds(plans, func(p *models.Plan) bool { return !done[p.ID] }), nil
}

// PlanIdsToEndUserStaking returns ended plans that still have users in
// stake state
func (e *Engine) PlanIdsToEndUserStaking() ([]uint, error) {
	defer e.observeQuery(QueryEndUserStaking, time.Now())
	now := e.now()
	plans, err := e.plansWithActiveUserRow(models.StakingTransactionTypeStake)
	if err != nil {
		return nil, err
	}
	return planIds(plans, func(p *models.Plan) bool {
		return p.StakingEndsAt().Before(now)
	}), nil
}

// PlanIdsToCreateExtendOut returns ended plans whose stake row is still
// active
func (e *Engine) PlanIdsToCreateExtendOut() ([]uint, error) {
	defer e.observeQuery(QueryCreateExtendOut, time.Now())
	now := e.now()
	plans, err := e.plansWithActivePlanRow(models.PlanTransactionTypeStake)
	if err != nil {
		return nil, err
	}
	return planIds(plans, func(p *models.Plan) bool {
		return p.StakingEndsAt().Before(now)
	}), nil
}

// PlanIdsToExtendStaking returns extendable plans whose extend out has not
// reached the successor
func (e *Engine) PlanIdsToExtendStaking() ([]uint, error) {
	defer e.observeQuery(QueryExtendStaking, time.Now())
	plans, err := e.plansWithActivePlanRow(models.PlanTransactionTypeExtendOut)
	if err != nil {
		return nil, err
	}
	return planIds(plans, func(p *models.Plan) bool {
		return p.IsExtendable
	}), nil
}

// PlanIdsToExtendUsers returns plans whose users have extend outs to carry
// over and whose plan level extension already happened
func (e *Engine) PlanIdsToExtendUsers() ([]uint, error) {
	defer e.observeQuery(QueryExtendUsers, time.Now())
	userSide, err := e.db.PlanIdsWithActiveStakingTransaction(models.StakingTransactionTypeExtendOut, nil)
	if err != nil {
		return nil, err
	}
	pending, err := e.db.PlanIdsWithActivePlanTransaction(models.PlanTransactionTypeExtendOut, nil)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(userSide, func(id uint) bool {
		return slices.Contains(pending, id)
	}), nil
}

// PlanIdsToCreateRelease returns plans past their unstaking period with an
// unreleased unstake row
func (e *Engine) PlanIdsToCreateRelease() ([]uint, error) {
	defer e.observeQuery(QueryCreateRelease, time.Now())
	now := e.now()
	plans, err := e.plansWithActivePlanRow(models.PlanTransactionTypeUnstake)
	if err != nil {
		return nil, err
	}
	return planIds(plans, func(p *models.Plan) bool {
		return p.UnstakingEndsAt().Before(now)
	}), nil
}

// PlanIdsToReleaseUserAssets returns released plans with unreleased user
// unstakes
func (e *Engine) PlanIdsToReleaseUserAssets() ([]uint, error) {
	defer e.observeQuery(QueryReleaseUsers, time.Now())
	userSide, err := e.db.PlanIdsWithActiveStakingTransaction(models.StakingTransactionTypeUnstake, nil)
	if err != nil {
		return nil, err
	}
	released, err := e.db.PlanIdsWithPlanTransaction(models.PlanTransactionTypeRelease, nil)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(userSide, func(id uint) bool {
		return !slices.Contains(released, id)
	}), nil
}

// PlanIdsToPayRewards returns plans with withdrawn reward left to pay
func (e *Engine) PlanIdsToPayRewards() ([]uint, error) {
	defer e.observeQuery(QueryPayRewards, time.Now())
	return e.plansWithPositivePlanRow(models.PlanTransactionTypeGiveReward)
}

// PlanIdsToWithdrawRewards returns plans whose final reward announcement was
// approved and is still waiting to be withdrawn
func (e *Engine) PlanIdsToWithdrawRewards() ([]uint, error) {
	defer e.observeQuery(QueryWithdrawRewards, time.Now())
	approved, err := e.db.PlanIdsWithPlanTransaction(models.PlanTransactionTypeAdminRewardApproved, nil)
	if err != nil {
		return nil, err
	}
	plans, err := e.plansWithActivePlanRow(models.PlanTransactionTypeAnnounceReward)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return []uint{}, nil
	}
	announcements, err := e.db.GetPlanTransactionsByType(
		models.PlanTransactionTypeAnnounceReward,
		planIds(plans, func(*models.Plan) bool { return true }),
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}
	return planIds(plans, func(p *models.Plan) bool {
		if !slices.Contains(approved, p.ID) {
			return false
		}
		for _, row := range announcements {
			if row.PlanID == p.ID && !row.CreatedAt.Before(p.StakingEndsAt()) {
				return true
			}
		}
		return false
	}), nil
}

// PlanIdsToApplyInstantEndRequests returns plans with open instant end
// requests
func (e *Engine) PlanIdsToApplyInstantEndRequests() ([]uint, error) {
	defer e.observeQuery(QueryInstantEnd, time.Now())
	return e.db.PlanIdsWithActiveStakingTransaction(models.StakingTransactionTypeInstantEndRequest, nil)
}

// UserIdsToAssignStaking returns users of a plan with an open request
func (e *Engine) UserIdsToAssignStaking(planId uint) ([]uint, error) {
	return e.db.UserIdsWithActiveStakingTransaction(planId, models.StakingTransactionTypeCreateRequest, nil)
}

// UserIdsToEndStaking returns users of a plan in stake state
func (e *Engine) UserIdsToEndStaking(planId uint) ([]uint, error) {
	return e.db.UserIdsWithActiveStakingTransaction(planId, models.StakingTransactionTypeStake, nil)
}

// UserIdsToExtend returns users of a plan with an active extend out
func (e *Engine) UserIdsToExtend(planId uint) ([]uint, error) {
	return e.db.UserIdsWithActiveStakingTransaction(planId, models.StakingTransactionTypeExtendOut, nil)
}

// UserIdsToReleaseAssets returns users of a plan with unreleased unstakes
func (e *Engine) UserIdsToReleaseAssets(planId uint) ([]uint, error) {
	return e.db.UserIdsWithActiveStakingTransaction(planId, models.StakingTransactionTypeUnstake, nil)
}

// UserIdsToApplyInstantEndRequests returns users of a plan with an open
// instant end request
func (e *Engine) UserIdsToApplyInstantEndRequests(planId uint) ([]uint, error) {
	return e.db.UserIdsWithActiveStakingTransaction(planId, models.StakingTransactionTypeInstantEndRequest, nil)
}

// UserIdsToPayReward returns users that held stake in a plan and were not
// paid their reward yet
func (e *Engine) UserIdsToPayReward(planId uint) ([]uint, error) {
	stakes, err := e.db.GetStakingTransactionsByPlan(planId, models.StakingTransactionTypeStake, nil)
	if err != nil {
		return nil, err
	}
	paid, err := e.db.GetStakingTransactionsByPlan(planId, models.StakingTransactionTypeGiveReward, nil)
	if err != nil {
		return nil, err
	}
	ret := []uint{}
	for _, stake := range stakes {
		if !stake.Amount.IsPositive() || slices.Contains(ret, stake.UserID) {
			continue
		}
		if slices.ContainsFunc(paid, func(row models.StakingTransaction) bool {
			return row.UserID == stake.UserID
		}) {
			continue
		}
		ret = append(ret, stake.UserID)
	}
	slices.Sort(ret)
	return ret, nil
}

// OpenPlanIds returns plans accepting requests with room for at least one
// more minimum contribution
func (e *Engine) OpenPlanIds() ([]uint, error) {
	now := e.now()
	plans, err := e.db.AllPlans(nil)
	if err != nil {
		return nil, err
	}
	return planIds(plans, func(p *models.Plan) bool {
		return p.IsRequestable(now) &&
			p.TotalCapacity.GreaterThan(p.FilledCapacity.Add(p.MinStakingAmount))
	}), nil
}

// GetPlanToRead returns a plan without locking it
func (e *Engine) GetPlanToRead(planId uint) (*models.Plan, error) {
	plan, err := e.db.GetPlan(planId, nil)
	if err != nil {
		if errors.Is(err, models.ErrPlanNotFound) {
			return nil, fmt.Errorf("plan %d: %w", planId, ErrInvalidPlanId)
		}
		return nil, err
	}
	return plan, nil
}

// CheckExistence fails with ErrInvalidPlanId for unknown plans
func (e *Engine) CheckExistence(planId uint) error {
	exists, err := e.db.PlanExists(planId, nil)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("plan %d: %w", planId, ErrInvalidPlanId)
	}
	return nil
}

// PlanCurrency returns the currency a plan is denominated in
func (e *Engine) PlanCurrency(planId uint) (string, error) {
	plan, err := e.GetPlanToRead(planId)
	if err != nil {
		return "", err
	}
	return plan.Currency(), nil
}

// IsPlanExtendable reports whether a plan rolls over into a successor
func (e *Engine) IsPlanExtendable(planId uint) (bool, error) {
	plan, err := e.GetPlanToRead(planId)
	if err != nil {
		return false, err
	}
	return plan.IsExtendable, nil
}

// AllPlans returns announced plans, requestable ones first, then by latest
// request close time
func (e *Engine) AllPlans() ([]models.Plan, error) {
	now := e.now()
	plans, err := e.db.AllPlans(nil)
	if err != nil {
		return nil, err
	}
	plans = slices.DeleteFunc(plans, func(p models.Plan) bool {
		return p.AnnouncedAt.After(now)
	})
	slices.SortStableFunc(plans, func(a, b models.Plan) int {
		ar, br := a.IsRequestable(now), b.IsRequestable(now)
		if ar != br {
			if ar {
				return -1
			}
			return 1
		}
		return b.RequestClosesAt().Compare(a.RequestClosesAt())
	})
	return plans, nil
}

// AllActivePlans returns the newest announced plan of each (platform,
// staking period) family that is available and not yet extended
func (e *Engine) AllActivePlans() ([]models.Plan, error) {
	plans, err := e.AllPlans()
	if err != nil {
		return nil, err
	}
	every, err := e.db.AllPlans(nil)
	if err != nil {
		return nil, err
	}
	type family struct {
		platformId uint
		period     time.Duration
	}
	latest := make(map[family]uint)
	extended := make(map[uint]bool)
	for _, p := range every {
		key := family{p.ExternalPlatformID, p.StakingPeriod}
		if p.ID > latest[key] {
			latest[key] = p.ID
		}
		if p.ExtendedFromID != nil {
			extended[*p.ExtendedFromID] = true
		}
	}
	return slices.DeleteFunc(plans, func(p models.Plan) bool {
		return !p.ExternalPlatform.IsAvailable ||
			extended[p.ID] ||
			latest[family{p.ExternalPlatformID, p.StakingPeriod}] != p.ID
	}), nil
}

// AncestorPlans returns the plan followed by the plans it extends, newest
// first, within its platform and staking period family
func (e *Engine) AncestorPlans(planId uint) ([]models.Plan, error) {
	plan, err := e.GetPlanToRead(planId)
	if err != nil {
		return nil, err
	}
	plans, err := e.AllPlans()
	if err != nil {
		return nil, err
	}
	similar := make(map[uint]models.Plan)
	for _, p := range plans {
		if p.ExternalPlatformID == plan.ExternalPlatformID && p.StakingPeriod == plan.StakingPeriod {
			similar[p.ID] = p
		}
	}
	ret := []models.Plan{*plan}
	seen := map[uint]bool{plan.ID: true}
	for current := *plan; current.ExtendedFromID != nil; {
		parent, ok := similar[*current.ExtendedFromID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		ret = append(ret, parent)
		current = parent
	}
	return ret, nil
}
