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
	"fmt"
	"time"

	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/event"
	"github.com/shopspring/decimal"
)

// defaultStakingPrecision is used for plans that were stored without a step
var defaultStakingPrecision = decimal.New(1, -amountPlaces)

func stakingStep(plan *models.Plan) decimal.Decimal {
	if !plan.StakingPrecision.IsPositive() {
		return defaultStakingPrecision
	}
	return plan.StakingPrecision
}

// truncateToStep rounds amount toward zero to a multiple of the plan's
// staking precision
func truncateToStep(plan *models.Plan, amount decimal.Decimal) decimal.Decimal {
	step := stakingStep(plan)
	q, _ := amount.QuoRem(step, 0)
	return q.Mul(step)
}

// QuantizeAmount converts a user contribution to an amount the plan accepts.
// Zero is allowed; anything else must reach the plan minimum.
func QuantizeAmount(plan *models.Plan, amount decimal.Decimal) (decimal.Decimal, error) {
	ret := truncateToStep(plan, amount)
	if ret.IsNegative() {
		return decimal.Zero, fmt.Errorf(
			"amount %s for plan %d: %w",
			amount.String(),
			plan.ID,
			ErrInvalidAmount,
		)
	}
	if !ret.IsZero() && ret.LessThan(plan.MinStakingAmount) {
		return decimal.Zero, fmt.Errorf(
			"amount %s is below plan %d minimum %s: %w",
			amount.String(),
			plan.ID,
			plan.MinStakingAmount.String(),
			ErrInvalidAmount,
		)
	}
	return ret, nil
}

// CheckOpenForRequests fails unless now is inside the request window
func CheckOpenForRequests(plan *models.Plan, now time.Time) error {
	if now.Before(plan.OpenedAt) {
		return fmt.Errorf("plan %d is not open to requests: %w", plan.ID, ErrTooSoon)
	}
	if !now.Before(plan.RequestClosesAt()) {
		return fmt.Errorf("request period of plan %d is over: %w", plan.ID, ErrTooLate)
	}
	return nil
}

// FreeCapacity is what is left of a plan's total capacity
func FreeCapacity(plan *models.Plan) decimal.Decimal {
	return plan.TotalCapacity.Sub(plan.FilledCapacity)
}

func (e *Engine) blockCapacity(u *unitOfWork, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("block %s of capacity: %w", amount.String(), ErrInvalidAmount)
	}
	return e.adjustCapacity(u, amount)
}

func (e *Engine) unblockCapacity(u *unitOfWork, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("unblock %s of capacity: %w", amount.String(), ErrInvalidAmount)
	}
	if err := e.adjustCapacity(u, amount.Neg()); err != nil {
		return err
	}
	if !amount.IsZero() && u.plan.IsRequestable(u.now) {
		u.emit(
			event.CapacityIncreasedEventType,
			event.CapacityIncreasedEvent{
				FreeCapacity: FreeCapacity(u.plan),
				PlanID:       u.plan.ID,
			},
		)
	}
	return nil
}

// adjustCapacity is the only writer of filled_capacity for user requests.
// The result must stay inside [0, total_capacity].
func (e *Engine) adjustCapacity(u *unitOfWork, delta decimal.Decimal) error {
	filled := u.plan.FilledCapacity.Add(delta)
	if filled.IsNegative() || filled.GreaterThan(u.plan.TotalCapacity) {
		return fmt.Errorf(
			"plan %d has %s of %s filled, cannot apply %s: %w",
			u.plan.ID,
			u.plan.FilledCapacity.String(),
			u.plan.TotalCapacity.String(),
			delta.String(),
			ErrLowPlanCapacity,
		)
	}
	err := e.db.UpdatePlanColumns(
		u.plan.ID,
		map[string]any{"filled_capacity": filled},
		u.txn,
	)
	if err != nil {
		return err
	}
	u.plan.FilledCapacity = filled
	return nil
}
