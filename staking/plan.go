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

	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/shopspring/decimal"
)

// SystemApproveStakeAmount collects the sum of all open user requests into
// the asset collector once the request window has closed
func (e *Engine) SystemApproveStakeAmount(planId uint) error {
	return e.withPlanLock("system_approve_stake_amount", planId, func(u *unitOfWork) error {
		if u.now.Before(u.plan.RequestClosesAt()) {
			return fmt.Errorf("plan %d is still in request period: %w", planId, ErrTooSoon)
		}
		approved, err := e.db.PlanTransactionExists(
			planId,
			models.PlanTransactionTypeSystemStakeAmountApproval,
			u.txn,
		)
		if err != nil {
			return err
		}
		if approved {
			return fmt.Errorf("stake amount of plan %d already approved: %w", planId, ErrAlreadyCreated)
		}
		requests, err := e.db.GetActiveStakingTransactionsByPlan(
			planId,
			models.StakingTransactionTypeCreateRequest,
			u.txn,
		)
		if err != nil {
			return err
		}
		row := &models.PlanTransaction{
			PlanID:    planId,
			Tp:        models.PlanTransactionTypeSystemStakeAmountApproval,
			Amount:    sumStakingRows(requests),
			CreatedAt: u.now,
		}
		if err := e.db.CreatePlanTransaction(row, u.txn); err != nil {
			return err
		}
		u.amount = row.Amount
		return e.transferPlanRow(
			u,
			row,
			e.config.Collectors.Asset,
			RefModuleStakingRequest,
			fmt.Sprintf("user collected assets to be staked (plan %d)", planId),
		)
	})
}

// StakeAssets consumes the stake amount approval into the plan stake row
func (e *Engine) StakeAssets(planId uint) error {
	return e.withPlanLock("stake_assets", planId, func(u *unitOfWork) error {
		if u.now.Before(u.plan.StakedAt) {
			return fmt.Errorf("plan %d assets cannot be staked yet: %w", planId, ErrTooSoon)
		}
		approval, err := e.db.GetActivePlanTransaction(
			planId,
			models.PlanTransactionTypeSystemStakeAmountApproval,
			u.txn,
		)
		if err != nil {
			return err
		}
		if approval == nil {
			return e.missingPlanRow(
				u,
				models.PlanTransactionTypeSystemStakeAmountApproval,
				"stake amount approval",
			)
		}
		if err := e.db.DeactivatePlanTransaction(approval, u.now, u.txn); err != nil {
			return err
		}
		u.amount = approval.Amount
		_, err = e.addToPlanStake(u, planId, approval.Amount)
		return err
	})
}

// missingPlanRow decides from history whether a transition whose active
// predecessor of type tp is gone already ran
func (e *Engine) missingPlanRow(
	u *unitOfWork,
	tp models.PlanTransactionType,
	what string,
) error {
	exists, err := e.db.PlanTransactionExists(u.plan.ID, tp, u.txn)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s of plan %d already consumed: %w", what, u.plan.ID, ErrAlreadyCreated)
	}
	return fmt.Errorf("plan %d has no %s: %w", u.plan.ID, what, ErrParentIsNotCreated)
}

// addToPlanStake adds amount to the active plan stake row, creating it when
// there is none
func (e *Engine) addToPlanStake(
	u *unitOfWork,
	planId uint,
	amount decimal.Decimal,
) (*models.PlanTransaction, error) {
	stake, err := e.db.GetActivePlanTransaction(planId, models.PlanTransactionTypeStake, u.txn)
	if err != nil {
		return nil, err
	}
	if stake == nil {
		stake = &models.PlanTransaction{
			PlanID:    planId,
			Tp:        models.PlanTransactionTypeStake,
			Amount:    amount,
			CreatedAt: u.now,
		}
		return stake, e.db.CreatePlanTransaction(stake, u.txn)
	}
	stake.Amount = stake.Amount.Add(amount)
	return stake, e.db.SetPlanTransactionAmount(stake.ID, stake.Amount, u.txn)
}

// CreateExtendOut splits the ended plan's stake into what leaves through
// release and what rolls over into the successor
func (e *Engine) CreateExtendOut(planId uint) error {
	return e.withPlanLock("create_extend_out", planId, func(u *unitOfWork) error {
		if u.now.Before(u.plan.StakingEndsAt()) {
			return fmt.Errorf("plan %d has not ended yet: %w", planId, ErrTooSoon)
		}
		staked, err := e.db.UserIdsWithActiveStakingTransaction(
			planId,
			models.StakingTransactionTypeStake,
			u.txn,
		)
		if err != nil {
			return err
		}
		if len(staked) > 0 {
			return fmt.Errorf(
				"plan %d still has %d users in stake state: %w",
				planId,
				len(staked),
				ErrTooSoon,
			)
		}
		extended, err := e.db.PlanTransactionExists(planId, models.PlanTransactionTypeUnstake, u.txn)
		if err != nil {
			return err
		}
		if extended {
			return fmt.Errorf("plan %d already extended out: %w", planId, ErrAlreadyCreated)
		}
		unstakes, err := e.db.GetActiveStakingTransactionsByPlan(
			planId,
			models.StakingTransactionTypeUnstake,
			u.txn,
		)
		if err != nil {
			return err
		}
		extendOuts, err := e.db.GetActiveStakingTransactionsByPlan(
			planId,
			models.StakingTransactionTypeExtendOut,
			u.txn,
		)
		if err != nil {
			return err
		}
		unstaked := sumStakingRows(unstakes)
		extendedAmount := sumStakingRows(extendOuts)
		stake, err := e.db.GetActivePlanTransaction(planId, models.PlanTransactionTypeStake, u.txn)
		if err != nil {
			return err
		}
		if stake == nil {
			return fmt.Errorf("plan %d has no active stake: %w", planId, ErrParentIsNotCreated)
		}
		err = e.db.UpdatePlanColumns(
			planId,
			map[string]any{"extended_capacity": extendedAmount},
			u.txn,
		)
		if err != nil {
			return err
		}
		for _, row := range []*models.PlanTransaction{
			{Tp: models.PlanTransactionTypeExtendOut, Amount: extendedAmount},
			{Tp: models.PlanTransactionTypeUnstake, Amount: unstaked},
		} {
			row.PlanID = planId
			row.ParentID = parentOf(stake.ID)
			row.CreatedAt = u.now
			if err := e.db.CreatePlanTransaction(row, u.txn); err != nil {
				return err
			}
		}
		u.amount = extendedAmount
		return nil
	})
}

// CreateExtendIn moves the extended stake of a plan into its successor
func (e *Engine) CreateExtendIn(planId uint) error {
	return e.withPlanLock("create_extend_in", planId, func(u *unitOfWork) error {
		if !u.plan.IsExtendable {
			return fmt.Errorf("plan %d: %w", planId, ErrNonExtendablePlan)
		}
		extendOut, err := e.db.GetActivePlanTransaction(
			planId,
			models.PlanTransactionTypeExtendOut,
			u.txn,
		)
		if err != nil {
			return err
		}
		if extendOut == nil {
			successors, err := e.db.GetPlanExtensions(planId, false, u.txn)
			if err != nil {
				return err
			}
			for _, successor := range successors {
				exists, err := e.db.PlanTransactionExists(
					successor.ID,
					models.PlanTransactionTypeExtendIn,
					u.txn,
				)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("plan %d already extended: %w", planId, ErrAlreadyCreated)
				}
			}
			return fmt.Errorf("plan %d has no extend out: %w", planId, ErrParentIsNotCreated)
		}
		successor, err := e.successor(u, true)
		if err != nil {
			return err
		}
		extendIn := &models.PlanTransaction{
			PlanID:    successor.ID,
			Tp:        models.PlanTransactionTypeExtendIn,
			Amount:    extendOut.Amount,
			ParentID:  parentOf(extendOut.ID),
			CreatedAt: u.now,
		}
		if err := e.db.CreatePlanTransaction(extendIn, u.txn); err != nil {
			return err
		}
		if _, err := e.addToPlanStake(u, successor.ID, extendOut.Amount); err != nil {
			return err
		}
		u.amount = extendOut.Amount
		return e.db.UpdatePlanColumns(
			successor.ID,
			map[string]any{
				"total_capacity":      successor.TotalCapacity.Add(extendOut.Amount),
				"filled_by_extension": successor.FilledByExtension.Add(extendOut.Amount),
				"filled_capacity":     successor.FilledCapacity.Add(extendOut.Amount),
			},
			u.txn,
		)
	})
}

// successor returns the single plan extending the locked plan
func (e *Engine) successor(u *unitOfWork, forUpdate bool) (*models.Plan, error) {
	successors, err := e.db.GetPlanExtensions(u.plan.ID, forUpdate, u.txn)
	if err != nil {
		return nil, err
	}
	if len(successors) != 1 {
		return nil, fmt.Errorf(
			"plan %d has %d extensions: %w",
			u.plan.ID,
			len(successors),
			ErrAdminMistake,
		)
	}
	return &successors[0], nil
}

// CreateRelease withdraws the unstaked total of an ended plan from the asset
// collector once the unstaking period is over
func (e *Engine) CreateRelease(planId uint) error {
	return e.withPlanLock("create_release", planId, func(u *unitOfWork) error {
		if u.now.Before(u.plan.UnstakingEndsAt()) {
			return fmt.Errorf("plan %d assets cannot be released yet: %w", planId, ErrTooSoon)
		}
		unstake, err := e.db.GetActivePlanTransaction(planId, models.PlanTransactionTypeUnstake, u.txn)
		if err != nil {
			return err
		}
		if unstake == nil {
			exists, err := e.db.PlanTransactionExists(planId, models.PlanTransactionTypeRelease, u.txn)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("plan %d already released: %w", planId, ErrAlreadyCreated)
			}
			return fmt.Errorf("plan %d has no unstake: %w", planId, ErrParentIsNotCreated)
		}
		release := &models.PlanTransaction{
			PlanID:    planId,
			Tp:        models.PlanTransactionTypeRelease,
			Amount:    unstake.Amount,
			ParentID:  parentOf(unstake.ID),
			CreatedAt: u.now,
		}
		if err := e.db.CreatePlanTransaction(release, u.txn); err != nil {
			return err
		}
		err = e.db.UpdatePlanColumns(
			planId,
			map[string]any{"released_capacity": unstake.Amount},
			u.txn,
		)
		if err != nil {
			return err
		}
		u.amount = unstake.Amount
		if unstake.Amount.IsZero() {
			return nil
		}
		walletTxId, err := e.transfer(
			u,
			e.config.Collectors.Asset,
			unstake.Amount.Neg(),
			RefModuleStakingRelease,
			release.ID,
			fmt.Sprintf("release user assets (plan %d)", planId),
		)
		if err != nil {
			return err
		}
		return e.db.SetPlanTransactionWalletTx(release.ID, walletTxId, u.txn)
	})
}
