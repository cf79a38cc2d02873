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

	"github.com/blinklabs-io/stakeplan/database"
	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/shopspring/decimal"
)

func (e *Engine) activeUserRow(
	u *unitOfWork,
	userId uint,
	planId uint,
	tp models.StakingTransactionType,
) (*models.StakingTransaction, error) {
	return e.db.GetActiveStakingTransaction(userId, planId, tp, u.txn)
}

func (e *Engine) createUserRow(
	u *unitOfWork,
	userId uint,
	tp models.StakingTransactionType,
	amount decimal.Decimal,
	parentId *uint,
) (*models.StakingTransaction, error) {
	row := &models.StakingTransaction{
		UserID:    userId,
		PlanID:    u.plan.ID,
		Tp:        tp,
		Amount:    amount,
		ParentID:  parentId,
		CreatedAt: u.now,
	}
	return row, e.db.CreateStakingTransaction(row, u.txn)
}

// addToUserStake adds amount to the user's active stake row in planId,
// creating it when there is none
func (e *Engine) addToUserStake(
	u *unitOfWork,
	userId uint,
	planId uint,
	amount decimal.Decimal,
	planTxId uint,
) error {
	stake, err := e.db.GetActiveStakingTransaction(userId, planId, models.StakingTransactionTypeStake, u.txn)
	if err != nil {
		return err
	}
	if stake == nil {
		return e.db.CreateStakingTransaction(
			&models.StakingTransaction{
				UserID:            userId,
				PlanID:            planId,
				Tp:                models.StakingTransactionTypeStake,
				Amount:            amount,
				PlanTransactionID: parentOf(planTxId),
				CreatedAt:         u.now,
			},
			u.txn,
		)
	}
	return e.db.SetStakingTransactionAmount(stake.ID, stake.Amount.Add(amount), u.txn)
}

// CreateRequest blocks capacity for a user contribution and debits the
// user. Repeated requests accumulate in one chained request row.
func (e *Engine) CreateRequest(userId, planId uint, amount decimal.Decimal) error {
	return e.withUserLock("create_request", userId, planId, func(u *unitOfWork) error {
		if err := CheckOpenForRequests(u.plan, u.now); err != nil {
			return err
		}
		amount, err := QuantizeAmount(u.plan, amount)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			return fmt.Errorf("empty request for plan %d: %w", planId, ErrInvalidAmount)
		}
		if err := e.blockCapacity(u, amount); err != nil {
			return err
		}
		prev, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeCreateRequest)
		if err != nil {
			return err
		}
		total := amount
		var parentId *uint
		if prev != nil {
			total = total.Add(prev.Amount)
			parentId = parentOf(prev.ID)
		}
		row, err := e.createUserRow(u, userId, models.StakingTransactionTypeCreateRequest, total, parentId)
		if err != nil {
			return err
		}
		u.amount = amount
		return e.transferStakingRow(
			u,
			row,
			amount.Neg(),
			RefModuleStakingRequest,
			fmt.Sprintf("staking request (plan %d)", planId),
		)
	})
}

// CancelCreateRequest gives back part or all of a user's open request while
// the plan still accepts requests
func (e *Engine) CancelCreateRequest(userId, planId uint, amount decimal.Decimal) error {
	return e.withUserLock("cancel_create_request", userId, planId, func(u *unitOfWork) error {
		if err := CheckOpenForRequests(u.plan, u.now); err != nil {
			return err
		}
		return e.revokeCreateRequest(u, userId, amount, models.StakingTransactionTypeCancelCreateRequest)
	})
}

// RejectCreateRequest is the admin counterpart of CancelCreateRequest
func (e *Engine) RejectCreateRequest(userId, planId uint, amount decimal.Decimal) error {
	return e.withUserLock("reject_create_request", userId, planId, func(u *unitOfWork) error {
		return e.revokeCreateRequest(u, userId, amount, models.StakingTransactionTypeAdminRejectedCreate)
	})
}

func (e *Engine) revokeCreateRequest(
	u *unitOfWork,
	userId uint,
	amount decimal.Decimal,
	tp models.StakingTransactionType,
) error {
	planId := u.plan.ID
	amount, err := QuantizeAmount(u.plan, amount)
	if err != nil {
		return err
	}
	request, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeCreateRequest)
	if err != nil {
		return err
	}
	if request == nil || amount.IsZero() || amount.GreaterThan(request.Amount) {
		return fmt.Errorf(
			"cannot revoke %s of user %d request in plan %d: %w",
			amount.String(),
			userId,
			planId,
			ErrInvalidAmount,
		)
	}
	remainder := request.Amount.Sub(amount)
	if !remainder.IsZero() && remainder.LessThan(u.plan.MinStakingAmount) {
		return fmt.Errorf(
			"remaining request %s is below plan %d minimum: %w",
			remainder.String(),
			planId,
			ErrInvalidAmount,
		)
	}
	row, err := e.createUserRow(u, userId, tp, amount, parentOf(request.ID))
	if err != nil {
		return err
	}
	if err := e.refundRequest(u, row, amount); err != nil {
		return err
	}
	if remainder.IsPositive() {
		_, err := e.createUserRow(
			u,
			userId,
			models.StakingTransactionTypeCreateRequest,
			remainder,
			parentOf(row.ID),
		)
		if err != nil {
			return err
		}
	}
	u.amount = amount
	return e.unblockCapacity(u, amount)
}

// refundRequest credits a user for a request that did not turn into stake.
// Once the plan's requests were collected the refund comes out of the asset
// collector.
func (e *Engine) refundRequest(
	u *unitOfWork,
	row *models.StakingTransaction,
	amount decimal.Decimal,
) error {
	desc := fmt.Sprintf("staking request refund (plan %d)", u.plan.ID)
	if err := e.transferStakingRow(u, row, amount, RefModuleStakingRequest, desc); err != nil {
		return err
	}
	collected, err := e.db.PlanTransactionExists(
		u.plan.ID,
		models.PlanTransactionTypeSystemStakeAmountApproval,
		u.txn,
	)
	if err != nil || !collected {
		return err
	}
	_, err = e.transfer(
		u,
		e.config.Collectors.Asset,
		amount.Neg(),
		RefModuleStakingRequest,
		row.ID,
		desc,
	)
	return err
}

// StakeUserAssets turns a user's open request into stake taken from the
// plan's unassigned stake. A request the pool cannot cover is rejected and
// refunded.
func (e *Engine) StakeUserAssets(userId, planId uint) error {
	return e.withUserLock("stake_user_assets", userId, planId, func(u *unitOfWork) error {
		request, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeCreateRequest)
		if err != nil {
			return err
		}
		if request == nil {
			for _, tp := range []models.StakingTransactionType{
				models.StakingTransactionTypeSystemAcceptedCreate,
				models.StakingTransactionTypeSystemRejectedCreate,
			} {
				exists, err := e.db.StakingTransactionExists(userId, planId, tp, u.txn)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("user %d request in plan %d already handled: %w", userId, planId, ErrAlreadyCreated)
				}
			}
			return fmt.Errorf("user %d has no request in plan %d: %w", userId, planId, ErrParentIsNotCreated)
		}
		pool, err := e.db.GetActivePlanTransaction(planId, models.PlanTransactionTypeStake, u.txn)
		if err != nil {
			return err
		}
		if pool == nil {
			return fmt.Errorf("plan %d is not staked: %w", planId, ErrParentIsNotCreated)
		}
		if pool.Amount.LessThan(request.Amount) {
			e.logger.Warn(
				"rejecting request not covered by plan stake",
				"component", "staking",
				"plan_id", planId,
				"user_id", userId,
				"amount", request.Amount.String(),
				"stake", pool.Amount.String(),
			)
			row, err := e.createUserRow(
				u,
				userId,
				models.StakingTransactionTypeSystemRejectedCreate,
				request.Amount,
				parentOf(request.ID),
			)
			if err != nil {
				return err
			}
			if err := e.refundRequest(u, row, request.Amount); err != nil {
				return err
			}
			return e.unblockCapacity(u, request.Amount)
		}
		accepted := &models.StakingTransaction{
			UserID:            userId,
			PlanID:            planId,
			Tp:                models.StakingTransactionTypeSystemAcceptedCreate,
			Amount:            request.Amount,
			ParentID:          parentOf(request.ID),
			PlanTransactionID: parentOf(pool.ID),
			CreatedAt:         pool.CreatedAt,
		}
		if err := e.db.CreateStakingTransaction(accepted, u.txn); err != nil {
			return err
		}
		if err := e.addToUserStake(u, userId, planId, request.Amount, pool.ID); err != nil {
			return err
		}
		u.amount = request.Amount
		return e.db.SetPlanTransactionAmount(pool.ID, pool.Amount.Sub(request.Amount), u.txn)
	})
}

// CreateEndRequest records how much of a user's stake should leave the plan
// instead of rolling over when staking ends
func (e *Engine) CreateEndRequest(userId, planId uint, amount decimal.Decimal) error {
	return e.withUserLock("create_end_request", userId, planId, func(u *unitOfWork) error {
		if !u.plan.IsExtendable {
			return fmt.Errorf("plan %d: %w", planId, ErrNonExtendablePlan)
		}
		if !u.now.Before(u.plan.StakingEndsAt()) {
			return fmt.Errorf("staking of plan %d has ended: %w", planId, ErrTooLate)
		}
		stake, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeStake)
		if err != nil {
			return err
		}
		if stake == nil {
			return fmt.Errorf("user %d has no stake in plan %d: %w", userId, planId, ErrParentIsNotCreated)
		}
		amount = truncateToStep(u.plan, amount)
		if !amount.IsPositive() {
			return fmt.Errorf("end request of %s: %w", amount.String(), ErrInvalidAmount)
		}
		row := &models.StakingTransaction{
			UserID:    userId,
			PlanID:    planId,
			Tp:        models.StakingTransactionTypeEndRequest,
			Amount:    amount,
			UniqueKey: models.StakingTransactionUniqueKey(models.StakingTransactionTypeEndRequest, userId, planId),
			CreatedAt: u.now,
		}
		if err := e.db.CreateStakingTransaction(row, u.txn); err != nil {
			if errors.Is(err, database.ErrDuplicateLedgerRow) {
				return fmt.Errorf("user %d end request in plan %d: %w", userId, planId, ErrAlreadyCreated)
			}
			return err
		}
		u.amount = amount
		return nil
	})
}

// CancelEndRequest moves an unreleased unstake of exactly amount back into
// the user's stake
func (e *Engine) CancelEndRequest(userId, planId uint, amount decimal.Decimal) error {
	return e.withUserLock("cancel_end_request", userId, planId, func(u *unitOfWork) error {
		return e.revokeEndRequest(u, userId, amount, models.StakingTransactionTypeCancelEndRequest)
	})
}

// RejectEndRequest is the admin counterpart of CancelEndRequest
func (e *Engine) RejectEndRequest(userId, planId uint, amount decimal.Decimal) error {
	return e.withUserLock("reject_end_request", userId, planId, func(u *unitOfWork) error {
		return e.revokeEndRequest(u, userId, amount, models.StakingTransactionTypeAdminRejectedEnd)
	})
}

func (e *Engine) revokeEndRequest(
	u *unitOfWork,
	userId uint,
	amount decimal.Decimal,
	tp models.StakingTransactionType,
) error {
	planId := u.plan.ID
	if !amount.IsPositive() {
		return fmt.Errorf("end request reversal of %s: %w", amount.String(), ErrInvalidAmount)
	}
	unstakes, err := e.db.GetActiveStakingTransactions(userId, planId, models.StakingTransactionTypeUnstake, u.txn)
	if err != nil {
		return err
	}
	var unstake *models.StakingTransaction
	for i := range unstakes {
		if unstakes[i].Amount.Equal(amount) {
			unstake = &unstakes[i]
			break
		}
	}
	if unstake == nil {
		return fmt.Errorf(
			"user %d has no unstake of %s in plan %d: %w",
			userId,
			amount.String(),
			planId,
			ErrParentIsNotCreated,
		)
	}
	stake, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeStake)
	if err != nil {
		return err
	}
	if stake == nil {
		return fmt.Errorf("user %d has no stake in plan %d: %w", userId, planId, ErrParentIsNotCreated)
	}
	if err := e.blockCapacity(u, amount); err != nil {
		return err
	}
	if err := e.db.SetStakingTransactionAmount(unstake.ID, unstake.Amount.Sub(amount), u.txn); err != nil {
		return err
	}
	if err := e.db.SetStakingTransactionAmount(stake.ID, stake.Amount.Add(amount), u.txn); err != nil {
		return err
	}
	u.amount = amount
	_, err = e.createUserRow(u, userId, tp, amount, parentOf(unstake.ID))
	return err
}

// CreateInstantEndRequest asks for part of a user's stake to leave the plan
// before staking ends. Requests accumulate until applied.
func (e *Engine) CreateInstantEndRequest(userId, planId uint, amount decimal.Decimal) error {
	return e.withUserLock("create_instant_end_request", userId, planId, func(u *unitOfWork) error {
		if !u.plan.IsInstantlyUnstakable {
			return fmt.Errorf("plan %d: %w", planId, ErrNotInstantlyUnstakable)
		}
		amount = truncateToStep(u.plan, amount)
		if !amount.IsPositive() {
			return fmt.Errorf("instant end request of %s: %w", amount.String(), ErrInvalidAmount)
		}
		if !u.now.Before(u.plan.StakingEndsAt()) {
			return fmt.Errorf("staking of plan %d has ended: %w", planId, ErrTooLate)
		}
		stake, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeStake)
		if err != nil {
			return err
		}
		if stake == nil {
			return fmt.Errorf("user %d has no stake in plan %d: %w", userId, planId, ErrParentIsNotCreated)
		}
		prev, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeInstantEndRequest)
		if err != nil {
			return err
		}
		total := amount
		var parentId *uint
		if prev != nil {
			total = total.Add(prev.Amount)
			parentId = parentOf(prev.ID)
		}
		remaining := stake.Amount.Sub(total)
		if remaining.IsNegative() ||
			(!remaining.IsZero() && remaining.LessThan(u.plan.MinStakingAmount)) {
			return fmt.Errorf(
				"remaining stake %s of user %d in plan %d: %w",
				remaining.String(),
				userId,
				planId,
				ErrInvalidAmount,
			)
		}
		u.amount = amount
		_, err = e.createUserRow(u, userId, models.StakingTransactionTypeInstantEndRequest, total, parentId)
		return err
	})
}

// ApplyInstantEndRequest unstakes the user's open instant end request and
// scales the user's running reward announcement to the remaining stake
func (e *Engine) ApplyInstantEndRequest(userId, planId uint) error {
	return e.withUserLock("apply_instant_end_request", userId, planId, func(u *unitOfWork) error {
		request, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeInstantEndRequest)
		if err != nil {
			return err
		}
		if request == nil {
			return fmt.Errorf("user %d has no instant end request in plan %d: %w", userId, planId, ErrParentIsNotCreated)
		}
		stake, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeStake)
		if err != nil {
			return err
		}
		if stake == nil || request.Amount.GreaterThan(stake.Amount) {
			_, err := e.createUserRow(
				u,
				userId,
				models.StakingTransactionTypeSystemRejectedEnd,
				request.Amount,
				parentOf(request.ID),
			)
			return err
		}
		_, err = e.createUserRow(
			u,
			userId,
			models.StakingTransactionTypeUnstake,
			request.Amount,
			parentOf(request.ID),
		)
		if err != nil {
			return err
		}
		newStake := stake.Amount.Sub(request.Amount)
		if err := e.db.SetStakingTransactionAmount(stake.ID, newStake, u.txn); err != nil {
			return err
		}
		if err := e.unblockCapacity(u, request.Amount); err != nil {
			return err
		}
		announcement, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeAnnounceReward)
		if err != nil {
			return err
		}
		if announcement != nil && stake.Amount.IsPositive() {
			scaled := share(announcement.Amount, newStake, stake.Amount)
			if err := e.db.SetStakingTransactionAmount(announcement.ID, scaled, u.txn); err != nil {
				return err
			}
		}
		u.amount = request.Amount
		return nil
	})
}

// EndUserStaking splits a user's stake at the end of staking into the part
// that is unstaked and the part that extends into the successor plan
func (e *Engine) EndUserStaking(userId, planId uint) error {
	return e.withUserLock("end_user_staking", userId, planId, func(u *unitOfWork) error {
		if u.now.Before(u.plan.StakingEndsAt()) {
			return fmt.Errorf("plan %d has not ended yet: %w", planId, ErrTooSoon)
		}
		ended, err := e.db.StakingTransactionExists(userId, planId, models.StakingTransactionTypeExtendOut, u.txn)
		if err != nil {
			return err
		}
		if ended {
			return fmt.Errorf("user %d staking in plan %d already ended: %w", userId, planId, ErrAlreadyCreated)
		}
		stake, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeStake)
		if err != nil {
			return err
		}
		if stake == nil {
			return fmt.Errorf("user %d has no stake in plan %d: %w", userId, planId, ErrParentIsNotCreated)
		}
		request, unstakeAmount, err := e.endRequestOf(u, userId, stake)
		if err != nil {
			return err
		}
		_, err = e.createUserRow(
			u,
			userId,
			models.StakingTransactionTypeExtendOut,
			stake.Amount.Sub(unstakeAmount),
			parentOf(stake.ID),
		)
		if err != nil {
			return err
		}
		var requestId *uint
		if request != nil {
			requestId = parentOf(request.ID)
		}
		if unstakeAmount.IsPositive() {
			_, err := e.createUserRow(u, userId, models.StakingTransactionTypeUnstake, unstakeAmount, requestId)
			if err != nil {
				return err
			}
		}
		u.amount = unstakeAmount
		if request == nil {
			return nil
		}
		_, err = e.createUserRow(u, userId, models.StakingTransactionTypeSystemAcceptedEnd, unstakeAmount, requestId)
		return err
	})
}

// endRequestOf picks the request that decides how much of stake leaves the
// plan. An active auto end request wins and takes everything.
func (e *Engine) endRequestOf(
	u *unitOfWork,
	userId uint,
	stake *models.StakingTransaction,
) (*models.StakingTransaction, decimal.Decimal, error) {
	if !u.plan.IsExtendable {
		return nil, stake.Amount, nil
	}
	autoEnd, err := e.activeUserRow(u, userId, u.plan.ID, models.StakingTransactionTypeAutoEndRequest)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if autoEnd != nil {
		return autoEnd, stake.Amount, nil
	}
	for _, tp := range []models.StakingTransactionType{
		models.StakingTransactionTypeEndRequest,
		models.StakingTransactionTypeInstantEndRequest,
	} {
		request, err := e.activeUserRow(u, userId, u.plan.ID, tp)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if request == nil {
			continue
		}
		amount := decimal.Max(decimal.Zero, decimal.Min(request.Amount, stake.Amount))
		return request, amount, nil
	}
	return nil, decimal.Zero, nil
}

// ExtendUserStaking carries a user's extended stake into the successor plan
func (e *Engine) ExtendUserStaking(userId, planId uint) error {
	return e.withUserLock("extend_user_staking", userId, planId, func(u *unitOfWork) error {
		extendOut, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeExtendOut)
		if err != nil {
			return err
		}
		if extendOut == nil {
			successors, err := e.db.GetPlanExtensions(planId, false, u.txn)
			if err != nil {
				return err
			}
			if len(successors) == 1 {
				exists, err := e.db.StakingTransactionExists(
					userId,
					successors[0].ID,
					models.StakingTransactionTypeExtendIn,
					u.txn,
				)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("user %d stake in plan %d already extended: %w", userId, planId, ErrAlreadyCreated)
				}
			}
			return fmt.Errorf("user %d has no extend out in plan %d: %w", userId, planId, ErrParentIsNotCreated)
		}
		if extendOut.Amount.IsZero() {
			return e.db.DeactivateStakingTransaction(extendOut, u.now, u.txn)
		}
		successor, err := e.successor(u, true)
		if err != nil {
			return err
		}
		planExtendIn, err := e.db.GetActivePlanTransaction(successor.ID, models.PlanTransactionTypeExtendIn, u.txn)
		if err != nil {
			return err
		}
		if planExtendIn == nil {
			return fmt.Errorf("plan %d has no extend in: %w", successor.ID, ErrParentIsNotCreated)
		}
		pool, err := e.db.GetActivePlanTransaction(successor.ID, models.PlanTransactionTypeStake, u.txn)
		if err != nil {
			return err
		}
		if pool == nil || pool.Amount.LessThan(extendOut.Amount) {
			return fmt.Errorf(
				"plan %d stake cannot cover extension of user %d: %w",
				successor.ID,
				userId,
				ErrAdminMistake,
			)
		}
		extendIn := &models.StakingTransaction{
			UserID:            userId,
			PlanID:            successor.ID,
			Tp:                models.StakingTransactionTypeExtendIn,
			Amount:            extendOut.Amount,
			ParentID:          parentOf(extendOut.ID),
			PlanTransactionID: parentOf(planExtendIn.ID),
			CreatedAt:         u.now,
		}
		if err := e.db.CreateStakingTransaction(extendIn, u.txn); err != nil {
			return err
		}
		if err := e.addToUserStake(u, userId, successor.ID, extendOut.Amount, pool.ID); err != nil {
			return err
		}
		u.amount = extendOut.Amount
		return e.db.SetPlanTransactionAmount(pool.ID, pool.Amount.Sub(extendOut.Amount), u.txn)
	})
}

// ReleaseUserAssets pays out every unreleased unstake of a user once the
// plan's assets are released
func (e *Engine) ReleaseUserAssets(userId, planId uint) error {
	return e.withUserLock("release_user_assets", userId, planId, func(u *unitOfWork) error {
		released, err := e.db.PlanTransactionExists(planId, models.PlanTransactionTypeRelease, u.txn)
		if err != nil {
			return err
		}
		if !released {
			return fmt.Errorf("plan %d assets are not released: %w", planId, ErrParentIsNotCreated)
		}
		unstakes, err := e.db.GetActiveStakingTransactions(userId, planId, models.StakingTransactionTypeUnstake, u.txn)
		if err != nil {
			return err
		}
		if len(unstakes) == 0 {
			exists, err := e.db.StakingTransactionExists(userId, planId, models.StakingTransactionTypeRelease, u.txn)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("user %d assets in plan %d already released: %w", userId, planId, ErrAlreadyCreated)
			}
			return fmt.Errorf("user %d has no unstake in plan %d: %w", userId, planId, ErrParentIsNotCreated)
		}
		desc := fmt.Sprintf("release staked assets (plan %d)", planId)
		for i := range unstakes {
			row, err := e.createUserRow(
				u,
				userId,
				models.StakingTransactionTypeRelease,
				unstakes[i].Amount,
				parentOf(unstakes[i].ID),
			)
			if err != nil {
				return err
			}
			u.amount = u.amount.Add(row.Amount)
			if row.Amount.IsZero() {
				continue
			}
			if err := e.transferStakingRow(u, row, row.Amount, RefModuleStakingRelease, desc); err != nil {
				return err
			}
		}
		return nil
	})
}

// PayUserReward pays the user's final reward announcement out of the plan's
// give_reward row
func (e *Engine) PayUserReward(userId, planId uint) error {
	return e.withUserLock("pay_user_reward", userId, planId, func(u *unitOfWork) error {
		paid, err := e.db.StakingTransactionExists(userId, planId, models.StakingTransactionTypeGiveReward, u.txn)
		if err != nil {
			return err
		}
		if paid {
			return fmt.Errorf("user %d reward in plan %d already paid: %w", userId, planId, ErrAlreadyCreated)
		}
		announcement, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeAnnounceReward)
		if err != nil {
			return err
		}
		if announcement == nil {
			return fmt.Errorf("user %d has no reward announcement in plan %d: %w", userId, planId, ErrParentIsNotCreated)
		}
		if announcement.CreatedAt.Before(u.plan.StakingEndsAt()) {
			return fmt.Errorf("plan %d final reward not announced yet: %w", planId, ErrTooSoon)
		}
		give, err := e.db.GetActivePlanTransaction(planId, models.PlanTransactionTypeGiveReward, u.txn)
		if err != nil {
			return err
		}
		if give == nil {
			return fmt.Errorf("plan %d reward is not withdrawn: %w", planId, ErrParentIsNotCreated)
		}
		if announcement.Amount.GreaterThan(give.Amount) {
			return fmt.Errorf(
				"user %d reward %s exceeds plan %d remaining %s: %w",
				userId,
				announcement.Amount.String(),
				planId,
				give.Amount.String(),
				ErrInvalidAmount,
			)
		}
		if err := e.db.SetPlanTransactionAmount(give.ID, give.Amount.Sub(announcement.Amount), u.txn); err != nil {
			return err
		}
		row := &models.StakingTransaction{
			UserID:            userId,
			PlanID:            planId,
			Tp:                models.StakingTransactionTypeGiveReward,
			Amount:            announcement.Amount,
			ParentID:          parentOf(announcement.ID),
			PlanTransactionID: parentOf(give.ID),
			CreatedAt:         u.plan.StakingEndsAt(),
		}
		if planId >= e.config.GiveRewardUniqueFromPlanId {
			row.UniqueKey = models.StakingTransactionUniqueKey(models.StakingTransactionTypeGiveReward, userId, planId)
		}
		if err := e.db.CreateStakingTransaction(row, u.txn); err != nil {
			if errors.Is(err, database.ErrDuplicateLedgerRow) {
				return fmt.Errorf("user %d reward in plan %d: %w", userId, planId, ErrAlreadyCreated)
			}
			return err
		}
		u.amount = row.Amount
		return e.transferStakingRow(
			u,
			row,
			row.Amount,
			RefModuleStakingReward,
			fmt.Sprintf("staking reward (plan %d)", planId),
		)
	})
}

// EnableAutoEnd makes the user's whole stake leave the plan when staking
// ends instead of extending
func (e *Engine) EnableAutoEnd(userId, planId uint) error {
	return e.toggleAutoEnd("enable_auto_end", userId, planId, true)
}

// DisableAutoEnd restores the default of extending the user's stake
func (e *Engine) DisableAutoEnd(userId, planId uint) error {
	return e.toggleAutoEnd("disable_auto_end", userId, planId, false)
}

// SetAutoRenewal is the user facing switch: renewing means not ending
func (e *Engine) SetAutoRenewal(userId, planId uint, renew bool) error {
	if renew {
		return e.DisableAutoEnd(userId, planId)
	}
	return e.EnableAutoEnd(userId, planId)
}

func (e *Engine) toggleAutoEnd(transition string, userId, planId uint, active bool) error {
	return e.withUserLock(transition, userId, planId, func(u *unitOfWork) error {
		if !u.plan.IsExtendable {
			return nil
		}
		if !u.now.Before(u.plan.StakingEndsAt()) {
			return fmt.Errorf("staking of plan %d has ended: %w", planId, ErrTooLate)
		}
		autoEnd, err := e.activeUserRow(u, userId, planId, models.StakingTransactionTypeAutoEndRequest)
		if err != nil {
			return err
		}
		switch {
		case active && autoEnd == nil:
			_, err := e.createUserRow(u, userId, models.StakingTransactionTypeAutoEndRequest, decimal.Zero, nil)
			return err
		case !active && autoEnd != nil:
			return e.db.DeactivateStakingTransaction(autoEnd, u.now, u.txn)
		}
		return nil
	})
}
