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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/stakeplan/database"
	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/shopspring/decimal"
)

const (
	// Announcement periods at or below this are replaced by
	// defaultAnnouncementPeriod
	minAnnouncementPeriod     = time.Minute
	defaultAnnouncementPeriod = 24 * time.Hour
)

var errNoRewardSource = errors.New("no reward source configured")

// RewardSplit is how a final reward is distributed. Users + System equals the
// announced reward exactly. Fee is reward*f/(1-f) and is charged on top, so
// Fee + Users + System equals the gross reward/(1-f), truncated.
type RewardSplit struct {
	Fee    decimal.Decimal
	Users  decimal.Decimal
	System decimal.Decimal
}

// SplitReward computes the fee and the user/system shares of reward for a
// plan with the given fee fraction and capacity
func SplitReward(
	reward decimal.Decimal,
	fee decimal.Decimal,
	filled decimal.Decimal,
	total decimal.Decimal,
) (RewardSplit, error) {
	one := decimal.NewFromInt(1)
	if fee.IsNegative() || !fee.LessThan(one) {
		return RewardSplit{}, fmt.Errorf("fee %s out of range: %w", fee.String(), ErrInvalidAmount)
	}
	feeAmount, _ := reward.Mul(fee).QuoRem(one.Sub(fee), amountPlaces)
	users := share(reward, filled, total)
	return RewardSplit{
		Fee:    feeAmount,
		Users:  users,
		System: reward.Sub(users),
	}, nil
}

// AnnouncementTime returns the announcement slot that now falls in. Slots
// start at staked_at and repeat every announcement period; the last one is
// the end of staking.
func AnnouncementTime(plan *models.Plan, now time.Time) (time.Time, error) {
	if now.Before(plan.StakedAt) {
		return time.Time{}, fmt.Errorf("plan %d has not started staking: %w", plan.ID, ErrTooSoon)
	}
	if !now.Before(plan.StakingEndsAt()) {
		return plan.StakingEndsAt(), nil
	}
	period := plan.RewardAnnouncementPeriod
	if period <= minAnnouncementPeriod {
		period = defaultAnnouncementPeriod
	}
	slots := now.Sub(plan.StakedAt) / period
	return plan.StakedAt.Add(slots * period), nil
}

// GetFetchedRewardAmountUntil returns the latest cumulative reward fetched at
// or before t, or zero
func (e *Engine) GetFetchedRewardAmountUntil(
	planId uint,
	t time.Time,
	txn *database.Txn,
) (decimal.Decimal, error) {
	row, err := e.db.GetLatestPlanTransactionUntil(
		planId,
		models.PlanTransactionTypeFetchedReward,
		t,
		txn,
	)
	if err != nil {
		return decimal.Zero, err
	}
	if row == nil {
		return decimal.Zero, nil
	}
	return row.Amount, nil
}

// FetchReward asks the reward source for the plan's cumulative reward and
// records it. The external call happens before the plan is locked.
func (e *Engine) FetchReward(ctx context.Context, planId uint) error {
	if e.config.RewardSource == nil {
		return errNoRewardSource
	}
	plan, err := e.GetPlanToRead(planId)
	if err != nil {
		return err
	}
	now := e.now()
	if now.Before(plan.StakedAt) {
		return fmt.Errorf("plan %d has not started staking: %w", planId, ErrTooSoon)
	}
	until := now
	if end := plan.StakingEndsAt(); end.Before(until) {
		until = end
	}
	amount, err := e.config.RewardSource.FetchReward(ctx, plan, until)
	if err != nil {
		return fmt.Errorf("fetch reward of plan %d: %w", planId, err)
	}
	return e.withPlanLock("fetch_reward", planId, func(u *unitOfWork) error {
		u.amount = amount
		return e.db.CreatePlanTransaction(
			&models.PlanTransaction{
				PlanID:    planId,
				Tp:        models.PlanTransactionTypeFetchedReward,
				Amount:    amount,
				CreatedAt: until,
			},
			u.txn,
		)
	})
}

// AnnounceReward publishes the reward estimate for the current announcement
// slot, for the plan and for each staking user
func (e *Engine) AnnounceReward(planId uint) error {
	return e.withPlanLock("announce_reward", planId, func(u *unitOfWork) error {
		plan := u.plan
		if plan.RewardAnnouncementPeriod <= minAnnouncementPeriod {
			plan.RewardAnnouncementPeriod = defaultAnnouncementPeriod
			err := e.db.UpdatePlanColumns(
				planId,
				map[string]any{"reward_announcement_period": plan.RewardAnnouncementPeriod},
				u.txn,
			)
			if err != nil {
				return err
			}
		}
		at, err := AnnouncementTime(plan, u.now)
		if err != nil {
			return err
		}
		exists, err := e.db.PlanTransactionExistsAt(
			planId,
			models.PlanTransactionTypeAnnounceReward,
			at,
			u.txn,
		)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("plan %d reward already announced at %s: %w", planId, at, ErrAlreadyCreated)
		}
		prev, err := e.db.GetActivePlanTransaction(planId, models.PlanTransactionTypeAnnounceReward, u.txn)
		if err != nil {
			return err
		}
		// The first announcement only covers the slot that precedes it.
		prevAt := at.Add(-plan.RewardAnnouncementPeriod)
		if prevAt.Before(plan.StakedAt) {
			prevAt = plan.StakedAt
		}
		prevAmount := decimal.Zero
		var parentId *uint
		if prev != nil {
			prevAt = prev.CreatedAt
			prevAmount = prev.Amount
			parentId = parentOf(prev.ID)
		}
		fetchedAt, err := e.GetFetchedRewardAmountUntil(planId, at, u.txn)
		if err != nil {
			return err
		}
		fetchedPrev, err := e.GetFetchedRewardAmountUntil(planId, prevAt, u.txn)
		if err != nil {
			return err
		}
		amount := prevAmount.Add(
			fetchedAt.Sub(fetchedPrev).Mul(decimal.NewFromInt(1).Sub(plan.Fee)),
		).Truncate(amountPlaces)
		announcement := &models.PlanTransaction{
			PlanID:    planId,
			Tp:        models.PlanTransactionTypeAnnounceReward,
			Amount:    amount,
			ParentID:  parentId,
			CreatedAt: at,
		}
		if err := e.db.CreatePlanTransaction(announcement, u.txn); err != nil {
			return err
		}
		u.amount = amount
		stakes, err := e.db.GetStakingTransactionsByPlan(planId, models.StakingTransactionTypeStake, u.txn)
		if err != nil {
			return err
		}
		for _, stake := range stakes {
			if !stake.Amount.IsPositive() {
				continue
			}
			userPrev, err := e.db.GetActiveStakingTransaction(
				stake.UserID,
				planId,
				models.StakingTransactionTypeAnnounceReward,
				u.txn,
			)
			if err != nil {
				return err
			}
			row := &models.StakingTransaction{
				UserID:            stake.UserID,
				PlanID:            planId,
				Tp:                models.StakingTransactionTypeAnnounceReward,
				Amount:            share(amount, stake.Amount, plan.TotalCapacity),
				PlanTransactionID: parentOf(announcement.ID),
				CreatedAt:         at,
			}
			if userPrev != nil {
				row.ParentID = parentOf(userPrev.ID)
			}
			if err := e.db.CreateStakingTransaction(row, u.txn); err != nil {
				return err
			}
		}
		return nil
	})
}

// activeFinalAnnouncement returns the announcement a reward payout is based
// on. It must be the end-of-staking announcement.
func (e *Engine) activeFinalAnnouncement(
	u *unitOfWork,
	doneTp models.PlanTransactionType,
	what string,
) (*models.PlanTransaction, error) {
	announcement, err := e.db.GetActivePlanTransaction(
		u.plan.ID,
		models.PlanTransactionTypeAnnounceReward,
		u.txn,
	)
	if err != nil {
		return nil, err
	}
	if announcement == nil {
		exists, err := e.db.PlanTransactionExists(u.plan.ID, doneTp, u.txn)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%s of plan %d: %w", what, u.plan.ID, ErrAlreadyCreated)
		}
		return nil, fmt.Errorf("plan %d has no announced reward: %w", u.plan.ID, ErrParentIsNotCreated)
	}
	if announcement.CreatedAt.Before(u.plan.StakingEndsAt()) {
		return nil, fmt.Errorf("plan %d final reward not announced yet: %w", u.plan.ID, ErrTooSoon)
	}
	return announcement, nil
}

// ApproveRewardAmount marks the final announced reward as approved
func (e *Engine) ApproveRewardAmount(planId uint) error {
	return e.withPlanLock("approve_reward_amount", planId, func(u *unitOfWork) error {
		approved, err := e.db.PlanTransactionExists(
			planId,
			models.PlanTransactionTypeAdminRewardApproved,
			u.txn,
		)
		if err != nil {
			return err
		}
		if approved {
			return fmt.Errorf("reward of plan %d already approved: %w", planId, ErrAlreadyCreated)
		}
		announcement, err := e.activeFinalAnnouncement(
			u,
			models.PlanTransactionTypeAdminRewardApproved,
			"reward approval",
		)
		if err != nil {
			return err
		}
		u.amount = announcement.Amount
		return e.db.CreatePlanTransaction(
			&models.PlanTransaction{
				PlanID:    planId,
				Tp:        models.PlanTransactionTypeAdminRewardApproved,
				Amount:    announcement.Amount,
				CreatedAt: u.plan.StakingEndsAt(),
			},
			u.txn,
		)
	})
}

// WithdrawUsersRewardFromPlan settles the final reward: the fee goes to the
// fee collector, the users' share is set aside in a give_reward row and the
// share of unfilled capacity goes to the reward collector
func (e *Engine) WithdrawUsersRewardFromPlan(planId uint) error {
	return e.withPlanLock("withdraw_users_reward", planId, func(u *unitOfWork) error {
		plan := u.plan
		announcement, err := e.activeFinalAnnouncement(
			u,
			models.PlanTransactionTypeGiveReward,
			"users reward withdrawal",
		)
		if err != nil {
			return err
		}
		split, err := SplitReward(
			announcement.Amount,
			plan.Fee,
			plan.FilledCapacity,
			plan.TotalCapacity,
		)
		if err != nil {
			return err
		}
		collectors := e.config.Collectors
		feeDesc := fmt.Sprintf("reward fee (plan %d)", planId)
		for _, leg := range []struct {
			amount decimal.Decimal
			userId uint
		}{
			{split.Fee, collectors.Fee},
			{split.Fee.Neg(), collectors.Asset},
		} {
			row := &models.PlanTransaction{
				PlanID:    planId,
				Tp:        models.PlanTransactionTypeFee,
				Amount:    leg.amount,
				CreatedAt: u.now,
			}
			if err := e.db.CreatePlanTransaction(row, u.txn); err != nil {
				return err
			}
			if err := e.transferPlanRow(u, row, leg.userId, RefModuleStakingFee, feeDesc); err != nil {
				return err
			}
		}
		give := &models.PlanTransaction{
			PlanID:    planId,
			Tp:        models.PlanTransactionTypeGiveReward,
			Amount:    split.Users,
			ParentID:  parentOf(announcement.ID),
			CreatedAt: plan.StakingEndsAt(),
		}
		if err := e.db.CreatePlanTransaction(give, u.txn); err != nil {
			return err
		}
		walletTxId, err := e.transfer(
			u,
			collectors.Asset,
			split.Users.Neg(),
			RefModuleStakingReward,
			give.ID,
			fmt.Sprintf("rewards withdrawn to be paid to users (plan %d)", planId),
		)
		if err != nil {
			return err
		}
		if err := e.db.SetPlanTransactionWalletTx(give.ID, walletTxId, u.txn); err != nil {
			return err
		}
		systemDesc := fmt.Sprintf("system rewards for unfilled capacity (plan %d)", planId)
		for _, leg := range []struct {
			amount decimal.Decimal
			userId uint
		}{
			{split.System, collectors.Reward},
			{split.System.Neg(), collectors.Asset},
		} {
			row := &models.PlanTransaction{
				PlanID:    planId,
				Tp:        models.PlanTransactionTypeSystemReward,
				Amount:    leg.amount,
				CreatedAt: u.now,
			}
			if err := e.db.CreatePlanTransaction(row, u.txn); err != nil {
				return err
			}
			if split.System.IsZero() {
				continue
			}
			if err := e.transferPlanRow(u, row, leg.userId, RefModuleStakingReward, systemDesc); err != nil {
				return err
			}
		}
		u.amount = split.Users
		return nil
	})
}

// RealizedAPR is the annualized percentage of the paid reward over the
// plan's capacity. It is zero until rewards are paid.
func (e *Engine) RealizedAPR(planId uint) (decimal.Decimal, error) {
	plan, err := e.GetPlanToRead(planId)
	if err != nil {
		return decimal.Zero, err
	}
	paid, err := e.db.GetPlanTransactionsWithChild(
		planId,
		models.PlanTransactionTypeAnnounceReward,
		models.PlanTransactionTypeGiveReward,
		nil,
	)
	if err != nil {
		return decimal.Zero, err
	}
	days := int64(plan.StakingPeriod / (24 * time.Hour))
	if len(paid) == 0 || plan.TotalCapacity.IsZero() || days == 0 {
		return decimal.Zero, nil
	}
	return paid[0].Amount.
		Div(plan.TotalCapacity).
		Mul(decimal.NewFromInt(365).Div(decimal.NewFromInt(days))).
		Mul(decimal.NewFromInt(100)), nil
}
