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
	"time"

	"github.com/blinklabs-io/stakeplan/database"
	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/shopspring/decimal"
)

// Wallet reference modules
const (
	RefModuleStakingRequest = "staking_request"
	RefModuleStakingFee     = "staking_fee"
	RefModuleStakingReward  = "staking_reward"
	RefModuleStakingRelease = "staking_release"
)

// Wallet moves balances inside the caller's transaction. A debit that the
// account cannot cover must fail with an error wrapping
// wallet.ErrInsufficientBalance.
type Wallet interface {
	CreateAndCommitTransaction(
		txn *database.Txn,
		userId uint,
		currency string,
		amount decimal.Decimal,
		refModule string,
		refId uint,
		description string,
	) (uint, error)
}

// RewardSource reports the cumulative gross reward a plan has earned on its
// external platform up to the given time
type RewardSource interface {
	FetchReward(
		ctx context.Context,
		plan *models.Plan,
		until time.Time,
	) (decimal.Decimal, error)
}

// RewardSourceFunc adapts a function to RewardSource
type RewardSourceFunc func(
	ctx context.Context,
	plan *models.Plan,
	until time.Time,
) (decimal.Decimal, error)

func (f RewardSourceFunc) FetchReward(
	ctx context.Context,
	plan *models.Plan,
	until time.Time,
) (decimal.Decimal, error) {
	return f(ctx, plan, until)
}

// Notifier tells a watching user that a plan has free capacity again
type Notifier interface {
	NotifyCapacityIncrease(
		ctx context.Context,
		userId uint,
		plan *models.Plan,
	) error
}

type NotifierFunc func(ctx context.Context, userId uint, plan *models.Plan) error

func (f NotifierFunc) NotifyCapacityIncrease(
	ctx context.Context,
	userId uint,
	plan *models.Plan,
) error {
	return f(ctx, userId, plan)
}

// Collectors are the system accounts that hold pooled assets, fees and the
// reward share of unfilled capacity
type Collectors struct {
	Asset  uint
	Fee    uint
	Reward uint
}

// Accounts returns the collector user ids
func (c Collectors) Accounts() []uint {
	return []uint{c.Asset, c.Fee, c.Reward}
}
