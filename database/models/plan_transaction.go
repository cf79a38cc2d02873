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

package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PlanTransactionType tags a plan ledger row. Mirror kinds share their
// numeric value with StakingTransactionType.
type PlanTransactionType uint16

const (
	PlanTransactionTypeAnnounceReward            PlanTransactionType = 301
	PlanTransactionTypeGiveReward                PlanTransactionType = 302
	PlanTransactionTypeStake                     PlanTransactionType = 303
	PlanTransactionTypeRelease                   PlanTransactionType = 304
	PlanTransactionTypeUnstake                   PlanTransactionType = 305
	PlanTransactionTypeExtendOut                 PlanTransactionType = 311
	PlanTransactionTypeExtendIn                  PlanTransactionType = 312
	PlanTransactionTypeFee                       PlanTransactionType = 313
	PlanTransactionTypeFetchedReward             PlanTransactionType = 314
	PlanTransactionTypeSystemReward              PlanTransactionType = 322
	PlanTransactionTypeAdminRewardApproved       PlanTransactionType = 401
	PlanTransactionTypeSystemStakeAmountApproval PlanTransactionType = 403
	PlanTransactionTypeDeactivator               PlanTransactionType = 999
)

var planTransactionTypeNames = map[PlanTransactionType]string{
	PlanTransactionTypeAnnounceReward:            "announce_reward",
	PlanTransactionTypeGiveReward:                "give_reward",
	PlanTransactionTypeStake:                     "stake",
	PlanTransactionTypeRelease:                   "release",
	PlanTransactionTypeUnstake:                   "unstake",
	PlanTransactionTypeExtendOut:                 "extend_out",
	PlanTransactionTypeExtendIn:                  "extend_in",
	PlanTransactionTypeFee:                       "fee",
	PlanTransactionTypeFetchedReward:             "fetched_reward",
	PlanTransactionTypeSystemReward:              "system_reward",
	PlanTransactionTypeAdminRewardApproved:       "admin_reward_approved",
	PlanTransactionTypeSystemStakeAmountApproval: "system_stake_amount_approval",
	PlanTransactionTypeDeactivator:               "deactivator",
}

func (t PlanTransactionType) String() string {
	if name, ok := planTransactionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// PlanTransaction is a plan-level ledger row. A row is active while no other
// row names it as parent.
type PlanTransaction struct {
	CreatedAt           time.Time           `gorm:"precision:6;index;not null"`
	ParentID            *uint               `gorm:"index"`
	WalletTransactionID *uint               `gorm:"index"`
	Amount              decimal.Decimal     `gorm:"type:numeric(30,10);not null"`
	ID                  uint                `gorm:"primarykey"`
	PlanID              uint                `gorm:"index:idx_plan_transaction_plan_tp,priority:1;not null"`
	Tp                  PlanTransactionType `gorm:"index:idx_plan_transaction_plan_tp,priority:2;index;not null"`
}

func (PlanTransaction) TableName() string {
	return "plan_transaction"
}
