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

type StakingTransactionType uint16

const (
	// User actions
	StakingTransactionTypeCreateRequest       StakingTransactionType = 101
	StakingTransactionTypeCancelCreateRequest StakingTransactionType = 102
	StakingTransactionTypeEndRequest          StakingTransactionType = 103
	StakingTransactionTypeCancelEndRequest    StakingTransactionType = 104
	StakingTransactionTypeInstantEndRequest   StakingTransactionType = 105
	StakingTransactionTypeAutoEndRequest      StakingTransactionType = 106

	// System and admin actions
	StakingTransactionTypeSystemAcceptedCreate StakingTransactionType = 201
	StakingTransactionTypeSystemRejectedCreate StakingTransactionType = 202
	StakingTransactionTypeSystemAcceptedEnd    StakingTransactionType = 203
	StakingTransactionTypeSystemRejectedEnd    StakingTransactionType = 204
	StakingTransactionTypeAdminRejectedCreate  StakingTransactionType = 211
	StakingTransactionTypeAdminRejectedEnd     StakingTransactionType = 212

	// Mirrors of the plan ledger
	StakingTransactionTypeAnnounceReward = StakingTransactionType(PlanTransactionTypeAnnounceReward)
	StakingTransactionTypeGiveReward     = StakingTransactionType(PlanTransactionTypeGiveReward)
	StakingTransactionTypeStake          = StakingTransactionType(PlanTransactionTypeStake)
	StakingTransactionTypeRelease        = StakingTransactionType(PlanTransactionTypeRelease)
	StakingTransactionTypeUnstake        = StakingTransactionType(PlanTransactionTypeUnstake)
	StakingTransactionTypeExtendOut      = StakingTransactionType(PlanTransactionTypeExtendOut)
	StakingTransactionTypeExtendIn       = StakingTransactionType(PlanTransactionTypeExtendIn)
	StakingTransactionTypeDeactivator    = StakingTransactionType(PlanTransactionTypeDeactivator)
)

var stakingTransactionTypeNames = map[StakingTransactionType]string{
	StakingTransactionTypeCreateRequest:        "create_request",
	StakingTransactionTypeCancelCreateRequest:  "cancel_create_request",
	StakingTransactionTypeEndRequest:           "end_request",
	StakingTransactionTypeCancelEndRequest:     "cancel_end_request",
	StakingTransactionTypeInstantEndRequest:    "instant_end_request",
	StakingTransactionTypeAutoEndRequest:       "auto_end_request",
	StakingTransactionTypeSystemAcceptedCreate: "system_accepted_create",
	StakingTransactionTypeSystemRejectedCreate: "system_rejected_create",
	StakingTransactionTypeSystemAcceptedEnd:    "system_accepted_end",
	StakingTransactionTypeSystemRejectedEnd:    "system_rejected_end",
	StakingTransactionTypeAdminRejectedCreate:  "admin_rejected_create",
	StakingTransactionTypeAdminRejectedEnd:     "admin_rejected_end",
	StakingTransactionTypeAnnounceReward:       "announce_reward",
	StakingTransactionTypeGiveReward:           "give_reward",
	StakingTransactionTypeStake:                "stake",
	StakingTransactionTypeRelease:              "release",
	StakingTransactionTypeUnstake:              "unstake",
	StakingTransactionTypeExtendOut:            "extend_out",
	StakingTransactionTypeExtendIn:             "extend_in",
	StakingTransactionTypeDeactivator:          "deactivator",
}

func (t StakingTransactionType) String() string {
	if name, ok := stakingTransactionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// StakingTransaction is the per-user mirror of the plan ledger.
//
// UniqueKey is only populated for kinds that may exist at most once per
// (user, plan). It stays NULL otherwise, which every supported dialect
// excludes from unique index comparisons.
type StakingTransaction struct {
	CreatedAt           time.Time              `gorm:"precision:6;index;not null"`
	ParentID            *uint                  `gorm:"index"`
	PlanTransactionID   *uint                  `gorm:"index"`
	WalletTransactionID *uint                  `gorm:"index"`
	UniqueKey           *string                `gorm:"size:128;uniqueIndex"`
	Amount              decimal.Decimal        `gorm:"type:numeric(30,10);not null"`
	ID                  uint                   `gorm:"primarykey"`
	UserID              uint                   `gorm:"index:idx_staking_transaction_user_plan,priority:1;not null"`
	PlanID              uint                   `gorm:"index:idx_staking_transaction_user_plan,priority:2;index:idx_staking_transaction_plan_tp,priority:1;not null"`
	Tp                  StakingTransactionType `gorm:"index:idx_staking_transaction_plan_tp,priority:2;not null"`
}

func (StakingTransaction) TableName() string {
	return "staking_transaction"
}

// StakingTransactionUniqueKey builds the value stored in UniqueKey for kinds
// limited to a single row per (user, plan)
func StakingTransactionUniqueKey(
	tp StakingTransactionType,
	userId uint,
	planId uint,
) *string {
	key := fmt.Sprintf("%d:%d:%d", uint16(tp), userId, planId)
	return &key
}
