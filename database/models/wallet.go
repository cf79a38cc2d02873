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
	"time"

	"github.com/shopspring/decimal"
)

// WalletBalance holds the running balance of one user in one currency
type WalletBalance struct {
	Currency string          `gorm:"size:32;uniqueIndex:idx_wallet_balance_user_currency,priority:2;not null"`
	Balance  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ID       uint            `gorm:"primarykey"`
	UserID   uint            `gorm:"uniqueIndex:idx_wallet_balance_user_currency,priority:1;not null"`
}

func (WalletBalance) TableName() string {
	return "wallet_balance"
}

// WalletTransaction is an append-only record of a committed balance change
type WalletTransaction struct {
	CreatedAt    time.Time       `gorm:"precision:6;index;not null"`
	Reference    string          `gorm:"size:36;uniqueIndex;not null"`
	Currency     string          `gorm:"size:32;not null"`
	RefModule    string          `gorm:"size:32;index:idx_wallet_transaction_ref,priority:1;not null"`
	Description  string          `gorm:"size:255"`
	Amount       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ID           uint            `gorm:"primarykey"`
	UserID       uint            `gorm:"index;not null"`
	RefID        uint            `gorm:"index:idx_wallet_transaction_ref,priority:2"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}
