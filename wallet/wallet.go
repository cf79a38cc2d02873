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

// Package wallet keeps per-user balances and an append-only history of
// balance changes. All changes are made inside the caller's database
// transaction so they commit or roll back with the ledger rows that caused
// them.
package wallet

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/stakeplan/database"
	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMissingTransaction  = errors.New("wallet changes require a transaction")
)

type LedgerOptionFunc func(*Ledger)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) LedgerOptionFunc {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithOverdraftUsers allows the given users to go below a zero balance. This
// is meant for system collector accounts.
func WithOverdraftUsers(userIds ...uint) LedgerOptionFunc {
	return func(l *Ledger) {
		for _, id := range userIds {
			l.overdraft[id] = struct{}{}
		}
	}
}

// WithNowFunc specifies the time source for wallet transaction timestamps
func WithNowFunc(nowFunc func() time.Time) LedgerOptionFunc {
	return func(l *Ledger) {
		l.nowFunc = nowFunc
	}
}

type Ledger struct {
	db        *database.Database
	logger    *slog.Logger
	overdraft map[uint]struct{}
	nowFunc   func() time.Time
}

func New(db *database.Database, opts ...LedgerOptionFunc) *Ledger {
	l := &Ledger{
		db:        db,
		overdraft: make(map[uint]struct{}),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return l
}

// CreateAndCommitTransaction applies a signed balance change for a user and
// records it. It returns the id of the new wallet transaction.
func (l *Ledger) CreateAndCommitTransaction(
	txn *database.Txn,
	userId uint,
	currency string,
	amount decimal.Decimal,
	refModule string,
	refId uint,
	description string,
) (uint, error) {
	if txn == nil {
		return 0, ErrMissingTransaction
	}
	balance, err := l.lockBalance(txn, userId, currency)
	if err != nil {
		return 0, err
	}
	newBalance := balance.Balance.Add(amount)
	if newBalance.IsNegative() {
		if _, ok := l.overdraft[userId]; !ok {
			return 0, fmt.Errorf(
				"user %d has %s %s, needs %s: %w",
				userId,
				balance.Balance.String(),
				currency,
				amount.Neg().String(),
				ErrInsufficientBalance,
			)
		}
	}
	result := txn.Metadata().
		Model(&models.WalletBalance{}).
		Where("id = ?", balance.ID).
		UpdateColumn("balance", newBalance)
	if result.Error != nil {
		return 0, fmt.Errorf("update balance: %w", result.Error)
	}
	walletTx := &models.WalletTransaction{
		CreatedAt:    l.nowFunc().UTC().Truncate(time.Microsecond),
		Reference:    uuid.NewString(),
		Currency:     currency,
		RefModule:    refModule,
		RefID:        refId,
		Description:  description,
		Amount:       amount,
		BalanceAfter: newBalance,
		UserID:       userId,
	}
	if result := txn.Metadata().Create(walletTx); result.Error != nil {
		return 0, fmt.Errorf("create wallet transaction: %w", result.Error)
	}
	l.logger.Debug(
		"committed wallet transaction",
		"component", "wallet",
		"user_id", userId,
		"currency", currency,
		"amount", amount.String(),
		"ref_module", refModule,
		"ref_id", refId,
	)
	return walletTx.ID, nil
}

// lockBalance returns the balance row of a user, creating it when missing,
// and holds a row lock on it until the transaction ends
func (l *Ledger) lockBalance(
	txn *database.Txn,
	userId uint,
	currency string,
) (*models.WalletBalance, error) {
	result := txn.Metadata().
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.WalletBalance{
			UserID:   userId,
			Currency: currency,
			Balance:  decimal.Zero,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("create balance: %w", result.Error)
	}
	var balance models.WalletBalance
	result = txn.Metadata().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND currency = ?", userId, currency).
		First(&balance)
	if result.Error != nil {
		return nil, fmt.Errorf("lock balance: %w", result.Error)
	}
	return &balance, nil
}

// Balance returns the current balance of a user in one currency
func (l *Ledger) Balance(
	userId uint,
	currency string,
	txn *database.Txn,
) (decimal.Decimal, error) {
	if txn == nil {
		txn = l.db.Transaction(false)
		defer txn.Release()
	}
	var balances []models.WalletBalance
	result := txn.Metadata().
		Where("user_id = ? AND currency = ?", userId, currency).
		Limit(1).
		Find(&balances)
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if len(balances) == 0 {
		return decimal.Zero, nil
	}
	return balances[0].Balance, nil
}

// Transactions returns the wallet history of a user, oldest first
func (l *Ledger) Transactions(
	userId uint,
	txn *database.Txn,
) ([]models.WalletTransaction, error) {
	if txn == nil {
		txn = l.db.Transaction(false)
		defer txn.Release()
	}
	var ret []models.WalletTransaction
	result := txn.Metadata().
		Where("user_id = ?", userId).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// Deposit credits a user in its own transaction. It is used to fund
// accounts from outside the staking engine.
func (l *Ledger) Deposit(
	userId uint,
	currency string,
	amount decimal.Decimal,
	description string,
) (uint, error) {
	var walletTxId uint
	txn := l.db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		var err error
		walletTxId, err = l.CreateAndCommitTransaction(
			txn,
			userId,
			currency,
			amount,
			"deposit",
			0,
			description,
		)
		return err
	})
	return walletTxId, err
}
