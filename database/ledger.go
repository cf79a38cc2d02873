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

package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// A ledger row is active while no other row of the same table names it as
// its parent
const (
	activePlanTransaction = "NOT EXISTS (SELECT 1 FROM plan_transaction AS child" +
		" WHERE child.parent_id = plan_transaction.id)"
	activeStakingTransaction = "NOT EXISTS (SELECT 1 FROM staking_transaction AS child" +
		" WHERE child.parent_id = staking_transaction.id)"
)

// CreatePlanTransaction appends a row to the plan ledger
func (d *Database) CreatePlanTransaction(
	row *models.PlanTransaction,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		return txn.Do(func(txn *Txn) error {
			return d.CreatePlanTransaction(row, txn)
		})
	}
	if result := txn.Metadata().Create(row); result.Error != nil {
		return fmt.Errorf(
			"create %s plan transaction for plan %d: %w",
			row.Tp,
			row.PlanID,
			result.Error,
		)
	}
	return nil
}

// GetActivePlanTransaction returns the newest active plan ledger row of the
// given kind, or nil when there is none
func (d *Database) GetActivePlanTransaction(
	planId uint,
	tp models.PlanTransactionType,
	txn *Txn,
) (*models.PlanTransaction, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret models.PlanTransaction
	result := txn.Metadata().
		Where("plan_id = ? AND tp = ?", planId, tp).
		Where(activePlanTransaction).
		Order("id DESC").
		Limit(1).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &ret, nil
}

// GetActivePlanTransactionsByType returns every active plan ledger row of
// the given kind across all plans
func (d *Database) GetActivePlanTransactionsByType(
	tp models.PlanTransactionType,
	txn *Txn,
) ([]models.PlanTransaction, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.PlanTransaction
	result := txn.Metadata().
		Where("tp = ?", tp).
		Where(activePlanTransaction).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// PlanTransactionExists reports whether the plan has any ledger row of the
// given kind, active or not
func (d *Database) PlanTransactionExists(
	planId uint,
	tp models.PlanTransactionType,
	txn *Txn,
) (bool, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var count int64
	result := txn.Metadata().
		Model(&models.PlanTransaction{}).
		Where("plan_id = ? AND tp = ?", planId, tp).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// PlanTransactionExistsAt reports whether the plan has a ledger row of the
// given kind created at exactly the given time
func (d *Database) PlanTransactionExistsAt(
	planId uint,
	tp models.PlanTransactionType,
	createdAt time.Time,
	txn *Txn,
) (bool, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var count int64
	result := txn.Metadata().
		Model(&models.PlanTransaction{}).
		Where("plan_id = ? AND tp = ? AND created_at = ?", planId, tp, createdAt).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// GetLatestPlanTransactionUntil returns the newest plan ledger row of the
// given kind created at or before the given time, or nil when there is none
func (d *Database) GetLatestPlanTransactionUntil(
	planId uint,
	tp models.PlanTransactionType,
	until time.Time,
	txn *Txn,
) (*models.PlanTransaction, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret models.PlanTransaction
	result := txn.Metadata().
		Where("plan_id = ? AND tp = ? AND created_at <= ?", planId, tp, until).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &ret, nil
}

// GetPlanTransactionsWithChild returns the plan ledger rows of kind tp that
// were consumed by a row of kind childTp
func (d *Database) GetPlanTransactionsWithChild(
	planId uint,
	tp models.PlanTransactionType,
	childTp models.PlanTransactionType,
	txn *Txn,
) ([]models.PlanTransaction, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.PlanTransaction
	result := txn.Metadata().
		Where("plan_id = ? AND tp = ?", planId, tp).
		Where(
			"EXISTS (SELECT 1 FROM plan_transaction AS child"+
				" WHERE child.parent_id = plan_transaction.id AND child.tp = ?)",
			childTp,
		).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// SetPlanTransactionAmount overwrites the amount of a plan ledger row. It is
// only used for the balance kinds, which accumulate in place while the plan
// row is locked.
func (d *Database) SetPlanTransactionAmount(
	id uint,
	amount decimal.Decimal,
	txn *Txn,
) error {
	result := txn.Metadata().
		Model(&models.PlanTransaction{}).
		Where("id = ?", id).
		UpdateColumn("amount", amount)
	if result.Error != nil {
		return fmt.Errorf("update plan transaction %d: %w", id, result.Error)
	}
	return nil
}

// SetPlanTransactionWalletTx links a plan ledger row to the wallet
// transaction that moved its funds
func (d *Database) SetPlanTransactionWalletTx(
	id uint,
	walletTxId uint,
	txn *Txn,
) error {
	result := txn.Metadata().
		Model(&models.PlanTransaction{}).
		Where("id = ?", id).
		UpdateColumn("wallet_transaction_id", walletTxId)
	if result.Error != nil {
		return fmt.Errorf("update plan transaction %d: %w", id, result.Error)
	}
	return nil
}

// DeactivatePlanTransaction appends a deactivator row pointing at the given
// row
func (d *Database) DeactivatePlanTransaction(
	row *models.PlanTransaction,
	createdAt time.Time,
	txn *Txn,
) error {
	parentId := row.ID
	return d.CreatePlanTransaction(
		&models.PlanTransaction{
			PlanID:    row.PlanID,
			Tp:        models.PlanTransactionTypeDeactivator,
			Amount:    decimal.Zero,
			ParentID:  &parentId,
			CreatedAt: createdAt,
		},
		txn,
	)
}

// CreateStakingTransaction appends a row to the per-user ledger
func (d *Database) CreateStakingTransaction(
	row *models.StakingTransaction,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		return txn.Do(func(txn *Txn) error {
			return d.CreateStakingTransaction(row, txn)
		})
	}
	if result := txn.Metadata().Create(row); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf(
				"create %s staking transaction for user %d plan %d: %w",
				row.Tp,
				row.UserID,
				row.PlanID,
				ErrDuplicateLedgerRow,
			)
		}
		return fmt.Errorf(
			"create %s staking transaction for user %d plan %d: %w",
			row.Tp,
			row.UserID,
			row.PlanID,
			result.Error,
		)
	}
	return nil
}

// GetActiveStakingTransaction returns the newest active per-user ledger row
// of the given kind, or nil when there is none
func (d *Database) GetActiveStakingTransaction(
	userId uint,
	planId uint,
	tp models.StakingTransactionType,
	txn *Txn,
) (*models.StakingTransaction, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret models.StakingTransaction
	result := txn.Metadata().
		Where("user_id = ? AND plan_id = ? AND tp = ?", userId, planId, tp).
		Where(activeStakingTransaction).
		Order("id DESC").
		Limit(1).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &ret, nil
}

// GetActiveStakingTransactions returns the active per-user ledger rows of
// the given kind for one user, oldest first
func (d *Database) GetActiveStakingTransactions(
	userId uint,
	planId uint,
	tp models.StakingTransactionType,
	txn *Txn,
) ([]models.StakingTransaction, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.StakingTransaction
	result := txn.Metadata().
		Where("user_id = ? AND plan_id = ? AND tp = ?", userId, planId, tp).
		Where(activeStakingTransaction).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetActiveStakingTransactionsByPlan returns the active per-user ledger rows
// of the given kind for every user of a plan
func (d *Database) GetActiveStakingTransactionsByPlan(
	planId uint,
	tp models.StakingTransactionType,
	txn *Txn,
) ([]models.StakingTransaction, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.StakingTransaction
	result := txn.Metadata().
		Where("plan_id = ? AND tp = ?", planId, tp).
		Where(activeStakingTransaction).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetStakingTransactionsByPlan returns every per-user ledger row of the given
// kind for a plan, active or not
func (d *Database) GetStakingTransactionsByPlan(
	planId uint,
	tp models.StakingTransactionType,
	txn *Txn,
) ([]models.StakingTransaction, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.StakingTransaction
	result := txn.Metadata().
		Where("plan_id = ? AND tp = ?", planId, tp).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// StakingTransactionExists reports whether the user has any ledger row of
// the given kind on the plan, active or not
func (d *Database) StakingTransactionExists(
	userId uint,
	planId uint,
	tp models.StakingTransactionType,
	txn *Txn,
) (bool, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var count int64
	result := txn.Metadata().
		Model(&models.StakingTransaction{}).
		Where("user_id = ? AND plan_id = ? AND tp = ?", userId, planId, tp).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// SetStakingTransactionAmount overwrites the amount of a per-user balance
// row while the (user, plan) lock is held
func (d *Database) SetStakingTransactionAmount(
	id uint,
	amount decimal.Decimal,
	txn *Txn,
) error {
	result := txn.Metadata().
		Model(&models.StakingTransaction{}).
		Where("id = ?", id).
		UpdateColumn("amount", amount)
	if result.Error != nil {
		return fmt.Errorf("update staking transaction %d: %w", id, result.Error)
	}
	return nil
}

// SetStakingTransactionWalletTx links a per-user ledger row to the wallet
// transaction that moved its funds
func (d *Database) SetStakingTransactionWalletTx(
	id uint,
	walletTxId uint,
	txn *Txn,
) error {
	result := txn.Metadata().
		Model(&models.StakingTransaction{}).
		Where("id = ?", id).
		UpdateColumn("wallet_transaction_id", walletTxId)
	if result.Error != nil {
		return fmt.Errorf("update staking transaction %d: %w", id, result.Error)
	}
	return nil
}

// DeactivateStakingTransaction appends a deactivator row pointing at the
// given row
func (d *Database) DeactivateStakingTransaction(
	row *models.StakingTransaction,
	createdAt time.Time,
	txn *Txn,
) error {
	parentId := row.ID
	return d.CreateStakingTransaction(
		&models.StakingTransaction{
			UserID:    row.UserID,
			PlanID:    row.PlanID,
			Tp:        models.StakingTransactionTypeDeactivator,
			Amount:    decimal.Zero,
			ParentID:  &parentId,
			CreatedAt: createdAt,
		},
		txn,
	)
}
