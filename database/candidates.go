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
	"time"

	"github.com/blinklabs-io/stakeplan/database/models"
)

// These queries back the scheduler's candidate lists. They only look at
// ledger state; schedule checks happen in the staking engine.

// PlanIdsWithActivePlanTransaction returns the plans that have an active
// plan ledger row of the given kind
func (d *Database) PlanIdsWithActivePlanTransaction(
	tp models.PlanTransactionType,
	txn *Txn,
) ([]uint, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []uint
	result := txn.Metadata().
		Model(&models.PlanTransaction{}).
		Where("tp = ?", tp).
		Where(activePlanTransaction).
		Distinct("plan_id").
		Order("plan_id").
		Pluck("plan_id", &ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// PlanIdsWithPlanTransaction returns the plans that have any plan ledger row
// of the given kind
func (d *Database) PlanIdsWithPlanTransaction(
	tp models.PlanTransactionType,
	txn *Txn,
) ([]uint, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []uint
	result := txn.Metadata().
		Model(&models.PlanTransaction{}).
		Where("tp = ?", tp).
		Distinct("plan_id").
		Order("plan_id").
		Pluck("plan_id", &ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// PlanIdsWithActiveStakingTransaction returns the plans where at least one
// user has an active ledger row of the given kind
func (d *Database) PlanIdsWithActiveStakingTransaction(
	tp models.StakingTransactionType,
	txn *Txn,
) ([]uint, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []uint
	result := txn.Metadata().
		Model(&models.StakingTransaction{}).
		Where("tp = ?", tp).
		Where(activeStakingTransaction).
		Distinct("plan_id").
		Order("plan_id").
		Pluck("plan_id", &ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// UserIdsWithActiveStakingTransaction returns the users of a plan that have
// an active ledger row of the given kind
func (d *Database) UserIdsWithActiveStakingTransaction(
	planId uint,
	tp models.StakingTransactionType,
	txn *Txn,
) ([]uint, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []uint
	result := txn.Metadata().
		Model(&models.StakingTransaction{}).
		Where("plan_id = ? AND tp = ?", planId, tp).
		Where(activeStakingTransaction).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetPlanTransactionsByType returns the plan ledger rows of the given kind
// for the given plans, optionally only those created after a point in time
func (d *Database) GetPlanTransactionsByType(
	tp models.PlanTransactionType,
	planIds []uint,
	createdAfter *time.Time,
	txn *Txn,
) ([]models.PlanTransaction, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.PlanTransaction
	if len(planIds) == 0 {
		return ret, nil
	}
	query := txn.Metadata().Where("tp = ? AND plan_id IN ?", tp, planIds)
	if createdAfter != nil {
		query = query.Where("created_at > ?", *createdAfter)
	}
	if result := query.Order("id").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetPlansStakedBefore returns the plans whose assets were due to be staked
// before the given time
func (d *Database) GetPlansStakedBefore(
	t time.Time,
	txn *Txn,
) ([]models.Plan, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.Plan
	result := txn.Metadata().
		Preload("ExternalPlatform").
		Where("staked_at < ?", t).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetPlansOpenedBeforeWithout returns the plans that opened for requests before the
// given time and have no plan ledger row of the given kind
func (d *Database) GetPlansOpenedBeforeWithout(
	t time.Time,
	tp models.PlanTransactionType,
	txn *Txn,
) ([]models.Plan, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.Plan
	result := txn.Metadata().
		Preload("ExternalPlatform").
		Where("opened_at < ?", t).
		Where(
			"NOT EXISTS (SELECT 1 FROM plan_transaction"+
				" WHERE plan_transaction.plan_id = plan.id AND plan_transaction.tp = ?)",
			tp,
		).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
