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
	"fmt"

	"github.com/blinklabs-io/stakeplan/database/models"
	"gorm.io/gorm/clause"
)

// CreateUserWatch stores a (user, plan) watch. Existing watches are left as
// they are.
func (d *Database) CreateUserWatch(userId, planId uint, txn *Txn) error {
	if txn == nil {
		txn = d.Transaction(true)
		return txn.Do(func(txn *Txn) error {
			return d.CreateUserWatch(userId, planId, txn)
		})
	}
	result := txn.Metadata().
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserWatch{UserID: userId, PlanID: planId})
	if result.Error != nil {
		return fmt.Errorf("create watch: %w", result.Error)
	}
	return nil
}

// DeleteUserWatch removes a (user, plan) watch if present
func (d *Database) DeleteUserWatch(userId, planId uint, txn *Txn) error {
	if txn == nil {
		txn = d.Transaction(true)
		return txn.Do(func(txn *Txn) error {
			return d.DeleteUserWatch(userId, planId, txn)
		})
	}
	result := txn.Metadata().
		Where("user_id = ? AND plan_id = ?", userId, planId).
		Delete(&models.UserWatch{})
	if result.Error != nil {
		return fmt.Errorf("delete watch: %w", result.Error)
	}
	return nil
}

// DeleteUserWatchesForPlans removes every watch on the given plans
func (d *Database) DeleteUserWatchesForPlans(planIds []uint, txn *Txn) (int64, error) {
	if len(planIds) == 0 {
		return 0, nil
	}
	if txn == nil {
		var deleted int64
		txn = d.Transaction(true)
		err := txn.Do(func(txn *Txn) error {
			var err error
			deleted, err = d.DeleteUserWatchesForPlans(planIds, txn)
			return err
		})
		return deleted, err
	}
	result := txn.Metadata().
		Where("plan_id IN ?", planIds).
		Delete(&models.UserWatch{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete watches: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetUserWatches returns the watches of one user ordered by plan
func (d *Database) GetUserWatches(userId uint, txn *Txn) ([]models.UserWatch, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.UserWatch
	result := txn.Metadata().
		Where("user_id = ?", userId).
		Order("plan_id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetPlanWatches returns the watches on one plan ordered by user
func (d *Database) GetPlanWatches(planId uint, txn *Txn) ([]models.UserWatch, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.UserWatch
	result := txn.Metadata().
		Where("plan_id = ?", planId).
		Order("user_id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetWatchedPlanIds returns the distinct plans that have at least one watch
func (d *Database) GetWatchedPlanIds(txn *Txn) ([]uint, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []uint
	result := txn.Metadata().
		Model(&models.UserWatch{}).
		Distinct("plan_id").
		Order("plan_id").
		Pluck("plan_id", &ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
