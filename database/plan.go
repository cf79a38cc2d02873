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

	"github.com/blinklabs-io/stakeplan/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreatePlatform stores a new external earning platform
func (d *Database) CreatePlatform(
	platform *models.ExternalEarningPlatform,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		return txn.Do(func(txn *Txn) error {
			return d.CreatePlatform(platform, txn)
		})
	}
	if result := txn.Metadata().Create(platform); result.Error != nil {
		return fmt.Errorf("create platform: %w", result.Error)
	}
	return nil
}

// CreatePlan stores a new plan. The platform association must already exist.
func (d *Database) CreatePlan(plan *models.Plan, txn *Txn) error {
	if txn == nil {
		txn = d.Transaction(true)
		return txn.Do(func(txn *Txn) error {
			return d.CreatePlan(plan, txn)
		})
	}
	result := txn.Metadata().Omit("ExternalPlatform").Create(plan)
	if result.Error != nil {
		return fmt.Errorf("create plan: %w", result.Error)
	}
	return nil
}

// GetPlan returns a plan with its platform loaded
func (d *Database) GetPlan(id uint, txn *Txn) (*models.Plan, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	return getPlan(txn.Metadata(), id)
}

// GetPlanForUpdate returns a plan with its row locked until the end of the
// transaction
func (d *Database) GetPlanForUpdate(id uint, txn *Txn) (*models.Plan, error) {
	if txn == nil {
		return nil, errors.New("locking a plan requires a transaction")
	}
	return getPlan(
		txn.Metadata().Clauses(clause.Locking{Strength: "UPDATE"}),
		id,
	)
}

func getPlan(db *gorm.DB, id uint) (*models.Plan, error) {
	var plan models.Plan
	result := db.Preload("ExternalPlatform").Where("id = ?", id).First(&plan)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrPlanNotFound
		}
		return nil, result.Error
	}
	return &plan, nil
}

// PlanExists reports whether a plan with the given id exists
func (d *Database) PlanExists(id uint, txn *Txn) (bool, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var count int64
	result := txn.Metadata().Model(&models.Plan{}).Where("id = ?", id).Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// UpdatePlanColumns writes the given columns of a plan without touching its
// associations
func (d *Database) UpdatePlanColumns(
	id uint,
	columns map[string]any,
	txn *Txn,
) error {
	result := txn.Metadata().
		Model(&models.Plan{}).
		Where("id = ?", id).
		UpdateColumns(columns)
	if result.Error != nil {
		return fmt.Errorf("update plan %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrPlanNotFound
	}
	return nil
}

// GetPlanExtensions returns the plans extending the given plan. A well-formed
// chain has at most one.
func (d *Database) GetPlanExtensions(
	id uint,
	forUpdate bool,
	txn *Txn,
) ([]models.Plan, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	db := txn.Metadata()
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ret []models.Plan
	result := db.Preload("ExternalPlatform").
		Where("extended_from_id = ?", id).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetPlans returns plans matching the given ids, ordered by id
func (d *Database) GetPlans(ids []uint, txn *Txn) ([]models.Plan, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.Plan
	if len(ids) == 0 {
		return ret, nil
	}
	result := txn.Metadata().
		Preload("ExternalPlatform").
		Where("id IN ?", ids).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AllPlans returns every plan ordered by id
func (d *Database) AllPlans(txn *Txn) ([]models.Plan, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var ret []models.Plan
	result := txn.Metadata().Preload("ExternalPlatform").Order("id").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
