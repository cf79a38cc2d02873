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

	"github.com/blinklabs-io/stakeplan/database"
	"github.com/blinklabs-io/stakeplan/database/models"
)

// AddWatch subscribes a user to capacity increases of a plan
func (e *Engine) AddWatch(userId, planId uint) error {
	if err := e.CheckExistence(planId); err != nil {
		return err
	}
	return e.db.CreateUserWatch(userId, planId, nil)
}

// RemoveWatch unsubscribes a user from a plan
func (e *Engine) RemoveWatch(userId, planId uint) error {
	if err := e.CheckExistence(planId); err != nil {
		return err
	}
	return e.db.DeleteUserWatch(userId, planId, nil)
}

// WatchedPlanIds returns the plans a user watches
func (e *Engine) WatchedPlanIds(userId uint) ([]uint, error) {
	watches, err := e.db.GetUserWatches(userId, nil)
	if err != nil {
		return nil, err
	}
	ret := make([]uint, 0, len(watches))
	for _, w := range watches {
		ret = append(ret, w.PlanID)
	}
	return ret, nil
}

// CleanUpWatches drops the watches of plans whose staking has ended
func (e *Engine) CleanUpWatches() (int64, error) {
	now := e.now()
	plans, err := e.db.GetPlansStakedBefore(now, nil)
	if err != nil {
		return 0, err
	}
	ended := planIds(plans, func(p *models.Plan) bool {
		return p.StakingEndsAt().Before(now)
	})
	return e.db.DeleteUserWatchesForPlans(ended, nil)
}

// NotifyUsers tells every watcher of a plan that it has free capacity. It
// does nothing once the request window is over. Watches are removed only
// for users that were notified.
func (e *Engine) NotifyUsers(ctx context.Context, planId uint) error {
	if e.config.Notifier == nil {
		return nil
	}
	plan, err := e.GetPlanToRead(planId)
	if err != nil {
		return err
	}
	if err := CheckOpenForRequests(plan, e.now()); err != nil {
		if errors.Is(err, ErrTooLate) {
			return nil
		}
		return err
	}
	watches, err := e.db.GetPlanWatches(planId, nil)
	if err != nil {
		return err
	}
	var sent []uint
	for _, w := range watches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.config.Notifier.NotifyCapacityIncrease(ctx, w.UserID, plan); err != nil {
			e.logger.Error(
				"failed to notify user of plan capacity",
				"component", "staking",
				"plan_id", planId,
				"user_id", w.UserID,
				"error", err,
			)
			continue
		}
		sent = append(sent, w.UserID)
	}
	if len(sent) == 0 {
		return nil
	}
	txn := e.db.Transaction(true)
	return txn.Do(func(txn *database.Txn) error {
		for _, userId := range sent {
			if err := e.db.DeleteUserWatch(userId, planId, txn); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExtendWatches moves watches of started extendable plans to the plan that
// extends them. Users already watching the successor keep a single watch.
func (e *Engine) ExtendWatches() error {
	now := e.now()
	watched, err := e.db.GetWatchedPlanIds(nil)
	if err != nil {
		return err
	}
	plans, err := e.db.GetPlans(watched, nil)
	if err != nil {
		return err
	}
	for i := range plans {
		plan := &plans[i]
		if !plan.IsExtendable || !plan.StakedAt.Before(now) {
			continue
		}
		successors, err := e.db.GetPlanExtensions(plan.ID, false, nil)
		if err != nil {
			return err
		}
		if len(successors) != 1 {
			continue
		}
		successorId := successors[0].ID
		txn := e.db.Transaction(true)
		err = txn.Do(func(txn *database.Txn) error {
			watches, err := e.db.GetPlanWatches(plan.ID, txn)
			if err != nil {
				return err
			}
			for _, w := range watches {
				if err := e.db.CreateUserWatch(w.UserID, successorId, txn); err != nil {
					return err
				}
			}
			_, err = e.db.DeleteUserWatchesForPlans([]uint{plan.ID}, txn)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
