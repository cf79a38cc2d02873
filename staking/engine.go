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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/stakeplan/database"
	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/database/types"
	"github.com/blinklabs-io/stakeplan/event"
	"github.com/blinklabs-io/stakeplan/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// amountPlaces is the number of fractional digits kept by every computed
// ledger amount
const amountPlaces = 10

const userLockScope = "staking"

type EngineConfig struct {
	PromRegistry prometheus.Registerer
	Database     *database.Database
	Wallet       Wallet
	Clock        Clock
	RewardSource RewardSource
	Notifier     Notifier
	EventBus     *event.EventBus
	Logger       *slog.Logger
	Collectors   Collectors
	// User give_reward rows are unique per (user, plan) for plans with an id
	// at or above this value
	GiveRewardUniqueFromPlanId uint
}

type Engine struct {
	config  EngineConfig
	db      *database.Database
	wallet  Wallet
	clock   Clock
	logger  *slog.Logger
	metrics engineMetrics
}

func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Database == nil {
		return nil, errors.New("staking engine requires a database")
	}
	if config.Wallet == nil {
		return nil, errors.New("staking engine requires a wallet")
	}
	e := &Engine{
		config: config,
		db:     config.Database,
		wallet: config.Wallet,
		clock:  config.Clock,
	}
	if e.clock == nil {
		e.clock = realClock{}
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		e.logger = config.Logger
	}
	e.metrics.init(config.PromRegistry)
	return e, nil
}

// Database returns the database the engine writes to
func (e *Engine) Database() *database.Database {
	return e.db
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Microsecond)
}

// unitOfWork carries the state of one transition while its transaction is
// open. Events are published only after commit.
type unitOfWork struct {
	txn    *database.Txn
	plan   *models.Plan
	now    time.Time
	amount decimal.Decimal
	events []event.Event
}

func (u *unitOfWork) emit(eventType event.EventType, data any) {
	u.events = append(u.events, event.NewEvent(eventType, data))
}

func (e *Engine) withPlanLock(
	transition string,
	planId uint,
	fn func(*unitOfWork) error,
) error {
	return e.run(transition, planId, 0, false, fn)
}

// withUserLock takes the plan lock and then the (user, plan) named lock
func (e *Engine) withUserLock(
	transition string,
	userId uint,
	planId uint,
	fn func(*unitOfWork) error,
) error {
	return e.run(transition, planId, userId, true, fn)
}

func (e *Engine) run(
	transition string,
	planId uint,
	userId uint,
	lockUser bool,
	fn func(*unitOfWork) error,
) error {
	u := &unitOfWork{now: e.now()}
	txn := e.db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		u.txn = txn
		lockStart := time.Now()
		plan, err := e.db.GetPlanForUpdate(planId, txn)
		e.metrics.planLockWait.Observe(time.Since(lockStart).Seconds())
		if err != nil {
			if errors.Is(err, models.ErrPlanNotFound) {
				return fmt.Errorf("plan %d: %w", planId, ErrInvalidPlanId)
			}
			return err
		}
		if lockUser {
			key := types.NamedLockKey(userLockScope, userId, planId)
			if err := txn.LockKey(key); err != nil {
				return fmt.Errorf("lock %s: %w", key, err)
			}
		}
		u.plan = plan
		return fn(u)
	})
	e.metrics.transitions.WithLabelValues(transition, resultLabel(err)).Inc()
	if err != nil {
		e.logger.Debug(
			"transition not applied",
			"component", "staking",
			"transition", transition,
			"plan_id", planId,
			"user_id", userId,
			"error", err,
		)
		return err
	}
	e.logger.Debug(
		"transition committed",
		"component", "staking",
		"transition", transition,
		"plan_id", planId,
		"user_id", userId,
		"amount", u.amount.String(),
	)
	if e.config.EventBus != nil {
		e.config.EventBus.Publish(
			event.TransitionEventType,
			event.NewEvent(
				event.TransitionEventType,
				event.TransitionEvent{
					Transition: transition,
					Amount:     u.amount,
					PlanID:     planId,
					UserID:     userId,
				},
			),
		)
		for _, evt := range u.events {
			e.config.EventBus.Publish(evt.Type, evt)
		}
	}
	return nil
}

// transfer calls the wallet inside the unit of work and maps a missing
// balance to ErrFailedAssetTransfer
func (e *Engine) transfer(
	u *unitOfWork,
	userId uint,
	amount decimal.Decimal,
	refModule string,
	refId uint,
	description string,
) (uint, error) {
	walletTxId, err := e.wallet.CreateAndCommitTransaction(
		u.txn,
		userId,
		u.plan.Currency(),
		amount,
		refModule,
		refId,
		description,
	)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			return 0, fmt.Errorf("%s: %w: %w", description, ErrFailedAssetTransfer, err)
		}
		return 0, fmt.Errorf("%s: %w", description, err)
	}
	return walletTxId, nil
}

func (e *Engine) transferPlanRow(
	u *unitOfWork,
	row *models.PlanTransaction,
	userId uint,
	refModule string,
	description string,
) error {
	walletTxId, err := e.transfer(u, userId, row.Amount, refModule, row.ID, description)
	if err != nil {
		return err
	}
	row.WalletTransactionID = &walletTxId
	return e.db.SetPlanTransactionWalletTx(row.ID, walletTxId, u.txn)
}

func (e *Engine) transferStakingRow(
	u *unitOfWork,
	row *models.StakingTransaction,
	amount decimal.Decimal,
	refModule string,
	description string,
) error {
	walletTxId, err := e.transfer(u, row.UserID, amount, refModule, row.ID, description)
	if err != nil {
		return err
	}
	row.WalletTransactionID = &walletTxId
	return e.db.SetStakingTransactionWalletTx(row.ID, walletTxId, u.txn)
}

func sumPlanRows(rows []models.PlanTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total
}

func sumStakingRows(rows []models.StakingTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total
}

// share returns part/whole of amount, truncated to ledger precision. A zero
// whole gives zero.
func share(amount, part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	q, _ := amount.Mul(part).QuoRem(whole, amountPlaces)
	return q
}

func parentOf(id uint) *uint {
	return &id
}
