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

package event

import (
	"github.com/shopspring/decimal"
)

const (
	// TransitionEventType is published after a ledger transition commits
	TransitionEventType = EventType("staking.transition")

	// CapacityIncreasedEventType is published when capacity is handed back
	// to a plan that still accepts requests
	CapacityIncreasedEventType = EventType("staking.capacity_increased")
)

// TransitionEvent describes a committed plan or per-user transition. UserID
// is zero for plan-level transitions.
type TransitionEvent struct {
	Transition string
	Amount     decimal.Decimal
	PlanID     uint
	UserID     uint
}

// CapacityIncreasedEvent carries the free capacity of a plan after a
// request was cancelled, rejected or unstaked early
type CapacityIncreasedEvent struct {
	FreeCapacity decimal.Decimal
	PlanID       uint
}
