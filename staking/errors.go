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

import "errors"

// Conditions returned by engine operations. Callers classify them with
// errors.Is; every one of them leaves the ledger unchanged.
var (
	ErrInvalidPlanId          = errors.New("invalid plan id")
	ErrTooSoon                = errors.New("too soon")
	ErrTooLate                = errors.New("too late")
	ErrLowPlanCapacity        = errors.New("low plan capacity")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrAlreadyCreated         = errors.New("already created")
	ErrParentIsNotCreated     = errors.New("parent is not created")
	ErrNonExtendablePlan      = errors.New("non extendable plan")
	ErrNotInstantlyUnstakable = errors.New("plan is not instantly unstakable")
	ErrFailedAssetTransfer    = errors.New("failed asset transfer")
	ErrAdminMistake           = errors.New("admin mistake")
)

// IsIdempotencyError reports whether err means the transition either already
// ran or cannot run yet. Schedulers treat these as routine.
func IsIdempotencyError(err error) bool {
	return errors.Is(err, ErrAlreadyCreated) ||
		errors.Is(err, ErrParentIsNotCreated) ||
		errors.Is(err, ErrTooSoon)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyCreated):
		return "already_created"
	case errors.Is(err, ErrParentIsNotCreated):
		return "parent_missing"
	case errors.Is(err, ErrTooSoon):
		return "too_soon"
	case errors.Is(err, ErrTooLate):
		return "too_late"
	default:
		return "error"
	}
}
