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
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrPlanNotFound = errors.New("plan not found")

// Plan is a time-boxed pool of user capital deployed into one external
// earning platform. Capacity columns are only moved by the staking engine
// while the plan row is locked.
type Plan struct {
	AnnouncedAt      time.Time               `gorm:"precision:6;not null"`
	OpenedAt         time.Time               `gorm:"precision:6;index;not null"`
	StakedAt         time.Time               `gorm:"precision:6;index;not null"`
	ExtendedFromID   *uint                   `gorm:"index"`
	ExternalPlatform ExternalEarningPlatform `gorm:"foreignKey:ExternalPlatformID"`

	// Capacity
	TotalCapacity     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	FilledByExtension decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	FilledCapacity    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ReleasedCapacity  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ExtendedCapacity  decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	// Config
	Fee                 decimal.Decimal `gorm:"type:numeric(9,8);not null"`
	EstimatedAnnualRate decimal.Decimal `gorm:"type:numeric(6,4);not null"`
	InitialPoolCapacity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	MinStakingAmount    decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	StakingPrecision    decimal.Decimal `gorm:"type:numeric(12,10);not null"`

	// Schedule
	RequestPeriod            time.Duration `gorm:"not null"`
	StakingPeriod            time.Duration `gorm:"not null"`
	UnstakingPeriod          time.Duration `gorm:"not null"`
	RewardAnnouncementPeriod time.Duration `gorm:"not null"`

	ID                    uint `gorm:"primarykey"`
	ExternalPlatformID    uint `gorm:"index;not null"`
	IsExtendable          bool
	IsInstantlyUnstakable bool
}

func (Plan) TableName() string {
	return "plan"
}

// RequestClosesAt returns the end of the window in which users may request
// participation
func (p *Plan) RequestClosesAt() time.Time {
	return p.OpenedAt.Add(p.RequestPeriod)
}

// StakingEndsAt returns the time after which assets are unstaked at the
// external platform
func (p *Plan) StakingEndsAt() time.Time {
	return p.StakedAt.Add(p.StakingPeriod)
}

// UnstakingEndsAt returns the deadline for releasing unstaked assets
func (p *Plan) UnstakingEndsAt() time.Time {
	return p.StakingEndsAt().Add(p.UnstakingPeriod)
}

// IsRequestable reports whether the plan accepts new requests at the given time
func (p *Plan) IsRequestable(now time.Time) bool {
	return p.OpenedAt.Before(now) && now.Before(p.RequestClosesAt())
}

// Currency returns the currency of the external platform. The platform
// association must be loaded.
func (p *Plan) Currency() string {
	return p.ExternalPlatform.Currency
}
