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

import "fmt"

type PlatformType uint8

const (
	PlatformTypeStaking       PlatformType = 1
	PlatformTypeYieldFarming  PlatformType = 2
	PlatformTypeMarginLending PlatformType = 3
	PlatformTypeLiquidityPool PlatformType = 4
	platformTypeMax                        = PlatformTypeLiquidityPool
)

func (t PlatformType) String() string {
	switch t {
	case PlatformTypeStaking:
		return "staking"
	case PlatformTypeYieldFarming:
		return "yield_farming"
	case PlatformTypeMarginLending:
		return "margin_lending"
	case PlatformTypeLiquidityPool:
		return "liquidity_pool"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the known platform kinds
func (t PlatformType) Valid() bool {
	return t >= PlatformTypeStaking && t <= platformTypeMax
}

// ExternalEarningPlatform describes where the capital of a plan is deployed.
type ExternalEarningPlatform struct {
	Currency    string       `gorm:"size:32;not null;index"`
	Network     string       `gorm:"size:64"`
	Address     string       `gorm:"size:255"`
	ID          uint         `gorm:"primarykey"`
	Tp          PlatformType `gorm:"not null;index"`
	IsAvailable bool
}

func (ExternalEarningPlatform) TableName() string {
	return "external_earning_platform"
}
