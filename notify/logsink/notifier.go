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

package logsink

import (
	"context"
	"io"
	"log/slog"

	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/staking"
)

// NotifierLog writes capacity notifications to the process log. It is the
// default when no message broker is configured.
type NotifierLog struct {
	logger *slog.Logger
	level  slog.Level
}

func NewWithOptions(opts ...LogOptionFunc) *NotifierLog {
	n := &NotifierLog{
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return n
}

func (n *NotifierLog) Start() error {
	return nil
}

func (n *NotifierLog) Stop() error {
	return nil
}

func (n *NotifierLog) NotifyCapacityIncrease(
	ctx context.Context,
	userId uint,
	plan *models.Plan,
) error {
	n.logger.Log(
		ctx,
		n.level,
		"plan has free capacity",
		"component", "notify",
		"user_id", userId,
		"plan_id", plan.ID,
		"currency", plan.Currency(),
		"free_capacity", staking.FreeCapacity(plan).String(),
	)
	return nil
}
