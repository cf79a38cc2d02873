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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/database/plugin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyCapacityIncrease(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	n := NewWithOptions(WithLogger(logger), WithLevel(slog.LevelWarn))
	require.NoError(t, n.Start())
	plan := &models.Plan{
		ID:             4,
		TotalCapacity:  decimal.NewFromInt(100),
		FilledCapacity: decimal.RequireFromString("62.5"),
		ExternalPlatform: models.ExternalEarningPlatform{
			Currency: "ADA",
		},
	}
	require.NoError(t, n.NotifyCapacityIncrease(context.Background(), 12, plan))
	require.NoError(t, n.Stop())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "notify", line["component"])
	assert.InDelta(t, 12, line["user_id"], 0)
	assert.InDelta(t, 4, line["plan_id"], 0)
	assert.Equal(t, "ADA", line["currency"])
	assert.Equal(t, "37.5", line["free_capacity"])
}

func TestPluginLevelOption(t *testing.T) {
	t.Cleanup(initCmdlineOptions)
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeNotifier, "log", "level", "debug"))
	p, ok := NewFromCmdlineOptions().(*NotifierLog)
	require.True(t, ok)
	assert.Equal(t, slog.LevelDebug, p.level)

	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeNotifier, "log", "level", "loud"))
	require.Error(t, NewFromCmdlineOptions().Start())
}
