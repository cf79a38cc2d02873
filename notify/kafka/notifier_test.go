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

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/database/plugin"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
	deadline bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testPlan() *models.Plan {
	return &models.Plan{
		ID:             9,
		TotalCapacity:  decimal.NewFromInt(1000),
		FilledCapacity: decimal.NewFromInt(970),
		ExternalPlatform: models.ExternalEarningPlatform{
			Currency: "ADA",
		},
	}
}

func TestNotifyCapacityIncrease(t *testing.T) {
	writer := &fakeWriter{}
	now := time.Date(2025, time.May, 4, 10, 0, 0, 0, time.UTC)
	n, err := NewWithOptions(
		withWriter(writer),
		WithNowFunc(func() time.Time { return now }),
	)
	require.NoError(t, err)
	require.NoError(t, n.Start())

	require.NoError(t, n.NotifyCapacityIncrease(context.Background(), 42, testPlan()))
	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.True(t, now.Equal(msg.Time))
	assert.True(t, writer.deadline)

	var payload CapacityMessage
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, CapacityIncreasedMessageType, payload.Type)
	assert.Equal(t, uint(42), payload.UserID)
	assert.Equal(t, uint(9), payload.PlanID)
	assert.Equal(t, "ADA", payload.Currency)
	assert.Equal(t, "30", payload.FreeCapacity.String())
	assert.True(t, now.Equal(payload.Timestamp))

	require.NoError(t, n.Stop())
	assert.True(t, writer.closed)
	require.Error(t, n.NotifyCapacityIncrease(context.Background(), 42, testPlan()))
}

func TestNotifyCapacityIncreaseWriteError(t *testing.T) {
	writeErr := errors.New("leader not available")
	n, err := NewWithOptions(withWriter(&fakeWriter{err: writeErr}))
	require.NoError(t, err)
	require.NoError(t, n.Start())
	require.ErrorIs(t, n.NotifyCapacityIncrease(context.Background(), 1, testPlan()), writeErr)
}

func TestOptions(t *testing.T) {
	n, err := NewWithOptions(
		WithBrokers("k1:9092", "k2:9092"),
		WithTopic("capacity"),
		WithClientId("node-1"),
		WithWriteTimeout(3*time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, n.brokers)
	assert.Equal(t, "capacity", n.topic)
	assert.Equal(t, "node-1", n.clientId)
	assert.Equal(t, 3*time.Second, n.writeTimeout)

	_, err = NewWithOptions()
	require.Error(t, err)
	_, err = NewWithOptions(WithBrokers("k1:9092"), WithTopic(""))
	require.Error(t, err)
}

func TestNewFromCmdlineOptions(t *testing.T) {
	t.Cleanup(initCmdlineOptions)
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeNotifier, "kafka", "brokers", " k1:9092, ,k2:9092"))
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeNotifier, "kafka", "write-timeout", uint64(2)))
	n, ok := NewFromCmdlineOptions().(*NotifierKafka)
	require.True(t, ok)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, n.brokers)
	assert.Equal(t, DefaultTopic, n.topic)
	assert.Equal(t, 2*time.Second, n.writeTimeout)

	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeNotifier, "kafka", "brokers", ""))
	require.Error(t, NewFromCmdlineOptions().Start())
}
