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

package event_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/blinklabs-io/stakeplan/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEventBusSingleSubscriber(t *testing.T) {
	testEvtType := event.TransitionEventType
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(testEvtType)
	eb.Publish(
		testEvtType,
		event.NewEvent(testEvtType, event.TransitionEvent{
			Transition: "stake_assets",
			PlanID:     4,
			Amount:     decimal.NewFromInt(123),
		}),
	)
	select {
	case evt, ok := <-subCh:
		require.True(t, ok, "event channel closed unexpectedly")
		data, ok := evt.Data.(event.TransitionEvent)
		require.True(t, ok, "unexpected event data type %T", evt.Data)
		assert.Equal(t, "stake_assets", data.Transition)
		assert.Equal(t, uint(4), data.PlanID)
		assert.Equal(t, "123", data.Amount.String())
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for event")
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	testEvtType := event.CapacityIncreasedEventType
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, sub1Ch := eb.Subscribe(testEvtType)
	_, sub2Ch := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, event.CapacityIncreasedEvent{PlanID: 9}))
	for _, ch := range []<-chan event.Event{sub1Ch, sub2Ch} {
		select {
		case evt := <-ch:
			assert.Equal(t, uint(9), evt.Data.(event.CapacityIncreasedEvent).PlanID)
		case <-time.After(1 * time.Second):
			t.Fatalf("timeout waiting for event")
		}
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	testEvtType := event.EventType("test.event")
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	subId, subCh := eb.Subscribe(testEvtType)
	eb.Unsubscribe(testEvtType, subId)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	select {
	case _, ok := <-subCh:
		assert.False(t, ok, "received unexpected event")
	case <-time.After(1 * time.Second):
		t.Fatalf("subscriber channel was not closed after Unsubscribe")
	}
}

func TestEventBusStop(t *testing.T) {
	testEvtType := event.EventType("test.event")
	eb := event.NewEventBus(nil, nil)
	_, subCh := eb.Subscribe(testEvtType)
	var handled atomic.Int32
	eb.SubscribeFunc(testEvtType, func(event.Event) {
		handled.Add(1)
	})
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	require.Eventually(t, func() bool {
		return handled.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	eb.Stop()
	// Buffered event is still readable, then the channel is closed
	_, ok := <-subCh
	assert.True(t, ok)
	_, ok = <-subCh
	assert.False(t, ok)

	// A stopped bus refuses new work
	subId, closedCh := eb.Subscribe(testEvtType)
	assert.Equal(t, event.EventSubscriberId(0), subId)
	_, ok = <-closedCh
	assert.False(t, ok)
	assert.Equal(t, event.EventSubscriberId(0), eb.SubscribeFunc(testEvtType, func(event.Event) {}))
	assert.False(t, eb.PublishAsync(testEvtType, event.NewEvent(testEvtType, 2)))
	// Stopping twice is harmless
	eb.Stop()
}

func TestPublishAsync(t *testing.T) {
	testEvtType := event.EventType("test.async")
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(testEvtType)
	require.True(t, eb.PublishAsync(testEvtType, event.NewEvent(testEvtType, "x")))
	select {
	case evt := <-subCh:
		assert.Equal(t, "x", evt.Data)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for async event")
	}
}

func TestSubscribeFuncPanicRecovery(t *testing.T) {
	testEvtType := event.EventType("test.panic")
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()

	var received atomic.Int32
	eb.SubscribeFunc(testEvtType, func(evt event.Event) {
		if received.Add(1) == 1 {
			panic("intentional test panic")
		}
	})
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "panic"))
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "after-panic"))

	require.Eventually(t, func() bool {
		return received.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond,
		"handler should continue processing events after a panic",
	)
}

func TestEventBusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	testEvtType := event.TransitionEventType
	eb := event.NewEventBus(reg, nil)
	defer eb.Stop()
	_, _ = eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, nil))
	eb.Publish(testEvtType, event.NewEvent(testEvtType, nil))

	count, err := testutil.GatherAndCount(reg, "stakeplan_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = testutil.GatherAndCount(reg, "stakeplan_event_subscribers")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
