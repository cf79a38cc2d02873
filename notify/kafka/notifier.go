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
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/staking"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	DefaultTopic        = "stakeplan.plan-capacity"
	DefaultWriteTimeout = 10 * time.Second

	CapacityIncreasedMessageType = "plan.capacity_increased"
)

// CapacityMessage is the JSON value of every message written to the topic
type CapacityMessage struct {
	Timestamp    time.Time       `json:"timestamp"`
	Type         string          `json:"type"`
	Currency     string          `json:"currency"`
	FreeCapacity decimal.Decimal `json:"free_capacity"`
	UserID       uint            `json:"user_id"`
	PlanID       uint            `json:"plan_id"`
}

// messageWriter is the subset of kafka.Writer the notifier uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NotifierKafka publishes capacity notifications to a Kafka topic. Messages
// are keyed by user id so that a user's notifications stay ordered.
type NotifierKafka struct {
	logger       *slog.Logger
	writer       messageWriter
	nowFunc      func() time.Time
	topic        string
	clientId     string
	brokers      []string
	writeTimeout time.Duration
}

func NewWithOptions(opts ...KafkaOptionFunc) (*NotifierKafka, error) {
	n := &NotifierKafka{
		topic:        DefaultTopic,
		writeTimeout: DefaultWriteTimeout,
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if n.writer == nil && len(n.brokers) == 0 {
		return nil, errors.New("kafka notifier requires at least one broker")
	}
	if n.topic == "" {
		return nil, errors.New("kafka notifier requires a topic")
	}
	return n, nil
}

func (n *NotifierKafka) Start() error {
	if n.writer != nil {
		return nil
	}
	n.writer = &kafka.Writer{
		Addr:         kafka.TCP(n.brokers...),
		Topic:        n.topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: n.writeTimeout,
		Transport: &kafka.Transport{
			ClientID: n.clientId,
		},
	}
	n.logger.Info(
		"kafka notifier started",
		"component", "notify",
		"brokers", n.brokers,
		"topic", n.topic,
	)
	return nil
}

func (n *NotifierKafka) Stop() error {
	if n.writer == nil {
		return nil
	}
	err := n.writer.Close()
	n.writer = nil
	return err
}

func (n *NotifierKafka) NotifyCapacityIncrease(
	ctx context.Context,
	userId uint,
	plan *models.Plan,
) error {
	if n.writer == nil {
		return errors.New("kafka notifier is not started")
	}
	now := n.nowFunc()
	value, err := json.Marshal(
		CapacityMessage{
			Timestamp:    now,
			Type:         CapacityIncreasedMessageType,
			Currency:     plan.Currency(),
			FreeCapacity: staking.FreeCapacity(plan),
			UserID:       userId,
			PlanID:       plan.ID,
		},
	)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, n.writeTimeout)
	defer cancel()
	err = n.writer.WriteMessages(
		ctx,
		kafka.Message{
			Key:   []byte(strconv.FormatUint(uint64(userId), 10)),
			Value: value,
			Time:  now,
		},
	)
	if err != nil {
		return fmt.Errorf("write capacity message for user %d: %w", userId, err)
	}
	return nil
}
