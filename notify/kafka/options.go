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
	"log/slog"
	"time"
)

type KafkaOptionFunc func(*NotifierKafka)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) KafkaOptionFunc {
	return func(n *NotifierKafka) {
		n.logger = logger
	}
}

// WithBrokers specifies the bootstrap brokers
func WithBrokers(brokers ...string) KafkaOptionFunc {
	return func(n *NotifierKafka) {
		n.brokers = brokers
	}
}

// WithTopic specifies the topic messages are written to
func WithTopic(topic string) KafkaOptionFunc {
	return func(n *NotifierKafka) {
		n.topic = topic
	}
}

// WithClientId specifies the client id reported to the brokers
func WithClientId(clientId string) KafkaOptionFunc {
	return func(n *NotifierKafka) {
		n.clientId = clientId
	}
}

// WithWriteTimeout specifies how long a single notification may take
func WithWriteTimeout(timeout time.Duration) KafkaOptionFunc {
	return func(n *NotifierKafka) {
		n.writeTimeout = timeout
	}
}

// WithNowFunc specifies the clock used for message timestamps
func WithNowFunc(nowFunc func() time.Time) KafkaOptionFunc {
	return func(n *NotifierKafka) {
		n.nowFunc = nowFunc
	}
}

func withWriter(writer messageWriter) KafkaOptionFunc {
	return func(n *NotifierKafka) {
		n.writer = writer
	}
}
