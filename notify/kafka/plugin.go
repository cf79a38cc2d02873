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
	"strings"
	"sync"
	"time"

	"github.com/blinklabs-io/stakeplan/database/plugin"
)

var (
	cmdlineOptions struct {
		brokers      string
		topic        string
		clientId     string
		writeTimeout uint64
	}
	cmdlineOptionsMutex sync.RWMutex
)

func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.brokers = "localhost:9092"
	cmdlineOptions.topic = DefaultTopic
	cmdlineOptions.clientId = "stakeplan"
	cmdlineOptions.writeTimeout = uint64(DefaultWriteTimeout / time.Second)
}

// Register plugin
func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeNotifier,
			Name:               "kafka",
			Description:        "Publish capacity notifications to Kafka",
			NewFromOptionsFunc: func() plugin.Plugin { return NewFromCmdlineOptions() },
			Options: []plugin.PluginOption{
				{
					Name:         "brokers",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Comma separated list of bootstrap brokers",
					DefaultValue: "localhost:9092",
					CustomEnvVar: "KAFKA_BROKERS",
					Dest:         &(cmdlineOptions.brokers),
				},
				{
					Name:         "topic",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Topic capacity notifications are written to",
					DefaultValue: DefaultTopic,
					Dest:         &(cmdlineOptions.topic),
				},
				{
					Name:         "client-id",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Client id reported to the brokers",
					DefaultValue: "stakeplan",
					Dest:         &(cmdlineOptions.clientId),
				},
				{
					Name:         "write-timeout",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Timeout in seconds for a single notification",
					DefaultValue: uint64(DefaultWriteTimeout / time.Second),
					Dest:         &(cmdlineOptions.writeTimeout),
				},
			},
		},
	)
}

// NewFromCmdlineOptions creates a notifier from the registered plugin
// options. Extra options are applied after them.
func NewFromCmdlineOptions(extra ...KafkaOptionFunc) plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	brokers := splitBrokers(cmdlineOptions.brokers)
	topic := cmdlineOptions.topic
	clientId := cmdlineOptions.clientId
	writeTimeout := time.Duration(cmdlineOptions.writeTimeout) * time.Second
	cmdlineOptionsMutex.RUnlock()

	opts := []KafkaOptionFunc{
		WithBrokers(brokers...),
		WithTopic(topic),
		WithClientId(clientId),
		WithWriteTimeout(writeTimeout),
	}
	opts = append(opts, extra...)
	p, err := NewWithOptions(opts...)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}

func splitBrokers(value string) []string {
	var ret []string
	for _, broker := range strings.Split(value, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			ret = append(ret, broker)
		}
	}
	return ret
}
