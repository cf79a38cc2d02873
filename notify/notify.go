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

// Package notify builds the notifier that tells watching users about free
// plan capacity. Notifiers are plugins so that the transport can be chosen
// in configuration.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/stakeplan/database/plugin"
	"github.com/blinklabs-io/stakeplan/notify/kafka"
	"github.com/blinklabs-io/stakeplan/notify/logsink"
	"github.com/blinklabs-io/stakeplan/staking"
)

const DefaultNotifierPlugin = "log"

type Notifier interface {
	plugin.Plugin
	staking.Notifier
}

// New creates and starts the named notifier
func New(pluginName string, logger *slog.Logger) (Notifier, error) {
	var p plugin.Plugin
	switch pluginName {
	case "", "log":
		p = logsink.NewFromCmdlineOptions(logsink.WithLogger(logger))
	case "kafka":
		p = kafka.NewFromCmdlineOptions(kafka.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown notifier plugin: %s", pluginName)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start notifier plugin '%s': %w",
			pluginName,
			err,
		)
	}
	n, ok := p.(Notifier)
	if !ok {
		return nil, fmt.Errorf("plugin %q does not implement a notifier", pluginName)
	}
	return n, nil
}

// Compile-time interface checks
var (
	_ Notifier = (*logsink.NotifierLog)(nil)
	_ Notifier = (*kafka.NotifierKafka)(nil)
)
