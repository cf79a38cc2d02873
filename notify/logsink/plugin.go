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
	"log/slog"
	"sync"

	"github.com/blinklabs-io/stakeplan/database/plugin"
)

var (
	cmdlineOptions struct {
		level string
	}
	cmdlineOptionsMutex sync.RWMutex
)

func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.level = "info"
}

// Register plugin
func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeNotifier,
			Name:               "log",
			Description:        "Write capacity notifications to the log",
			NewFromOptionsFunc: func() plugin.Plugin { return NewFromCmdlineOptions() },
			Options: []plugin.PluginOption{
				{
					Name:         "level",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Log level of notifications (debug, info, warn)",
					DefaultValue: "info",
					Dest:         &(cmdlineOptions.level),
				},
			},
		},
	)
}

// NewFromCmdlineOptions creates a notifier from the registered plugin
// options. Extra options are applied after them.
func NewFromCmdlineOptions(extra ...LogOptionFunc) plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	levelName := cmdlineOptions.level
	cmdlineOptionsMutex.RUnlock()

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return plugin.NewErrorPlugin(err)
	}
	opts := append([]LogOptionFunc{WithLevel(level)}, extra...)
	return NewWithOptions(opts...)
}
