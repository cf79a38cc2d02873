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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/stakeplan/database/plugin"
	"github.com/blinklabs-io/stakeplan/scheduler"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "stakeplan.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultMetadataPlugin = "sqlite"
	DefaultNotifierPlugin = "log"
)

// tempConfig picks the plugin sections out of the config file
type tempConfig struct {
	Config   yaml.Node      `yaml:"config,omitempty"`
	Database *pluginSection `yaml:"database,omitempty"`
	Notifier map[string]any `yaml:"notifier,omitempty"`
}

type pluginSection struct {
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// CollectorsConfig holds the system accounts that take part in every
// plan's money flow. Accounts listed in Overdraft may go below zero; all
// others fail transfers they cannot cover.
type CollectorsConfig struct {
	Overdraft []uint `yaml:"overdraft"`
	Asset     uint   `yaml:"asset"`
	Fee       uint   `yaml:"fee"`
	Reward    uint   `yaml:"reward"`
}

type Config struct {
	Schedule        scheduler.Schedule `yaml:"schedule"`
	MetadataPlugin  string             `yaml:"metadataPlugin"  envconfig:"STAKEPLAN_DATABASE_METADATA_PLUGIN"`
	NotifierPlugin  string             `yaml:"notifierPlugin"  envconfig:"STAKEPLAN_NOTIFIER_PLUGIN"`
	DatabasePath    string             `yaml:"databasePath"                                                  split_words:"true"`
	BindAddr        string             `yaml:"bindAddr"                                                      split_words:"true"`
	ShutdownTimeout string             `yaml:"shutdownTimeout"                                               split_words:"true"`
	Collectors      CollectorsConfig   `yaml:"collectors"`
	MetricsPort     uint               `yaml:"metricsPort"                                                   split_words:"true"`
	// User give_reward rows are unique per (user, plan) from this plan id on
	GiveRewardUniqueFromPlanId uint `yaml:"giveRewardUniqueFromPlanId" split_words:"true"`
	Tracing                    bool `yaml:"tracing"`
	TracingStdout              bool `yaml:"tracingStdout"                split_words:"true"`
}

// ShutdownTimeoutDuration parses the shutdown timeout, falling back to the
// default for empty values
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	value := c.ShutdownTimeout
	if value == "" {
		value = DefaultShutdownTimeout
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout %q: %w", c.ShutdownTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid shutdownTimeout %q: must be positive", c.ShutdownTimeout)
	}
	return d, nil
}

// Validate checks values that cannot be checked by the parsers
func (c *Config) Validate() error {
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	col := c.Collectors
	if col.Asset == 0 || col.Fee == 0 || col.Reward == 0 {
		return errors.New("collector accounts must be set")
	}
	if col.Asset == col.Fee || col.Asset == col.Reward || col.Fee == col.Reward {
		return errors.New("collector accounts must be distinct")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		BindAddr:        "0.0.0.0",
		DatabasePath:    ".stakeplan",
		MetricsPort:     12799,
		MetadataPlugin:  DefaultMetadataPlugin,
		NotifierPlugin:  DefaultNotifierPlugin,
		ShutdownTimeout: DefaultShutdownTimeout,
		Collectors: CollectorsConfig{
			Asset:  1,
			Fee:    2,
			Reward: 3,
		},
		Schedule: scheduler.Schedule{
			Enabled: true,
		},
	}
}

var globalConfig = defaultConfig()

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.stakeplan/stakeplan.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".stakeplan", "stakeplan.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/stakeplan/stakeplan.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/stakeplan/stakeplan.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	err := envconfig.Process("stakeplan", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

func loadConfigFile(configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	// If config section exists, use it for main config. Decoding the node
	// only sets the keys present in the file, so defaults survive.
	if !tempCfg.Config.IsZero() {
		if err := tempCfg.Config.Decode(globalConfig); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Process plugin configurations
	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Database != nil && tempCfg.Database.Metadata != nil {
		name, options := splitPluginSection("metadata", tempCfg.Database.Metadata)
		if name != "" {
			globalConfig.MetadataPlugin = name
		}
		pluginConfig["metadata"] = options
	}
	if tempCfg.Notifier != nil {
		name, options := splitPluginSection("notifier", tempCfg.Notifier)
		if name != "" {
			globalConfig.NotifierPlugin = name
		}
		pluginConfig["notifier"] = options
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf(
				"error processing plugin config: %w",
				err,
			)
		}
	}
	return nil
}

// splitPluginSection separates the selected plugin name from the per-plugin
// option maps of a config section
func splitPluginSection(
	section string,
	data map[string]any,
) (string, map[string]map[string]any) {
	var pluginName string
	if pluginVal, exists := data["plugin"]; exists {
		if name, ok := pluginVal.(string); ok {
			pluginName = name
		}
	}
	ret := make(map[string]map[string]any)
	for k, v := range data {
		if k == "plugin" {
			continue
		}
		if val, ok := v.(map[string]any); ok {
			ret[k] = val
		} else if val, ok := v.(map[any]any); ok {
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			ret[k] = stringAnyMap
		} else {
			// Log skipped non-map config entries
			fmt.Fprintf(os.Stderr, "warning: skipping %s config entry %q: expected map, got %T\n", section, k, v)
		}
	}
	return pluginName, ret
}

func GetConfig() *Config {
	return globalConfig
}
