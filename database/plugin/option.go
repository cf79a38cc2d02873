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

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = 1
	PluginOptionTypeBool   PluginOptionType = 2
	PluginOptionTypeInt    PluginOptionType = 3
	PluginOptionTypeUint   PluginOptionType = 4
)

const envVarGlobalPrefix = "STAKEPLAN"

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	// CustomEnvVar overrides the generated STAKEPLAN_<TYPE>_<PLUGIN>_<OPTION> name
	CustomEnvVar string
	Type         PluginOptionType
}

func envVarPrefix(pluginType, pluginName string) string {
	return strings.ToUpper(
		strings.ReplaceAll(
			fmt.Sprintf("%s_%s_%s_", envVarGlobalPrefix, pluginType, pluginName),
			"-",
			"_",
		),
	)
}

// AddToFlagSet registers the option as a flag named <type>-<plugin>-<option>
func (p *PluginOption) AddToFlagSet(
	fs *pflag.FlagSet,
	pluginType string,
	pluginName string,
) error {
	flagName := fmt.Sprintf("%s-%s-%s", pluginType, pluginName, p.Name)
	switch p.Type {
	case PluginOptionTypeString:
		dest, ok := p.Dest.(*string)
		if !ok {
			return fmt.Errorf("invalid destination type for option %s: expected *string", p.Name)
		}
		def, _ := p.DefaultValue.(string)
		fs.StringVar(dest, flagName, def, p.Description)
	case PluginOptionTypeBool:
		dest, ok := p.Dest.(*bool)
		if !ok {
			return fmt.Errorf("invalid destination type for option %s: expected *bool", p.Name)
		}
		def, _ := p.DefaultValue.(bool)
		fs.BoolVar(dest, flagName, def, p.Description)
	case PluginOptionTypeInt:
		dest, ok := p.Dest.(*int)
		if !ok {
			return fmt.Errorf("invalid destination type for option %s: expected *int", p.Name)
		}
		def, _ := p.DefaultValue.(int)
		fs.IntVar(dest, flagName, def, p.Description)
	case PluginOptionTypeUint:
		dest, ok := p.Dest.(*uint64)
		if !ok {
			return fmt.Errorf("invalid destination type for option %s: expected *uint64", p.Name)
		}
		def, _ := p.DefaultValue.(uint64)
		fs.Uint64Var(dest, flagName, def, p.Description)
	default:
		return fmt.Errorf("unknown plugin option type %d for option %s", p.Type, p.Name)
	}
	return nil
}

// ProcessEnvVars sets the option from its environment variable, if present
func (p *PluginOption) ProcessEnvVars(envPrefix string) error {
	envVarName := p.CustomEnvVar
	if envVarName == "" {
		envVarName = envPrefix + strings.ToUpper(strings.ReplaceAll(p.Name, "-", "_"))
	}
	value, ok := os.LookupEnv(envVarName)
	if !ok {
		return nil
	}
	if err := p.setValue(value, true); err != nil {
		return fmt.Errorf("env var %s: %w", envVarName, err)
	}
	return nil
}

// ProcessConfig sets the option from a plugin config section, if present
func (p *PluginOption) ProcessConfig(pluginData map[string]any) error {
	value, ok := pluginData[p.Name]
	if !ok {
		return nil
	}
	return p.setValue(value, true)
}

// setValue performs a type-checked assignment into Dest. With parse enabled,
// string values and numeric values decoded from YAML are converted to the
// option type.
func (p *PluginOption) setValue(value any, parse bool) error {
	if p.Dest == nil {
		return fmt.Errorf("nil destination for option %s", p.Name)
	}
	switch p.Type {
	case PluginOptionTypeString:
		dest, ok := p.Dest.(*string)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *string", p.Name)
		}
		v, ok := value.(string)
		if !ok {
			if !parse {
				return fmt.Errorf("invalid type for option %s: expected string", p.Name)
			}
			v = fmt.Sprint(value)
		}
		*dest = v
	case PluginOptionTypeBool:
		dest, ok := p.Dest.(*bool)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *bool", p.Name)
		}
		switch v := value.(type) {
		case bool:
			*dest = v
		case string:
			if !parse {
				return fmt.Errorf("invalid type for option %s: expected bool", p.Name)
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for option %s: %w", p.Name, err)
			}
			*dest = b
		default:
			return fmt.Errorf("invalid type for option %s: expected bool", p.Name)
		}
	case PluginOptionTypeInt:
		dest, ok := p.Dest.(*int)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *int", p.Name)
		}
		switch v := value.(type) {
		case int:
			*dest = v
		case string:
			if !parse {
				return fmt.Errorf("invalid type for option %s: expected int", p.Name)
			}
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for option %s: %w", p.Name, err)
			}
			*dest = i
		default:
			return fmt.Errorf("invalid type for option %s: expected int", p.Name)
		}
	case PluginOptionTypeUint:
		dest, ok := p.Dest.(*uint64)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *uint64", p.Name)
		}
		switch v := value.(type) {
		case uint64:
			*dest = v
		case int:
			if v < 0 {
				return fmt.Errorf("invalid value for option %s: negative int", p.Name)
			}
			*dest = uint64(v)
		case string:
			if !parse {
				return fmt.Errorf("invalid type for option %s: expected uint64 or int", p.Name)
			}
			u, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for option %s: %w", p.Name, err)
			}
			*dest = u
		default:
			return fmt.Errorf("invalid type for option %s: expected uint64 or int", p.Name)
		}
	default:
		return fmt.Errorf(
			"unknown plugin option type %d for option %s",
			p.Type,
			p.Name,
		)
	}
	return nil
}
