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

package metadata

import (
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/stakeplan/database/plugin"
	"github.com/blinklabs-io/stakeplan/database/plugin/metadata/mysql"
	"github.com/blinklabs-io/stakeplan/database/plugin/metadata/postgres"
	"github.com/blinklabs-io/stakeplan/database/plugin/metadata/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type MetadataStore interface {
	plugin.Plugin

	// Database
	AutoMigrate(...any) error
	Close() error
	DB() *gorm.DB
	Transaction() *gorm.DB

	// LockKey takes a named lock held until the given transaction ends
	LockKey(*gorm.DB, string) error
}

// New creates and starts the named metadata store. The sqlite store takes its
// data directory from the caller, while the server-backed stores read their
// connection settings from the plugin options.
func New(
	pluginName, dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	var p plugin.Plugin
	switch pluginName {
	case "", "sqlite":
		return sqlite.New(dataDir, logger)
	case "postgres":
		p = postgres.NewFromCmdlineOptions(
			postgres.WithLogger(logger),
			postgres.WithPromRegistry(promRegistry),
		)
	case "mysql":
		p = mysql.NewFromCmdlineOptions(
			mysql.WithLogger(logger),
			mysql.WithPromRegistry(promRegistry),
		)
	default:
		return nil, fmt.Errorf("unknown metadata plugin: %s", pluginName)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start metadata plugin '%s': %w",
			pluginName,
			err,
		)
	}
	store, ok := p.(MetadataStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin %q does not implement a metadata store",
			pluginName,
		)
	}
	return store, nil
}

// Compile-time interface checks
var (
	_ MetadataStore = (*sqlite.MetadataStoreSqlite)(nil)
	_ MetadataStore = (*postgres.MetadataStorePostgres)(nil)
	_ MetadataStore = (*mysql.MetadataStoreMysql)(nil)
)
