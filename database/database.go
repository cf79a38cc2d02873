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

package database

import (
	"errors"
	"io"
	"log/slog"

	"github.com/blinklabs-io/stakeplan/database/plugin/metadata"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultMetadataPlugin = "sqlite"

// Config holds the settings used to open a Database
type Config struct {
	PromRegistry   prometheus.Registerer
	Logger         *slog.Logger
	DataDir        string
	MetadataPlugin string
}

type Database struct {
	logger   *slog.Logger
	metadata metadata.MetadataStore
	config   *Config
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.config.DataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	return err
}

func (d *Database) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return nil
}

// New creates a new database instance with optional persistence using the
// provided data directory. An empty data directory with the sqlite plugin
// gives an in-memory database.
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	if config.MetadataPlugin == "" {
		config.MetadataPlugin = DefaultMetadataPlugin
	}
	db := &Database{
		logger: config.Logger,
		config: config,
	}
	if err := db.init(); err != nil {
		return nil, err
	}
	metadataDb, err := metadata.New(
		config.MetadataPlugin,
		config.DataDir,
		db.logger,
		config.PromRegistry,
	)
	if err != nil {
		return nil, err
	}
	db.metadata = metadataDb
	return db, nil
}
