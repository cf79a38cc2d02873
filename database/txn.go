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
	"fmt"
	"sync"

	"github.com/blinklabs-io/stakeplan/database/types"
	"gorm.io/gorm"
)

// Txn is the atomic unit of work used by every ledger operation. All reads
// and writes made through Metadata() commit or roll back together.
type Txn struct {
	db          *Database
	metadataTxn *gorm.DB
	lock        sync.Mutex
	finished    bool
	readWrite   bool
}

func NewTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if ms := db.Metadata(); ms != nil {
		t.metadataTxn = ms.Transaction()
		if t.metadataTxn != nil && t.metadataTxn.Error != nil {
			db.logger.Error(
				"failed to begin transaction",
				"error", t.metadataTxn.Error,
			)
		}
	}
	return t
}

func (t *Txn) DB() *Database {
	return t.db
}

// Metadata returns the underlying gorm transaction handle
func (t *Txn) Metadata() *gorm.DB {
	return t.metadataTxn
}

// LockKey takes a named lock that is held until the transaction ends
func (t *Txn) LockKey(key string) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.db.Metadata().LockKey(t.metadataTxn, key)
}

func (t *Txn) check() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return types.ErrTxnFinished
	}
	if t.metadataTxn == nil {
		return types.ErrNoStoreAvailable
	}
	return t.metadataTxn.Error
}

// Do executes the specified function in the context of the transaction. Any errors returned will result
// in the transaction being rolled back
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := fn(t); err != nil {
		if err2 := t.Rollback(); err2 != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				err2,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return nil
	}
	if t.metadataTxn == nil {
		t.finished = true
		return types.ErrNoStoreAvailable
	}
	// No need to commit for read-only, but we do want to free up resources
	if !t.readWrite {
		return t.rollback()
	}
	if result := t.metadataTxn.Commit(); result.Error != nil {
		_ = t.metadataTxn.Rollback()
		t.finished = true
		return result.Error
	}
	t.finished = true
	return nil
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	var errs []error
	if t.metadataTxn != nil && t.metadataTxn.Error == nil {
		if result := t.metadataTxn.Rollback(); result.Error != nil {
			errs = append(errs, fmt.Errorf("metadata rollback: %w", result.Error))
		}
	}
	t.finished = true
	return errors.Join(errs...)
}

// Release releases transaction resources. For read-write transactions, this
// is equivalent to Rollback. Use this in defer statements for clean resource
// cleanup. Errors are logged but not returned, making this safe for deferred
// calls.
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}

var _ types.Txn = (*Txn)(nil)
