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

package types

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNilTxn is returned when a nil transaction is provided where a valid transaction is required
var ErrNilTxn = errors.New("nil transaction")

// ErrNoStoreAvailable is returned when no metadata store is available
var ErrNoStoreAvailable = errors.New("no store available")

// ErrTxnFinished is returned when a finished transaction is used again
var ErrTxnFinished = errors.New("transaction already finished")

// Txn is a simple transaction handle for commit/rollback only.
// Database layer (Txn) owns the unit of work built on top of it.
type Txn interface {
	Commit() error
	Rollback() error
}

// NamedLockKey builds the key for an explicit named lock from a scope and
// a list of ids, e.g. "staking:12:7"
func NamedLockKey(scope string, ids ...uint) string {
	var sb strings.Builder
	sb.WriteString(scope)
	for _, id := range ids {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return sb.String()
}
