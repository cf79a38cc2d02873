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

package sqlite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoresAreIsolated(t *testing.T) {
	a, err := New("", nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := New("", nil)
	require.NoError(t, err)
	defer b.Close()

	watch := &models.UserWatch{UserID: 1, PlanID: 2}
	require.NoError(t, a.DB().Create(watch).Error)

	var count int64
	require.NoError(t, a.DB().Model(&models.UserWatch{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, b.DB().Model(&models.UserWatch{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestMigratesAllModels(t *testing.T) {
	store, err := New("", nil)
	require.NoError(t, err)
	defer store.Close()
	for _, model := range models.MigrateModels {
		assert.True(
			t,
			store.DB().Migrator().HasTable(model),
			"missing table for %T",
			model,
		)
	}
}

func TestFileStore(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested")
	store, err := New(dataDir, nil)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dataDir, "metadata.sqlite"))
	require.NoError(t, err)

	tx := store.Transaction()
	require.NoError(t, tx.Error)
	require.NoError(t, store.LockKey(tx, "staking:1:1"))
	require.NoError(t, tx.Create(&models.WalletBalance{
		UserID:   7,
		Currency: "ETH",
		Balance:  decimal.RequireFromString("1.25"),
	}).Error)
	require.NoError(t, tx.Commit().Error)
	require.NoError(t, store.Close())

	// Reopen and read back
	store, err = New(dataDir, nil)
	require.NoError(t, err)
	defer store.Close()
	var balance models.WalletBalance
	require.NoError(t, store.DB().Where("user_id = ?", 7).First(&balance).Error)
	assert.Equal(t, "1.25", balance.Balance.String())
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store, err := New("", nil)
	require.NoError(t, err)
	defer store.Close()

	tx := store.Transaction()
	require.NoError(t, tx.Create(&models.PlanTransaction{
		PlanID:    1,
		Tp:        models.PlanTransactionTypeStake,
		Amount:    decimal.NewFromInt(5),
		CreatedAt: time.Now().UTC(),
	}).Error)
	require.NoError(t, tx.Rollback().Error)

	var count int64
	require.NoError(t, store.DB().Model(&models.PlanTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCloseIsIdempotent(t *testing.T) {
	store, err := New("", nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Stop())
}
