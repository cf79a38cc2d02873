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
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dataDir := filepath.Join(t.TempDir(), "ledger")
	m, err := NewWithOptions(WithDataDir(dataDir), WithLogger(logger))
	require.NoError(t, err)
	assert.Equal(t, dataDir, m.dataDir)
	assert.Same(t, logger, m.logger)
}

func TestNewWithOptionsDefaultLogger(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.NotNil(t, m.logger)
	assert.Empty(t, m.dataDir)
}
