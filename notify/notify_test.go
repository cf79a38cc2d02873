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

package notify

import (
	"testing"

	"github.com/blinklabs-io/stakeplan/notify/kafka"
	"github.com/blinklabs-io/stakeplan/notify/logsink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	n, err := New("", nil)
	require.NoError(t, err)
	assert.IsType(t, &logsink.NotifierLog{}, n)
	require.NoError(t, n.Stop())

	n, err = New("kafka", nil)
	require.NoError(t, err)
	assert.IsType(t, &kafka.NotifierKafka{}, n)
	require.NoError(t, n.Stop())

	_, err = New("carrier-pigeon", nil)
	require.ErrorContains(t, err, "unknown notifier plugin")
}
