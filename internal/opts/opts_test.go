/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package opts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults_Values(t *testing.T) {
	o := GetDefaultOptions()
	require.Equal(t, 128, o.RegisterBudget)
	require.Equal(t, 158, o.SinkThreshold())
	require.Equal(t, 118, o.TargetPressure())
	require.Equal(t, 143, o.RollbackThreshold())
	require.True(t, o.EnableGeneralSinking)
	require.False(t, o.ForceRollback)
	require.Nil(t, o.Trace)
}

func TestDefaults_ParseOrDefault(t *testing.T) {
	t.Setenv("CODESINK_TEST_INT", "")
	require.Equal(t, 7, parseOrDefault("CODESINK_TEST_INT", 7, 0))
	t.Setenv("CODESINK_TEST_INT", "0x10")
	require.Equal(t, 16, parseOrDefault("CODESINK_TEST_INT", 7, 0))
	t.Setenv("CODESINK_TEST_INT", "nope")
	require.Panics(t, func() { parseOrDefault("CODESINK_TEST_INT", 7, 0) })
	t.Setenv("CODESINK_TEST_INT", "1")
	require.Panics(t, func() { parseOrDefault("CODESINK_TEST_INT", 7, 2) })
}

func TestDefaults_ParseBoolOrDefault(t *testing.T) {
	t.Setenv("CODESINK_TEST_BOOL", "")
	require.True(t, parseBoolOrDefault("CODESINK_TEST_BOOL", true))
	t.Setenv("CODESINK_TEST_BOOL", "false")
	require.False(t, parseBoolOrDefault("CODESINK_TEST_BOOL", true))
	t.Setenv("CODESINK_TEST_BOOL", "maybe")
	require.Panics(t, func() { parseBoolOrDefault("CODESINK_TEST_BOOL", true) })
}
