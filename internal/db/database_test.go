/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sdoof/capsule/internal/config"
)

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	gdb, err := Open(config.HistoryConfig{Enabled: true, Type: "sqlite", Path: path})
	require.NoError(t, err)
	defer Close(gdb)

	// 目录与数据库文件都应已创建
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenSQLiteIsUsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	gdb, err := Open(config.HistoryConfig{Enabled: true, Type: "sqlite", Path: path})
	require.NoError(t, err)
	defer Close(gdb)

	var one int
	require.NoError(t, gdb.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(config.HistoryConfig{Enabled: true, Type: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
