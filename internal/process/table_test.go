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

package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableWith(t *testing.T, priorities map[string]int) (*Table, *fakeLauncher) {
	t.Helper()
	l := &fakeLauncher{}
	tbl := NewTable()
	for name, prio := range priorities {
		spec := testSpec(name)
		spec.Priority = prio
		tbl.Upsert(NewController(spec, l, nil))
	}
	return tbl, l
}

func namesOf(list []*Controller) []string {
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Spec().Name)
	}
	return names
}

// 数值低的优先级先启动、后停止
func TestStartAndStopOrder(t *testing.T) {
	tbl, _ := tableWith(t, map[string]int{
		"gateway": 60,
		"tws":     50,
	})

	assert.Equal(t, []string{"tws", "gateway"}, namesOf(tbl.StartOrder()))
	assert.Equal(t, []string{"gateway", "tws"}, namesOf(tbl.StopOrder()))
}

func TestOrderTiesBrokenByName(t *testing.T) {
	tbl, _ := tableWith(t, map[string]int{
		"charlie": 100,
		"alpha":   100,
		"bravo":   100,
	})
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, namesOf(tbl.StartOrder()))
}

func TestGetUnknown(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownProcess)
}

func TestUpsertReplaces(t *testing.T) {
	tbl, _ := tableWith(t, map[string]int{"tws": 50})

	replacement := NewController(testSpec("tws"), &fakeLauncher{}, nil)
	tbl.Upsert(replacement)

	got, err := tbl.Get("tws")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
	assert.Equal(t, 1, tbl.Len())
}

func TestRemove(t *testing.T) {
	tbl, _ := tableWith(t, map[string]int{"tws": 50})
	tbl.Remove("tws")
	assert.Zero(t, tbl.Len())

	// 删除不存在的名称不报错
	tbl.Remove("tws")
}

func TestAllSettled(t *testing.T) {
	tbl, _ := tableWith(t, map[string]int{"tws": 50, "mailer": 200})
	assert.True(t, tbl.AllSettled())

	c, err := tbl.Get("tws")
	require.NoError(t, err)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.Start(now))
	assert.False(t, tbl.AllSettled())

	c.HandleExit(c.Generation(), ExitStatus{Code: 0}, now)
	// Starting 期间退出进入 Backoff，仍未稳定
	assert.False(t, tbl.AllSettled())

	require.NoError(t, c.Stop(now))
	assert.True(t, tbl.AllSettled())
}
