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

// Package api defines the wire types shared between the capsuled control
// server and the capsulectl client.
// api 包定义 capsuled 控制服务端与 capsulectl 客户端共享的传输类型。
package api

import (
	"time"

	"github.com/Sdoof/capsule/internal/process"
)

// ProcessView is the external representation of one supervised process.
// ProcessView 是单个受监管进程的对外表示。
type ProcessView struct {
	Name          string  `json:"name"`
	State         string  `json:"state"`
	Pid           int     `json:"pid,omitempty"`
	Priority      int     `json:"priority"`
	StartedAt     string  `json:"started_at,omitempty"`
	UptimeSeconds int64   `json:"uptime_seconds,omitempty"`
	Failures      int     `json:"failures,omitempty"`
	LastExit      string  `json:"last_exit,omitempty"`
	LastError     string  `json:"last_error,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	MemoryBytes   int64   `json:"memory_bytes,omitempty"`
}

// ViewFromStatus converts a supervisor snapshot into its wire form.
// ViewFromStatus 将监管器快照转换为传输形式。
func ViewFromStatus(st process.Status) *ProcessView {
	v := &ProcessView{
		Name:        st.Name,
		State:       string(st.State),
		Pid:         st.Pid,
		Priority:    st.Priority,
		Failures:    st.Failures,
		LastExit:    st.LastExit,
		LastError:   st.LastError,
		CPUPercent:  st.CPUPercent,
		MemoryBytes: st.MemoryBytes,
	}
	if !st.StartedAt.IsZero() {
		v.StartedAt = st.StartedAt.Format(time.RFC3339)
		v.UptimeSeconds = int64(st.Uptime.Seconds())
	}
	return v
}

// HistoryEntry is the external representation of one recorded transition.
// HistoryEntry 是单条已记录状态转换的对外表示。
type HistoryEntry struct {
	EventID string    `json:"event_id"`
	Process string    `json:"process"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Pid     int       `json:"pid,omitempty"`
	Exit    string    `json:"exit,omitempty"`
	At      time.Time `json:"at"`
}

// ReloadSummary mirrors the supervisor's reload diff on the wire.
// ReloadSummary 是监管器 reload 差异的传输形式。
type ReloadSummary struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Updated []string `json:"updated"`
}

// ==================== Response envelopes 响应封装 ====================

// ActionResponse is the response of start/stop/restart/shutdown operations.
// ActionResponse 是启动/停止/重启/关闭操作的响应。
type ActionResponse struct {
	ErrorMsg  string       `json:"error_msg"`
	ErrorCode int          `json:"error_code,omitempty"`
	Data      *ProcessView `json:"data"`
}

// ListProcessesResponse is the response for listing all processes.
// ListProcessesResponse 是获取全部进程列表的响应。
type ListProcessesResponse struct {
	ErrorMsg  string `json:"error_msg"`
	ErrorCode int    `json:"error_code,omitempty"`
	Data      *struct {
		Total     int            `json:"total"`
		Processes []*ProcessView `json:"processes"`
	} `json:"data"`
}

// GetProcessResponse is the response for getting one process.
// GetProcessResponse 是获取单个进程详情的响应。
type GetProcessResponse struct {
	ErrorMsg  string       `json:"error_msg"`
	ErrorCode int          `json:"error_code,omitempty"`
	Data      *ProcessView `json:"data"`
}

// ReloadResponse is the response of a configuration reload.
// ReloadResponse 是配置重载的响应。
type ReloadResponse struct {
	ErrorMsg  string         `json:"error_msg"`
	ErrorCode int            `json:"error_code,omitempty"`
	Data      *ReloadSummary `json:"data"`
}

// ListHistoryResponse is the response for querying transition history.
// ListHistoryResponse 是查询状态转换历史的响应。
type ListHistoryResponse struct {
	ErrorMsg  string `json:"error_msg"`
	ErrorCode int    `json:"error_code,omitempty"`
	Data      *struct {
		Total   int             `json:"total"`
		Entries []*HistoryEntry `json:"entries"`
	} `json:"data"`
}
