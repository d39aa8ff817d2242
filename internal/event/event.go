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

// Package event distributes process state transition events to interested
// parties: the history recorder and configured event listener children.
// event 包将进程状态转换事件分发给关注方：历史记录器与配置的事件监听器
// 子进程。
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/Sdoof/capsule/internal/process"
)

// Event describes one state transition of a supervised process.
// Event 描述受监管进程的一次状态转换。
type Event struct {
	// ID is a unique event identifier.
	// ID 是事件的唯一标识。
	ID string `json:"id"`

	// Time is when the transition was applied.
	// Time 是转换被应用的时刻。
	Time time.Time `json:"time"`

	// Process is the program name.
	// Process 是程序名。
	Process string `json:"process"`

	From process.State `json:"from"`
	To   process.State `json:"to"`

	// Pid is the child pid at transition time, zero when not running.
	// Pid 是转换时的子进程 pid，未运行时为零。
	Pid int `json:"pid,omitempty"`

	// Exit describes the last exit status, empty when not applicable.
	// Exit 描述最近一次退出状态，不适用时为空。
	Exit string `json:"exit,omitempty"`
}

// New builds an event with a fresh identifier.
// New 构建一个带有全新标识的事件。
func New(name string, from, to process.State, pid int, exit string, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Time:    at,
		Process: name,
		From:    from,
		To:      to,
		Pid:     pid,
		Exit:    exit,
	}
}

// Notifier receives transition events. Implementations must not block: the
// dispatcher calls them from its single fan-out goroutine.
// Notifier 接收转换事件。实现不得阻塞：分发器会在其唯一的分发协程中同步
// 调用它们。
type Notifier interface {
	OnEvent(ev Event)
}
