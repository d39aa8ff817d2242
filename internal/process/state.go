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

// State represents the lifecycle state of a supervised process.
// State 表示被监管进程的生命周期状态。
type State string

const (
	// StateStopped indicates the process is not running and no start is pending.
	// StateStopped 表示进程未运行且没有待执行的启动。
	StateStopped State = "stopped"

	// StateStarting indicates the process has been spawned but has not yet
	// stayed up past its minimum uptime threshold.
	// StateStarting 表示进程已被拉起，但尚未存活超过最小运行时长阈值。
	StateStarting State = "starting"

	// StateRunning indicates the process is alive past the uptime threshold.
	// StateRunning 表示进程已存活超过运行时长阈值。
	StateRunning State = "running"

	// StateStopping indicates a termination signal has been sent and the
	// supervisor is waiting for the process to exit.
	// StateStopping 表示已发送终止信号，监管器正在等待进程退出。
	StateStopping State = "stopping"

	// StateBackoff indicates a failed start is waiting out its retry delay.
	// StateBackoff 表示启动失败后正在等待重试延迟。
	StateBackoff State = "backoff"

	// StateFatal indicates the process could not be started and the retry
	// budget is exhausted, or the spawn itself failed.
	// StateFatal 表示进程无法启动且重试预算已耗尽，或拉起本身失败。
	StateFatal State = "fatal"
)

// validTransitions enumerates every legal edge of the lifecycle state machine.
// Any transition not listed here is a supervisor bug.
// validTransitions 枚举生命周期状态机的所有合法边。未列出的转换均为监管器缺陷。
var validTransitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateBackoff, StateFatal, StateStopping},
	StateRunning:  {StateStopping, StateStopped, StateBackoff, StateFatal},
	StateStopping: {StateStopped},
	StateBackoff:  {StateStarting, StateStopped, StateFatal},
	StateFatal:    {StateStarting},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
// CanTransitionTo 报告从 s 到 next 是否为合法转换。
func (s State) CanTransitionTo(next State) bool {
	for _, t := range validTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsActive reports whether the state represents a live or pending OS process,
// i.e. a state from which a stop request is meaningful.
// IsActive 报告该状态是否对应存活或待启动的 OS 进程，即停止请求对其有意义的状态。
func (s State) IsActive() bool {
	switch s {
	case StateStarting, StateRunning, StateStopping, StateBackoff:
		return true
	default:
		return false
	}
}

// IsStartable reports whether a start request may be honored in this state.
// IsStartable 报告在该状态下是否可以接受启动请求。
func (s State) IsStartable() bool {
	switch s {
	case StateStopped, StateFatal:
		return true
	default:
		return false
	}
}
