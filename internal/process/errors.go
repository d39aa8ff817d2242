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

import "errors"

// Error definitions for the supervision core.
// 监管核心的错误定义。
var (
	// ErrUnknownProcess indicates the named program is not in the table.
	// ErrUnknownProcess 表示进程表中没有该名称的程序。
	ErrUnknownProcess = errors.New("process: unknown process")

	// ErrAlreadyStarted indicates a start request for a process that is
	// already starting or running. Reported as already-satisfied, not a
	// failure of the supervisor.
	// ErrAlreadyStarted 表示对已在启动或运行中的进程发出启动请求。
	// 视为已满足，而非监管器故障。
	ErrAlreadyStarted = errors.New("process: process already started")

	// ErrNotRunning indicates a stop request for a process with no live or
	// pending OS process.
	// ErrNotRunning 表示对没有存活或待启动 OS 进程的进程发出停止请求。
	ErrNotRunning = errors.New("process: process not running")

	// ErrStopInProgress indicates a duplicate stop request while the process
	// is already stopping.
	// ErrStopInProgress 表示进程已在停止过程中时收到重复的停止请求。
	ErrStopInProgress = errors.New("process: stop already in progress")

	// ErrSpawnFailed indicates the OS refused to create the process.
	// ErrSpawnFailed 表示操作系统拒绝创建进程。
	ErrSpawnFailed = errors.New("process: failed to spawn process")
)
