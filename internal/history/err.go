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

package history

import "errors"

// Error definitions for transition record operations.
// 转换记录操作的错误定义。
var (
	// ErrEventIDEmpty indicates the event ID is empty.
	// ErrEventIDEmpty 表示事件 ID 为空。
	ErrEventIDEmpty = errors.New("history: event ID cannot be empty")
	// ErrProcessEmpty indicates the process name is empty.
	// ErrProcessEmpty 表示进程名为空。
	ErrProcessEmpty = errors.New("history: process name cannot be empty")
	// ErrNotEnabled indicates the history store is disabled in configuration.
	// ErrNotEnabled 表示配置中未启用历史存储。
	ErrNotEnabled = errors.New("history: store is not enabled")
)

// Error codes for transition record operations.
// 转换记录操作的错误代码。
const (
	ErrCodeEventIDEmpty = 5001
	ErrCodeProcessEmpty = 5002
	ErrCodeNotEnabled   = 5003
)
