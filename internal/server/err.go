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

package server

import (
	"errors"
	"net/http"

	"github.com/Sdoof/capsule/internal/process"
	"github.com/Sdoof/capsule/internal/supervisor"
)

// Error codes for control API operations.
// 控制 API 操作的错误代码。
const (
	ErrCodeUnknownProcess = 6001
	ErrCodeAlreadyStarted = 6002
	ErrCodeStopInProgress = 6003
	ErrCodeNotRunning     = 6004
	ErrCodeSpawnFailed    = 6005
	ErrCodeShutdown       = 6006
	ErrCodeHistoryOff     = 6007
	ErrCodeBadRequest     = 6008
	ErrCodeInternal       = 6099
)

// classify maps a supervision error onto an HTTP status and an error code.
// classify 将监管错误映射为 HTTP 状态码与错误代码。
func classify(err error) (int, int) {
	switch {
	case errors.Is(err, process.ErrUnknownProcess):
		return http.StatusNotFound, ErrCodeUnknownProcess
	case errors.Is(err, process.ErrAlreadyStarted):
		return http.StatusConflict, ErrCodeAlreadyStarted
	case errors.Is(err, process.ErrStopInProgress):
		return http.StatusConflict, ErrCodeStopInProgress
	case errors.Is(err, process.ErrNotRunning):
		return http.StatusConflict, ErrCodeNotRunning
	case errors.Is(err, process.ErrSpawnFailed):
		return http.StatusInternalServerError, ErrCodeSpawnFailed
	case errors.Is(err, supervisor.ErrShutdown):
		return http.StatusServiceUnavailable, ErrCodeShutdown
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
