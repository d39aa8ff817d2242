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

package supervisor

import (
	"errors"

	"github.com/Sdoof/capsule/internal/process"
)

// ErrShutdown is returned for requests arriving after shutdown began.
// ErrShutdown 在关闭开始后收到请求时返回。
var ErrShutdown = errors.New("supervisor: shutting down")

// intentKind identifies one operation on the supervision core.
// intentKind 标识对监管核心的一种操作。
type intentKind int

const (
	intentStart intentKind = iota
	intentStop
	intentRestart
	intentStatus
	intentStatusAll
	intentReload
	intentShutdown
)

// intent is one queued request for the supervisor loop. All mutation of the
// process table happens by draining these from the single loop goroutine.
// intent 是排队等待监管循环处理的一个请求。对进程表的所有修改都通过在唯一
// 的循环 goroutine 中消费这些请求完成。
type intent struct {
	kind     intentKind
	name     string
	programs []*process.Spec
	reply    chan intentResult
}

// intentResult carries the outcome back to the requester.
// intentResult 将处理结果返回给请求方。
type intentResult struct {
	status   process.Status
	statuses []process.Status
	reload   ReloadResult
	err      error
}

// ReloadResult summarizes a configuration reload as the sets of program
// names that were added, removed and updated.
// ReloadResult 以新增、移除、更新的程序名集合概括一次配置重载。
type ReloadResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Updated []string `json:"updated"`
}

// exitEvent reports one observed process termination into the loop. The
// generation lets the controller discard reports from a superseded spawn.
// exitEvent 向循环报告一次观测到的进程终止。代数使控制器能够丢弃来自已被
// 取代拉起的报告。
type exitEvent struct {
	name string
	gen  uint64
	st   process.ExitStatus
}
