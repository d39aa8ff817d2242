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

// Package process provides the supervision core: the immutable program
// definition, the per-process lifecycle state machine, the process table and
// the OS launcher.
// process 包提供监管核心：不可变的程序定义、单进程生命周期状态机、进程表和
// OS 进程启动器。
package process

import (
	"fmt"
	"strings"
	"syscall"
	"time"
)

// RestartPolicy controls when an exited process is started again.
// RestartPolicy 控制进程退出后何时再次启动。
type RestartPolicy string

const (
	// RestartNever disables automatic restart entirely.
	// RestartNever 完全禁用自动重启。
	RestartNever RestartPolicy = "never"

	// RestartUnexpected restarts only when the exit code is not in the
	// expected set.
	// RestartUnexpected 仅在退出码不在预期集合中时重启。
	RestartUnexpected RestartPolicy = "unexpected"

	// RestartAlways restarts regardless of the exit code.
	// RestartAlways 无论退出码如何都重启。
	RestartAlways RestartPolicy = "always"
)

// Default values applied when a program section leaves a field unset.
// 程序配置段未设置字段时应用的默认值。
const (
	DefaultPriority     = 999
	DefaultStartSecs    = 1 * time.Second
	DefaultStartRetries = 3
	DefaultStopWaitSecs = 10 * time.Second
	DefaultKillWaitSecs = 5 * time.Second
)

// Spec is the immutable definition of one supervised program. It is created
// from configuration at startup and never mutated afterwards; changes require
// an explicit reload which replaces the whole Spec.
// Spec 是单个受监管程序的不可变定义。它在启动时由配置创建，此后不再修改；
// 变更需要显式 reload 并整体替换 Spec。
type Spec struct {
	// Name is the unique identifier of the program.
	// Name 是程序的唯一标识。
	Name string

	// Command is the command line to execute, split on whitespace.
	// Command 是要执行的命令行，按空白分割。
	Command string

	// Directory is the working directory. Empty inherits the daemon's.
	// Directory 是工作目录。为空时继承守护进程的工作目录。
	Directory string

	// Environment holds extra KEY=VALUE pairs appended to the daemon's own
	// environment.
	// Environment 保存附加到守护进程自身环境之后的 KEY=VALUE 对。
	Environment []string

	// Priority orders group starts (ascending) and stops (descending).
	// Priority 决定批量启动（升序）与停止（降序）的顺序。
	Priority int

	// Autostart starts the program when the daemon boots.
	// Autostart 表示守护进程启动时自动拉起该程序。
	Autostart bool

	// Autorestart is the restart policy applied when the process exits.
	// Autorestart 是进程退出时应用的重启策略。
	Autorestart RestartPolicy

	// StartSecs is the minimum uptime before a start is considered
	// successful. Exits before this threshold consume the retry budget.
	// StartSecs 是启动被视为成功前的最小存活时长。在此阈值前退出会消耗重试预算。
	StartSecs time.Duration

	// StartRetries bounds consecutive failed starts before Fatal.
	// StartRetries 限制进入 Fatal 前的连续启动失败次数。
	StartRetries int

	// ExitCodes is the set of exit codes considered an expected exit.
	// ExitCodes 是被视为预期退出的退出码集合。
	ExitCodes []int

	// StopSignal is the signal sent on a stop request.
	// StopSignal 是停止请求时发送的信号。
	StopSignal syscall.Signal

	// StopWaitSecs is how long to wait after StopSignal before SIGKILL.
	// StopWaitSecs 是发送 StopSignal 后等待多久再发送 SIGKILL。
	StopWaitSecs time.Duration

	// StdoutLogfile captures child stdout/stderr when non-empty.
	// StdoutLogfile 非空时捕获子进程的 stdout/stderr。
	StdoutLogfile string

	// LogMaxMegabytes is the rotation size for the child log file.
	// LogMaxMegabytes 是子进程日志文件的轮转大小（MB）。
	LogMaxMegabytes int

	// LogBackups is the number of rotated child log files to keep.
	// LogBackups 是保留的已轮转子进程日志文件数量。
	LogBackups int
}

// Validate checks the spec for fields the supervisor cannot work without.
// Validate 检查监管器运行所必需的字段。
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("process: program name cannot be empty / 程序名不能为空")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("process: program %s has no command / 程序 %s 缺少 command", s.Name, s.Name)
	}
	if s.StartRetries < 0 {
		return fmt.Errorf("process: program %s has negative startretries / 程序 %s 的 startretries 为负", s.Name, s.Name)
	}
	if s.StartSecs < 0 || s.StopWaitSecs < 0 {
		return fmt.Errorf("process: program %s has a negative timeout / 程序 %s 存在负的超时时间", s.Name, s.Name)
	}
	return nil
}

// Argv splits the command line into an argv slice.
// Argv 将命令行分割为 argv 切片。
func (s *Spec) Argv() []string {
	return strings.Fields(s.Command)
}

// ExpectedExit reports whether the exit code is in the expected set.
// An empty set means only exit code 0 is expected.
// ExpectedExit 报告退出码是否在预期集合中。集合为空时仅退出码 0 被视为预期。
func (s *Spec) ExpectedExit(code int) bool {
	if len(s.ExitCodes) == 0 {
		return code == 0
	}
	for _, c := range s.ExitCodes {
		if c == code {
			return true
		}
	}
	return false
}

// signalNames maps the signal names accepted in configuration.
// signalNames 映射配置中接受的信号名。
var signalNames = map[string]syscall.Signal{
	"TERM": syscall.SIGTERM,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"HUP":  syscall.SIGHUP,
	"KILL": syscall.SIGKILL,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
}

// ParseSignal converts a configured signal name (with or without the SIG
// prefix) into a syscall.Signal.
// ParseSignal 将配置的信号名（带或不带 SIG 前缀）转换为 syscall.Signal。
func ParseSignal(name string) (syscall.Signal, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "SIG")
	if key == "" {
		return syscall.SIGTERM, nil
	}
	if sig, ok := signalNames[key]; ok {
		return sig, nil
	}
	return 0, fmt.Errorf("process: unknown stop signal %q / 未知的停止信号 %q", name, name)
}

// ApplyDefaults fills zero-valued fields with the supervisor defaults.
// ApplyDefaults 用监管器默认值填充零值字段。
func (s *Spec) ApplyDefaults() {
	if s.Priority == 0 {
		s.Priority = DefaultPriority
	}
	if s.Autorestart == "" {
		s.Autorestart = RestartUnexpected
	}
	if s.StartSecs == 0 {
		s.StartSecs = DefaultStartSecs
	}
	if s.StartRetries == 0 {
		s.StartRetries = DefaultStartRetries
	}
	if s.StopSignal == 0 {
		s.StopSignal = syscall.SIGTERM
	}
	if s.StopWaitSecs == 0 {
		s.StopWaitSecs = DefaultStopWaitSecs
	}
}
