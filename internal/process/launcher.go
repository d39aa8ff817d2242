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
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ExitStatus describes how a supervised process terminated.
// ExitStatus 描述被监管进程的终止方式。
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a signal
	// or disappeared out-of-band.
	// Code 是退出码；进程被信号杀死或在带外消失时为 -1。
	Code int

	// Signaled indicates the process was terminated by a signal.
	// Signaled 表示进程被信号终止。
	Signaled bool

	// Signal is the terminating signal when Signaled is true.
	// Signal 是 Signaled 为 true 时的终止信号。
	Signal syscall.Signal

	// OutOfBand indicates the exit was inferred by reconciliation rather
	// than observed from the OS wait status.
	// OutOfBand 表示退出是由对账推断的，而非从 OS wait 状态观测到的。
	OutOfBand bool
}

// String renders the exit status for logs and status output.
// String 渲染退出状态用于日志和状态输出。
func (e ExitStatus) String() string {
	if e.OutOfBand {
		return "disappeared"
	}
	if e.Signaled {
		return fmt.Sprintf("signal %s", e.Signal)
	}
	return fmt.Sprintf("exit %d", e.Code)
}

// Handle is the supervisor's view of one spawned OS process. The launcher
// returns a Handle per spawn; the controller never touches exec.Cmd directly
// so the state machine stays testable without real processes.
// Handle 是监管器对单个已拉起 OS 进程的视图。启动器每次拉起返回一个 Handle；
// 控制器从不直接接触 exec.Cmd，使状态机无需真实进程即可测试。
type Handle interface {
	// Pid returns the OS process identifier.
	// Pid 返回 OS 进程标识。
	Pid() int

	// Signal delivers a signal to the process group.
	// Signal 向进程组发送信号。
	Signal(sig syscall.Signal) error

	// Alive reports whether the process still exists.
	// Alive 报告进程是否仍然存在。
	Alive() bool

	// Wait returns a channel that receives the exit status exactly once.
	// Wait 返回恰好接收一次退出状态的通道。
	Wait() <-chan ExitStatus
}

// Launcher spawns OS processes for specs.
// Launcher 按照 Spec 拉起 OS 进程。
type Launcher interface {
	Launch(spec *Spec) (Handle, error)
}

// ExecLauncher is the production Launcher backed by os/exec.
// ExecLauncher 是基于 os/exec 的生产环境 Launcher。
type ExecLauncher struct {
	// childLogDir is the fallback directory for child logs when a program
	// does not configure stdout_logfile.
	// childLogDir 是程序未配置 stdout_logfile 时子进程日志的兜底目录。
	childLogDir string

	logger *zap.Logger
}

// NewExecLauncher creates a launcher writing child logs under childLogDir.
// NewExecLauncher 创建在 childLogDir 下写入子进程日志的启动器。
func NewExecLauncher(childLogDir string, logger *zap.Logger) *ExecLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecLauncher{childLogDir: childLogDir, logger: logger}
}

// Launch spawns the program in its own process group with stdout and stderr
// captured to a rotating log file.
// Launch 在独立进程组中拉起程序，并将 stdout 与 stderr 捕获到轮转日志文件。
func (l *ExecLauncher) Launch(spec *Spec) (Handle, error) {
	argv := spec.Argv()
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command / 空命令", ErrSpawnFailed)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Directory
	cmd.Env = append(os.Environ(), spec.Environment...)

	// New process group so signals reach the whole child tree and killing
	// the daemon does not take the children down with it.
	// 使用新进程组，让信号能送达整个子进程树，且守护进程被杀不会连带子进程。
	setProcGroupAttr(cmd)

	logSink, err := l.childLogWriter(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	cmd.Stdout = logSink
	cmd.Stderr = logSink

	if err := cmd.Start(); err != nil {
		closeQuietly(logSink)
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	h := &execHandle{
		pid:  cmd.Process.Pid,
		done: make(chan ExitStatus, 1),
	}

	l.logger.Info("process spawned",
		zap.String("program", spec.Name),
		zap.Int("pid", h.pid),
		zap.String("command", spec.Command),
	)

	// Reap in the background and publish the wait status exactly once.
	// 后台回收进程并恰好发布一次 wait 状态。
	go func() {
		err := cmd.Wait()
		closeQuietly(logSink)
		h.done <- waitStatus(err)
	}()

	return h, nil
}

// childLogWriter builds the rotating writer for one program's output.
// childLogWriter 为单个程序的输出构建轮转写入器。
func (l *ExecLauncher) childLogWriter(spec *Spec) (io.WriteCloser, error) {
	path := spec.StdoutLogfile
	if path == "" {
		if l.childLogDir == "" {
			return nopWriteCloser{io.Discard}, nil
		}
		path = filepath.Join(l.childLogDir, spec.Name+".log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	maxSize := spec.LogMaxMegabytes
	if maxSize == 0 {
		maxSize = 50
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: spec.LogBackups,
	}, nil
}

// waitStatus converts an exec.Cmd wait error into an ExitStatus.
// waitStatus 将 exec.Cmd 的 wait 错误转换为 ExitStatus。
func waitStatus(err error) ExitStatus {
	if err == nil {
		return ExitStatus{Code: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ExitStatus{Code: -1, Signaled: true, Signal: ws.Signal()}
		}
		return ExitStatus{Code: exitErr.ExitCode()}
	}
	// Wait itself failed; treat it like an out-of-band disappearance.
	// Wait 本身失败；按带外消失处理。
	return ExitStatus{Code: -1, OutOfBand: true}
}

// execHandle implements Handle for a real OS process.
// execHandle 为真实 OS 进程实现 Handle。
type execHandle struct {
	pid  int
	done chan ExitStatus
}

func (h *execHandle) Pid() int { return h.pid }

// Signal targets the negative pid so the whole process group receives it.
// Signal 使用负 pid，使整个进程组都能收到信号。
func (h *execHandle) Signal(sig syscall.Signal) error {
	if err := syscall.Kill(-h.pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil // already gone / 进程已不存在
		}
		return err
	}
	return nil
}

// Alive probes the process with signal 0.
// Alive 通过信号 0 探测进程。
func (h *execHandle) Alive() bool {
	return syscall.Kill(h.pid, syscall.Signal(0)) == nil
}

func (h *execHandle) Wait() <-chan ExitStatus { return h.done }

// backoffDelay returns the retry delay for the given consecutive failure
// count: one extra second per accumulated failure.
// backoffDelay 返回给定连续失败次数对应的重试延迟：每累计一次失败增加一秒。
func backoffDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	return time.Duration(failures) * time.Second
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
