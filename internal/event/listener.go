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

package event

import (
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// listenerStopWait is how long Close waits for the child before SIGKILL.
// listenerStopWait 是 Close 在 SIGKILL 前等待子进程的时长。
const listenerStopWait = 5 * time.Second

// Listener feeds transition events to an external child process as JSON
// lines on its stdin, in the spirit of supervisord event listeners. A broken
// pipe triggers one relaunch on the next event.
// Listener 以 JSON 行形式将转换事件写入外部子进程的 stdin，风格类似
// supervisord 的事件监听器。管道断开后会在下一个事件到来时重新拉起子进程。
type Listener struct {
	name   string
	argv   []string
	filter map[string]bool
	logger *zap.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
}

// NewListener creates a listener for the given command line. Events lists
// the target state names to deliver; empty delivers every transition.
// NewListener 为给定命令行创建监听器。events 列出要投递的目标状态名；为空
// 则投递所有转换。
func NewListener(name, command string, events []string, logger *zap.Logger) (*Listener, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("event: listener %s has an empty command / 监听器 %s 的命令为空", name, name)
	}
	var filter map[string]bool
	if len(events) > 0 {
		filter = make(map[string]bool, len(events))
		for _, ev := range events {
			filter[strings.ToUpper(ev)] = true
		}
	}
	return &Listener{
		name:   name,
		argv:   argv,
		filter: filter,
		logger: logger.With(zap.String("listener", name)),
	}, nil
}

// Start launches the listener child.
// Start 拉起监听器子进程。
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spawnLocked()
}

func (l *Listener) spawnLocked() error {
	cmd := exec.Command(l.argv[0], l.argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("event: listener %s stdin pipe failed: %w", l.name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("event: listener %s start failed: %w", l.name, err)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	l.cmd = cmd
	l.stdin = stdin
	l.done = done
	l.logger.Info("event listener started / 事件监听器已启动",
		zap.Int("pid", cmd.Process.Pid))
	return nil
}

// OnEvent implements Notifier. Write failures drop the current child and
// relaunch it once for this event.
// OnEvent 实现 Notifier。写入失败会废弃当前子进程并针对本事件重新拉起一次。
func (l *Listener) OnEvent(ev Event) {
	if l.filter != nil && !l.filter[strings.ToUpper(string(ev.To))] {
		return
	}

	line, err := json.Marshal(ev)
	if err != nil {
		l.logger.Error("marshal event failed / 事件序列化失败", zap.Error(err))
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stdin == nil {
		if err := l.spawnLocked(); err != nil {
			l.logger.Error("relaunch listener failed / 重新拉起监听器失败", zap.Error(err))
			return
		}
	}
	if _, err := l.stdin.Write(line); err == nil {
		return
	}

	// 管道已断开，重建子进程后重试一次
	l.logger.Warn("listener pipe broken, relaunching / 监听器管道断开，重新拉起")
	l.dropLocked()
	if err := l.spawnLocked(); err != nil {
		l.logger.Error("relaunch listener failed / 重新拉起监听器失败", zap.Error(err))
		return
	}
	if _, err := l.stdin.Write(line); err != nil {
		l.logger.Error("event delivery failed / 事件投递失败", zap.Error(err))
	}
}

// dropLocked abandons the current child without waiting for it.
// dropLocked 放弃当前子进程且不等待其退出。
func (l *Listener) dropLocked() {
	if l.stdin != nil {
		_ = l.stdin.Close()
	}
	if l.cmd != nil && l.cmd.Process != nil {
		_ = l.cmd.Process.Signal(syscall.SIGTERM)
	}
	l.cmd, l.stdin, l.done = nil, nil, nil
}

// Close shuts the listener down: stdin is closed so a well-behaved child
// exits on EOF, with a SIGKILL escalation after listenerStopWait.
// Close 关闭监听器：先关闭 stdin，守规矩的子进程会在 EOF 时退出；超过
// listenerStopWait 后升级为 SIGKILL。
func (l *Listener) Close() {
	l.mu.Lock()
	cmd, stdin, done := l.cmd, l.stdin, l.done
	l.cmd, l.stdin, l.done = nil, nil, nil
	l.mu.Unlock()

	if cmd == nil {
		return
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	select {
	case <-done:
	case <-time.After(listenerStopWait):
		l.logger.Warn("listener did not exit, killing / 监听器未退出，强制终止")
		_ = cmd.Process.Kill()
		<-done
	}
}
