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
	"syscall"
	"time"

	"go.uber.org/zap"
)

// TransitionSink receives every state transition of a controller. The
// supervisor uses it to publish lifecycle events and to persist history.
// TransitionSink 接收控制器的每一次状态转换。监管器用它发布生命周期事件并
// 持久化历史。
type TransitionSink interface {
	OnTransition(c *Controller, from, to State)
}

// SpawnWatcher is invoked after every successful spawn so the supervisor can
// forward the handle's exit status back into its event queue.
// SpawnWatcher 在每次成功拉起后被调用，使监管器能将句柄的退出状态转发回其
// 事件队列。
type SpawnWatcher func(name string, gen uint64, h Handle)

// Status is a point-in-time snapshot of one supervised process.
// Status 是单个被监管进程的瞬时快照。
type Status struct {
	Name        string        `json:"name"`
	State       State         `json:"state"`
	Pid         int           `json:"pid,omitempty"`
	Priority    int           `json:"priority"`
	StartedAt   time.Time     `json:"started_at,omitzero"`
	Uptime      time.Duration `json:"uptime,omitempty"`
	Failures    int           `json:"failures"`
	LastExit    string        `json:"last_exit,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	CPUPercent  float64       `json:"cpu_percent,omitempty"`
	MemoryBytes int64         `json:"memory_bytes,omitempty"`
}

// Controller owns start/stop/restart decisions for one supervised process.
//
// Controllers are NOT safe for concurrent use: every method must be called
// from the supervisor loop goroutine (single-writer discipline). Timeouts are
// wall-clock deadlines evaluated on Tick, never OS alarms, so the machine is
// deterministic under a fake clock.
//
// Controller 拥有单个被监管进程的启动/停止/重启决策。
//
// Controller 不支持并发使用：所有方法必须在监管循环 goroutine 中调用
//（单写者约束）。超时是在 Tick 时求值的墙钟截止时间，而非 OS 定时器，
// 因此状态机在假时钟下是确定性的。
type Controller struct {
	spec     *Spec
	launcher Launcher
	sink     TransitionSink
	watch    SpawnWatcher
	logger   *zap.Logger

	state State

	// gen identifies the current spawn; exit reports carrying a stale
	// generation are ignored.
	// gen 标识当前这次拉起；携带过期代数的退出报告会被忽略。
	gen uint64

	handle       Handle
	pid          int
	startedAt    time.Time
	lastExit     *ExitStatus
	lastError    string
	failures     int
	backoffUntil time.Time
	stopDeadline time.Time
	killed       bool
}

// NewController creates a controller in the Stopped state.
// NewController 创建处于 Stopped 状态的控制器。
func NewController(spec *Spec, launcher Launcher, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		spec:     spec,
		launcher: launcher,
		logger:   logger,
		state:    StateStopped,
	}
}

// SetSink installs the transition sink. Must be set before the first start.
// SetSink 安装转换接收器。必须在首次启动前设置。
func (c *Controller) SetSink(sink TransitionSink) { c.sink = sink }

// SetWatcher installs the spawn watcher. Must be set before the first start.
// SetWatcher 安装拉起观察器。必须在首次启动前设置。
func (c *Controller) SetWatcher(watch SpawnWatcher) { c.watch = watch }

// Spec returns the current immutable definition.
// Spec 返回当前的不可变定义。
func (c *Controller) Spec() *Spec { return c.spec }

// State returns the current lifecycle state.
// State 返回当前生命周期状态。
func (c *Controller) State() State { return c.state }

// Generation returns the current spawn generation.
// Generation 返回当前拉起代数。
func (c *Controller) Generation() uint64 { return c.gen }

// ReplaceSpec swaps in a new definition from a configuration reload. The new
// spec takes effect on the next start; a running process is not disturbed.
// ReplaceSpec 换入来自配置 reload 的新定义。新定义在下次启动时生效；
// 运行中的进程不受影响。
func (c *Controller) ReplaceSpec(spec *Spec) { c.spec = spec }

// Start handles an explicit start request (operator command or autostart).
// The failure counter is reset: an explicit start opens a fresh retry budget.
// Start 处理显式启动请求（运维指令或自动启动）。失败计数被重置：
// 显式启动开启新的重试预算。
func (c *Controller) Start(now time.Time) error {
	switch c.state {
	case StateStarting, StateRunning:
		return ErrAlreadyStarted
	case StateStopping:
		return ErrStopInProgress
	}
	c.failures = 0
	return c.spawn(now)
}

// Stop handles a stop request. A stop while Starting moves directly to
// Stopping without waiting for Running; a stop while Backoff cancels the
// pending retry.
// Stop 处理停止请求。Starting 期间的停止会直接进入 Stopping 而不等待
// Running；Backoff 期间的停止会取消待执行的重试。
func (c *Controller) Stop(now time.Time) error {
	switch c.state {
	case StateBackoff:
		c.setState(StateStopped, now)
		return nil
	case StateStopping:
		return ErrStopInProgress
	case StateStarting, StateRunning:
		c.setState(StateStopping, now)
		c.killed = false
		c.stopDeadline = now.Add(c.spec.StopWaitSecs)
		if c.handle != nil {
			if err := c.handle.Signal(c.spec.StopSignal); err != nil {
				c.logger.Warn("failed to deliver stop signal",
					zap.String("program", c.spec.Name),
					zap.Error(err),
				)
			}
		}
		return nil
	default:
		return ErrNotRunning
	}
}

// HandleExit applies an observed process termination. Reports for a stale
// generation or for an already-reaped handle are ignored, which makes exit
// delivery idempotent with out-of-band reconciliation.
// HandleExit 应用观测到的进程终止。过期代数或已被回收句柄的报告会被忽略，
// 使退出投递与带外对账互为幂等。
func (c *Controller) HandleExit(gen uint64, st ExitStatus, now time.Time) {
	if gen != c.gen || c.handle == nil {
		return
	}
	c.handle = nil
	c.pid = 0
	c.lastExit = &st

	switch c.state {
	case StateStopping:
		c.setState(StateStopped, now)

	case StateStarting:
		// Exited before the minimum uptime threshold: a failed start.
		// 在最小存活阈值前退出：视为一次失败的启动。
		c.registerFailure(now)

	case StateRunning:
		expected := !st.Signaled && !st.OutOfBand && c.spec.ExpectedExit(st.Code)
		restart := c.spec.Autorestart == RestartAlways ||
			(c.spec.Autorestart == RestartUnexpected && !expected)
		if !restart {
			c.setState(StateStopped, now)
			return
		}
		c.registerFailure(now)
	}
}

// registerFailure consumes one unit of the retry budget and parks the
// controller in Backoff, or Fatal once the budget is exhausted.
// registerFailure 消耗一次重试预算并使控制器进入 Backoff；预算耗尽则进入
// Fatal。
func (c *Controller) registerFailure(now time.Time) {
	c.failures++
	if c.failures > c.spec.StartRetries {
		c.lastError = "start retry limit exceeded / 启动重试次数已用尽"
		c.setState(StateFatal, now)
		return
	}
	c.backoffUntil = now.Add(backoffDelay(c.failures))
	c.setState(StateBackoff, now)
}

// Tick advances every wall-clock deadline: the minimum-uptime threshold, the
// stop-timeout escalation and the backoff expiry. It also reconciles against
// processes that disappeared out-of-band.
// Tick 推进所有墙钟截止时间：最小存活阈值、停止超时升级与退避到期。
// 它同时对带外消失的进程进行对账。
func (c *Controller) Tick(now time.Time) {
	switch c.state {
	case StateStarting:
		if c.reconcileGone(now) {
			return
		}
		if now.Sub(c.startedAt) >= c.spec.StartSecs {
			// Sustained past the threshold: only here does the
			// failure counter reset.
			// 存活超过阈值：失败计数只在这里重置。
			c.failures = 0
			c.setState(StateRunning, now)
		}

	case StateRunning:
		c.reconcileGone(now)

	case StateStopping:
		if c.handle == nil {
			c.setState(StateStopped, now)
			return
		}
		if c.reconcileGone(now) {
			return
		}
		if !now.Before(c.stopDeadline) && !c.killed {
			c.logger.Warn("stop timeout elapsed, escalating to SIGKILL",
				zap.String("program", c.spec.Name),
				zap.Int("pid", c.pid),
			)
			if err := c.handle.Signal(syscall.SIGKILL); err != nil {
				c.logger.Warn("failed to deliver SIGKILL",
					zap.String("program", c.spec.Name),
					zap.Error(err),
				)
			}
			c.killed = true
			c.stopDeadline = now.Add(DefaultKillWaitSecs)
		}

	case StateBackoff:
		if !now.Before(c.backoffUntil) {
			// Retry keeps the accumulated failure count.
			// 重试保留已累计的失败次数。
			if err := c.spawn(now); err != nil {
				c.logger.Error("backoff retry failed",
					zap.String("program", c.spec.Name),
					zap.Error(err),
				)
			}
		}
	}
}

// reconcileGone synthesizes an out-of-band exit when the handle reports the
// process no longer exists. Returns true when an exit was synthesized.
// reconcileGone 在句柄报告进程已不存在时合成一次带外退出。若合成了退出则返回
// true。
func (c *Controller) reconcileGone(now time.Time) bool {
	if c.handle == nil || c.handle.Alive() {
		return false
	}
	c.logger.Warn("process disappeared out-of-band",
		zap.String("program", c.spec.Name),
		zap.Int("pid", c.pid),
	)
	c.HandleExit(c.gen, ExitStatus{Code: -1, OutOfBand: true}, now)
	return true
}

// spawn asks the launcher for a new OS process. A spawn refusal (missing
// executable, permission denied) is reported immediately and moves the
// controller to Fatal without consuming the retry budget.
// spawn 请求启动器创建新的 OS 进程。拉起被拒（可执行文件缺失、权限不足）
// 会被立即上报并使控制器进入 Fatal，且不消耗重试预算。
func (c *Controller) spawn(now time.Time) error {
	c.setState(StateStarting, now)
	h, err := c.launcher.Launch(c.spec)
	if err != nil {
		c.lastError = err.Error()
		c.setState(StateFatal, now)
		return err
	}
	c.gen++
	c.handle = h
	c.pid = h.Pid()
	c.startedAt = now
	c.killed = false
	c.lastError = ""
	if c.watch != nil {
		c.watch(c.spec.Name, c.gen, h)
	}
	return nil
}

// setState applies a transition and notifies the sink.
// setState 应用状态转换并通知接收器。
func (c *Controller) setState(next State, now time.Time) {
	if c.state == next {
		return
	}
	if !c.state.CanTransitionTo(next) {
		c.logger.Error("illegal state transition",
			zap.String("program", c.spec.Name),
			zap.String("from", string(c.state)),
			zap.String("to", string(next)),
		)
	}
	from := c.state
	c.state = next
	if c.sink != nil {
		c.sink.OnTransition(c, from, next)
	}
}

// Status builds a snapshot for status queries. It always reflects the last
// known state truthfully, Fatal included.
// Status 构建用于状态查询的快照。它始终如实反映最后已知状态，包括 Fatal。
func (c *Controller) Status(now time.Time) Status {
	st := Status{
		Name:      c.spec.Name,
		State:     c.state,
		Pid:       c.pid,
		Priority:  c.spec.Priority,
		Failures:  c.failures,
		LastError: c.lastError,
	}
	if c.state == StateStarting || c.state == StateRunning || c.state == StateStopping {
		st.StartedAt = c.startedAt
		st.Uptime = now.Sub(c.startedAt)
	}
	if c.lastExit != nil {
		st.LastExit = c.lastExit.String()
	}
	return st
}
