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

// Package supervisor runs the supervision loop: a single goroutine that owns
// the process table and serializes operator commands, observed process exits
// and periodic reconciliation ticks.
// supervisor 包运行监管循环：一个独占进程表的 goroutine，串行化运维指令、
// 观测到的进程退出与周期性的对账 tick。
package supervisor

import (
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Sdoof/capsule/internal/collector"
	"github.com/Sdoof/capsule/internal/event"
	"github.com/Sdoof/capsule/internal/process"
)

// exitBuffer sizes the exit report queue. Watcher goroutines also select on
// loop teardown, so the buffer only smooths bursts.
// exitBuffer 决定退出报告队列的容量。观察 goroutine 同时监听循环退出，
// 缓冲只用于平滑突发。
const exitBuffer = 64

// Options configures a Supervisor.
// Options 配置 Supervisor。
type Options struct {
	// Launcher spawns OS processes. Required.
	// Launcher 负责拉起 OS 进程。必填。
	Launcher process.Launcher

	// Dispatcher receives transition events. Optional.
	// Dispatcher 接收转换事件。可选。
	Dispatcher *event.Dispatcher

	// Collector samples CPU and memory for status queries. Optional.
	// Collector 为状态查询采集 CPU 与内存。可选。
	Collector *collector.Collector

	Logger *zap.Logger

	// TickInterval is the reconciliation period. Ignored when Ticks is set.
	// TickInterval 是对账周期。设置 Ticks 时被忽略。
	TickInterval time.Duration

	// Clock supplies the current time; defaults to time.Now. Deadlines are
	// evaluated against this clock, which keeps tests deterministic.
	// Clock 提供当前时间，默认为 time.Now。所有截止时间都基于该时钟求值，
	// 使测试具有确定性。
	Clock func() time.Time

	// Ticks replaces the internal ticker when non-nil.
	// Ticks 非空时替代内部的定时器。
	Ticks <-chan time.Time
}

// Supervisor owns the process table. Public methods are safe for concurrent
// use: they enqueue intents and wait for the loop goroutine's reply.
// Supervisor 独占进程表。公开方法可并发调用：它们将意图入队并等待循环
// goroutine 的应答。
type Supervisor struct {
	table      *process.Table
	launcher   process.Launcher
	dispatcher *event.Dispatcher
	collector  *collector.Collector
	logger     *zap.Logger

	now  func() time.Time
	tick time.Duration

	intents  chan intent
	exits    chan exitEvent
	loopDone chan struct{}
	ticks    <-chan time.Time

	// Everything below is owned by the loop goroutine.
	// 以下字段均由循环 goroutine 独占。
	shuttingDown   bool
	pendingRestart map[string]bool
	pendingRemove  map[string]bool
	deferred       []func(now time.Time)
}

// New builds a supervisor over the given program definitions. The loop does
// not run until Run is called.
// New 基于给定的程序定义构建监管器。调用 Run 之前循环不会运行。
func New(specs []*process.Spec, opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Second
	}

	s := &Supervisor{
		table:          process.NewTable(),
		launcher:       opts.Launcher,
		dispatcher:     opts.Dispatcher,
		collector:      opts.Collector,
		logger:         logger,
		now:            clock,
		tick:           tick,
		intents:        make(chan intent),
		exits:          make(chan exitEvent, exitBuffer),
		loopDone:       make(chan struct{}),
		ticks:          opts.Ticks,
		pendingRestart: make(map[string]bool),
		pendingRemove:  make(map[string]bool),
	}
	for _, spec := range specs {
		s.table.Upsert(s.newController(spec))
	}
	return s
}

// newController wires a controller into the supervisor's sink and watcher.
// newController 将控制器接入监管器的转换接收与拉起观察。
func (s *Supervisor) newController(spec *process.Spec) *process.Controller {
	c := process.NewController(spec, s.launcher, s.logger)
	c.SetSink(s)
	c.SetWatcher(s.watch)
	return c
}

// watch forwards the eventual exit status of one spawn into the loop. The
// goroutine gives up when the loop is gone so shutdown never leaks it.
// watch 将一次拉起最终的退出状态转发进循环。循环结束后该 goroutine 会放弃
// 投递，保证关闭时不泄漏。
func (s *Supervisor) watch(name string, gen uint64, h process.Handle) {
	go func() {
		st := <-h.Wait()
		select {
		case s.exits <- exitEvent{name: name, gen: gen, st: st}:
		case <-s.loopDone:
		}
	}()
}

// Run starts the supervision loop and autostarts the configured programs in
// priority order.
// Run 启动监管循环，并按优先级顺序自动拉起已配置的程序。
func (s *Supervisor) Run() {
	go s.run()
}

func (s *Supervisor) run() {
	defer close(s.loopDone)

	now := s.now()
	for _, c := range s.table.StartOrder() {
		if !c.Spec().Autostart {
			continue
		}
		if err := c.Start(now); err != nil {
			s.logger.Error("autostart failed / 自动启动失败",
				zap.String("program", c.Spec().Name),
				zap.Error(err))
		}
	}

	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		// Exit reports take priority over commands and ticks so the table
		// reflects reality before any decision is made on top of it.
		// 退出报告优先于指令与 tick，保证任何后续决策都基于已更新的表。
		select {
		case ev := <-s.exits:
			s.applyExit(ev)
		default:
			select {
			case ev := <-s.exits:
				s.applyExit(ev)
			case in := <-s.intents:
				s.applyIntent(in)
			case <-ticks:
				s.applyTick()
			}
		}

		s.flushDeferred()
		if s.shuttingDown && s.table.AllSettled() {
			return
		}
	}
}

// ask enqueues an intent and waits for its result.
// ask 将意图入队并等待其结果。
func (s *Supervisor) ask(in intent) intentResult {
	in.reply = make(chan intentResult, 1)
	select {
	case s.intents <- in:
	case <-s.loopDone:
		return intentResult{err: ErrShutdown}
	}
	select {
	case res := <-in.reply:
		return res
	case <-s.loopDone:
		return intentResult{err: ErrShutdown}
	}
}

// StartProcess requests a start of the named program.
// StartProcess 请求启动指定程序。
func (s *Supervisor) StartProcess(name string) error {
	return s.ask(intent{kind: intentStart, name: name}).err
}

// StopProcess requests a stop of the named program.
// StopProcess 请求停止指定程序。
func (s *Supervisor) StopProcess(name string) error {
	return s.ask(intent{kind: intentStop, name: name}).err
}

// RestartProcess stops the named program and starts it again once it has
// fully stopped.
// RestartProcess 停止指定程序，并在其完全停止后再次启动。
func (s *Supervisor) RestartProcess(name string) error {
	return s.ask(intent{kind: intentRestart, name: name}).err
}

// Status returns the snapshot of one program.
// Status 返回单个程序的快照。
func (s *Supervisor) Status(name string) (process.Status, error) {
	res := s.ask(intent{kind: intentStatus, name: name})
	return res.status, res.err
}

// StatusAll returns snapshots of every program in start order.
// StatusAll 按启动顺序返回所有程序的快照。
func (s *Supervisor) StatusAll() ([]process.Status, error) {
	res := s.ask(intent{kind: intentStatusAll})
	return res.statuses, res.err
}

// Reload applies a new set of program definitions: new programs are added
// (and autostarted), missing ones are stopped and removed, the rest get
// their definition swapped for the next start.
// Reload 应用新的程序定义集合：新增的程序被加入（并自动启动），消失的程序
// 被停止并移除，其余程序的定义在下次启动时生效。
func (s *Supervisor) Reload(programs []*process.Spec) (ReloadResult, error) {
	res := s.ask(intent{kind: intentReload, programs: programs})
	return res.reload, res.err
}

// Shutdown stops every program in reverse priority order and blocks until
// all of them settled and the loop exited.
// Shutdown 按优先级逆序停止所有程序，并阻塞直至全部稳定、循环退出。
func (s *Supervisor) Shutdown() {
	s.ask(intent{kind: intentShutdown})
	<-s.loopDone
}

// Done exposes loop termination for callers that wait on shutdown.
// Done 暴露循环终止信号，供等待关闭的调用方使用。
func (s *Supervisor) Done() <-chan struct{} { return s.loopDone }

// ---------------------------------------------------------------------------
// Loop goroutine below / 以下均运行在循环 goroutine 中
// ---------------------------------------------------------------------------

func (s *Supervisor) applyIntent(in intent) {
	var res intentResult
	now := s.now()

	switch in.kind {
	case intentStart:
		c, err := s.table.Get(in.name)
		if err == nil {
			delete(s.pendingRestart, in.name)
			err = c.Start(now)
		}
		res.err = err

	case intentStop:
		c, err := s.table.Get(in.name)
		if err == nil {
			// 显式停止取消任何待执行的重启
			delete(s.pendingRestart, in.name)
			err = c.Stop(now)
		}
		res.err = err

	case intentRestart:
		res.err = s.applyRestart(in.name, now)

	case intentStatus:
		c, err := s.table.Get(in.name)
		if err == nil {
			res.status = s.snapshot(c, now)
		}
		res.err = err

	case intentStatusAll:
		for _, c := range s.table.StartOrder() {
			res.statuses = append(res.statuses, s.snapshot(c, now))
		}

	case intentReload:
		res.reload = s.applyReload(in.programs, now)

	case intentShutdown:
		s.beginShutdown(now)
	}

	in.reply <- res
}

// applyRestart marks the program for restart and initiates the stop phase.
// A settled program is started straight away.
// applyRestart 标记程序待重启并发起停止阶段。已稳定的程序直接启动。
func (s *Supervisor) applyRestart(name string, now time.Time) error {
	c, err := s.table.Get(name)
	if err != nil {
		return err
	}
	s.pendingRestart[name] = true
	err = c.Stop(now)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrStopInProgress):
		// 已在停止中，重启标记会在其到达 Stopped 后生效
		return nil
	case errors.Is(err, process.ErrNotRunning):
		delete(s.pendingRestart, name)
		return c.Start(now)
	default:
		delete(s.pendingRestart, name)
		return err
	}
}

// applyReload diffs the new program set against the table.
// applyReload 将新的程序集合与进程表做差异对比。
func (s *Supervisor) applyReload(programs []*process.Spec, now time.Time) ReloadResult {
	var result ReloadResult

	incoming := make(map[string]*process.Spec, len(programs))
	for _, spec := range programs {
		incoming[spec.Name] = spec
	}

	// 移除：活跃进程先停止，待其稳定后再从表中摘除
	for _, name := range s.table.Names() {
		if _, ok := incoming[name]; ok {
			continue
		}
		result.Removed = append(result.Removed, name)
		c, _ := s.table.Get(name)
		delete(s.pendingRestart, name)
		if c.State().IsActive() {
			s.pendingRemove[name] = true
			if err := c.Stop(now); err != nil && !errors.Is(err, process.ErrStopInProgress) {
				s.logger.Warn("stop removed program failed / 停止已移除程序失败",
					zap.String("program", name), zap.Error(err))
			}
		} else {
			s.table.Remove(name)
		}
	}

	for _, spec := range programs {
		if existing, err := s.table.Get(spec.Name); err == nil {
			existing.ReplaceSpec(spec)
			result.Updated = append(result.Updated, spec.Name)
			continue
		}
		c := s.newController(spec)
		s.table.Upsert(c)
		result.Added = append(result.Added, spec.Name)
		if spec.Autostart {
			if err := c.Start(now); err != nil {
				s.logger.Error("autostart added program failed / 自动启动新增程序失败",
					zap.String("program", spec.Name), zap.Error(err))
			}
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Updated)
	return result
}

// beginShutdown stops every program in reverse priority order. The loop keeps
// ticking until the table settles, so stop timeouts still escalate.
// beginShutdown 按优先级逆序停止所有程序。循环会继续 tick 直至进程表稳定，
// 停止超时仍会升级。
func (s *Supervisor) beginShutdown(now time.Time) {
	if s.shuttingDown {
		return
	}
	s.shuttingDown = true
	s.pendingRestart = make(map[string]bool)
	s.logger.Info("supervisor shutting down / 监管器开始关闭")

	for _, c := range s.table.StopOrder() {
		if !c.State().IsActive() {
			continue
		}
		if err := c.Stop(now); err != nil && !errors.Is(err, process.ErrStopInProgress) {
			s.logger.Warn("shutdown stop failed / 关闭时停止失败",
				zap.String("program", c.Spec().Name), zap.Error(err))
		}
	}
}

func (s *Supervisor) applyExit(ev exitEvent) {
	c, err := s.table.Get(ev.name)
	if err != nil {
		// 程序已被 reload 移除，迟到的退出报告直接丢弃
		return
	}
	if s.collector != nil {
		if st := c.Status(s.now()); st.Pid > 0 {
			s.collector.Forget(st.Pid)
		}
	}
	c.HandleExit(ev.gen, ev.st, s.now())
}

func (s *Supervisor) applyTick() {
	now := s.now()
	for _, c := range s.table.StartOrder() {
		c.Tick(now)
	}
}

// snapshot enriches the controller status with resource usage.
// snapshot 在控制器快照上补充资源使用信息。
func (s *Supervisor) snapshot(c *process.Controller, now time.Time) process.Status {
	st := c.Status(now)
	if s.collector != nil && st.Pid > 0 {
		st.CPUPercent, st.MemoryBytes = s.collector.Sample(st.Pid)
	}
	return st
}

// OnTransition implements process.TransitionSink. It runs on the loop
// goroutine, so it only publishes the event and defers any follow-up table
// mutation to flushDeferred.
// OnTransition 实现 process.TransitionSink。它运行在循环 goroutine 中，
// 因此只发布事件，并将后续的表修改推迟到 flushDeferred。
func (s *Supervisor) OnTransition(c *process.Controller, from, to process.State) {
	name := c.Spec().Name
	now := s.now()

	s.logger.Info("state transition / 状态转换",
		zap.String("program", name),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	if s.dispatcher != nil {
		st := c.Status(now)
		s.dispatcher.Publish(event.New(name, from, to, st.Pid, st.LastExit, now))
	}

	settled := to == process.StateStopped || to == process.StateFatal
	if !settled {
		return
	}

	if s.pendingRemove[name] {
		delete(s.pendingRemove, name)
		delete(s.pendingRestart, name)
		s.deferred = append(s.deferred, func(time.Time) {
			s.table.Remove(name)
		})
		return
	}
	if to == process.StateStopped && s.pendingRestart[name] && !s.shuttingDown {
		delete(s.pendingRestart, name)
		s.deferred = append(s.deferred, func(now time.Time) {
			if err := c.Start(now); err != nil {
				s.logger.Error("deferred restart failed / 延迟重启失败",
					zap.String("program", name), zap.Error(err))
			}
		})
	}
}

// flushDeferred runs follow-up actions queued by OnTransition once the
// triggering mutation has fully completed.
// flushDeferred 在触发转换的修改完全结束后，执行 OnTransition 排队的
// 后续动作。
func (s *Supervisor) flushDeferred() {
	for len(s.deferred) > 0 {
		pending := s.deferred
		s.deferred = nil
		now := s.now()
		for _, fn := range pending {
			fn(now)
		}
	}
}
