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
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sdoof/capsule/internal/process"
)

// fakeClock 提供可手动推进的确定性时钟
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeHandle 模拟被监管的 OS 进程
type fakeHandle struct {
	pid  int
	name string
	l    *fakeLauncher

	mu    sync.Mutex
	alive bool

	done chan process.ExitStatus
}

func (h *fakeHandle) Pid() int { return h.pid }

func (h *fakeHandle) Signal(sig syscall.Signal) error {
	h.l.mu.Lock()
	h.l.sigLog = append(h.l.sigLog, sigEntry{name: h.name, sig: sig})
	h.l.mu.Unlock()
	return nil
}

func (h *fakeHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

func (h *fakeHandle) Wait() <-chan process.ExitStatus { return h.done }

func (h *fakeHandle) exit(st process.ExitStatus) {
	h.mu.Lock()
	h.alive = false
	h.mu.Unlock()
	h.done <- st
}

type sigEntry struct {
	name string
	sig  syscall.Signal
}

// fakeLauncher 记录拉起顺序与全部信号投递
type fakeLauncher struct {
	mu      sync.Mutex
	nextPid int
	order   []string
	byName  map[string][]*fakeHandle
	sigLog  []sigEntry
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{byName: make(map[string][]*fakeHandle)}
}

func (l *fakeLauncher) Launch(spec *process.Spec) (process.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextPid++
	h := &fakeHandle{
		pid:   l.nextPid + 2000,
		name:  spec.Name,
		l:     l,
		alive: true,
		done:  make(chan process.ExitStatus, 1),
	}
	l.order = append(l.order, spec.Name)
	l.byName[spec.Name] = append(l.byName[spec.Name], h)
	return h, nil
}

func (l *fakeLauncher) launchOrder() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

func (l *fakeLauncher) current(name string) *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	hs := l.byName[name]
	if len(hs) == 0 {
		return nil
	}
	return hs[len(hs)-1]
}

func (l *fakeLauncher) spawnCount(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byName[name])
}

func (l *fakeLauncher) signals() []sigEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]sigEntry, len(l.sigLog))
	copy(out, l.sigLog)
	return out
}

func spec(name string, priority int, autostart bool) *process.Spec {
	s := &process.Spec{
		Name:         name,
		Command:      "/usr/bin/" + name,
		Priority:     priority,
		Autostart:    autostart,
		Autorestart:  process.RestartUnexpected,
		StartSecs:    time.Second,
		StartRetries: 3,
		StopSignal:   syscall.SIGTERM,
		StopWaitSecs: 10 * time.Second,
	}
	return s
}

// harness 组装带手动 tick 与假时钟的监管器
type harness struct {
	sup   *Supervisor
	l     *fakeLauncher
	clk   *fakeClock
	ticks chan time.Time
}

func newHarness(t *testing.T, specs ...*process.Spec) *harness {
	t.Helper()
	h := &harness{
		l:     newFakeLauncher(),
		clk:   &fakeClock{t: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)},
		ticks: make(chan time.Time),
	}
	h.sup = New(specs, Options{
		Launcher: h.l,
		Clock:    h.clk.Now,
		Ticks:    h.ticks,
	})
	h.sup.Run()
	return h
}

// tick 推进时钟并等待循环消费一次对账
func (h *harness) tick(d time.Duration) {
	h.clk.Advance(d)
	h.ticks <- h.clk.Now()
}

func (h *harness) waitState(t *testing.T, name string, want process.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := h.sup.Status(name)
		return err == nil && st.State == want
	}, 2*time.Second, time.Millisecond, "process %s never reached %s", name, want)
}

func TestAutostartInPriorityOrder(t *testing.T) {
	h := newHarness(t,
		spec("gateway", 60, true),
		spec("tws", 50, true),
		spec("manual", 100, false),
	)
	defer h.shutdownAll(t)

	// StatusAll 经由循环处理，返回时 autostart 必已完成
	statuses, err := h.sup.StatusAll()
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.Equal(t, []string{"tws", "gateway"}, h.l.launchOrder())
	assert.Equal(t, process.StateStarting, statuses[0].State)
	assert.Equal(t, process.StateStarting, statuses[1].State)
	assert.Equal(t, process.StateStopped, statuses[2].State)
}

// shutdownAll 结束测试时让所有假进程退出并等待循环结束
func (h *harness) shutdownAll(t *testing.T) {
	t.Helper()
	go func() {
		for {
			select {
			case <-h.sup.Done():
				return
			default:
			}
			for name := range h.l.byNameSnapshot() {
				if fh := h.l.current(name); fh != nil && fh.Alive() {
					fh.exit(process.ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM})
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()
	h.sup.Shutdown()
}

func (l *fakeLauncher) byNameSnapshot() map[string]struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]struct{}, len(l.byName))
	for name := range l.byName {
		out[name] = struct{}{}
	}
	return out
}

func TestStartStopLifecycle(t *testing.T) {
	h := newHarness(t, spec("tws", 50, false))
	defer h.shutdownAll(t)

	require.NoError(t, h.sup.StartProcess("tws"))
	h.waitState(t, "tws", process.StateStarting)

	h.tick(time.Second)
	h.waitState(t, "tws", process.StateRunning)

	require.NoError(t, h.sup.StopProcess("tws"))
	h.waitState(t, "tws", process.StateStopping)
	assert.Equal(t, []sigEntry{{name: "tws", sig: syscall.SIGTERM}}, h.l.signals())

	h.l.current("tws").exit(process.ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM})
	h.waitState(t, "tws", process.StateStopped)
	assert.Equal(t, 1, h.l.spawnCount("tws"))
}

func TestStartUnknownProcess(t *testing.T) {
	h := newHarness(t, spec("tws", 50, false))
	defer h.shutdownAll(t)

	err := h.sup.StartProcess("nope")
	assert.ErrorIs(t, err, process.ErrUnknownProcess)
}

func TestStartTwiceReturnsAlreadyStarted(t *testing.T) {
	h := newHarness(t, spec("tws", 50, false))
	defer h.shutdownAll(t)

	require.NoError(t, h.sup.StartProcess("tws"))
	err := h.sup.StartProcess("tws")
	assert.ErrorIs(t, err, process.ErrAlreadyStarted)
	assert.Equal(t, 1, h.l.spawnCount("tws"))
}

// restart 等待旧进程完全停止后再拉起新进程
func TestRestartWaitsForFullStop(t *testing.T) {
	h := newHarness(t, spec("tws", 50, true))
	defer h.shutdownAll(t)

	h.tick(time.Second)
	h.waitState(t, "tws", process.StateRunning)

	require.NoError(t, h.sup.RestartProcess("tws"))
	h.waitState(t, "tws", process.StateStopping)
	assert.Equal(t, 1, h.l.spawnCount("tws"))

	h.l.current("tws").exit(process.ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM})
	h.waitState(t, "tws", process.StateStarting)
	assert.Equal(t, 2, h.l.spawnCount("tws"))
}

func TestRestartSettledProcessStartsImmediately(t *testing.T) {
	h := newHarness(t, spec("tws", 50, false))
	defer h.shutdownAll(t)

	require.NoError(t, h.sup.RestartProcess("tws"))
	h.waitState(t, "tws", process.StateStarting)
	assert.Equal(t, 1, h.l.spawnCount("tws"))
}

// 显式 stop 取消此前的 restart 标记
func TestStopCancelsPendingRestart(t *testing.T) {
	h := newHarness(t, spec("tws", 50, true))
	defer h.shutdownAll(t)

	h.tick(time.Second)
	h.waitState(t, "tws", process.StateRunning)

	require.NoError(t, h.sup.RestartProcess("tws"))

	// 已在停止中，stop 意图返回 ErrStopInProgress，但重启标记被清除
	err := h.sup.StopProcess("tws")
	assert.ErrorIs(t, err, process.ErrStopInProgress)

	h.l.current("tws").exit(process.ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM})
	h.waitState(t, "tws", process.StateStopped)
	assert.Equal(t, 1, h.l.spawnCount("tws"))
}

// 崩溃循环经由真实的退出观察路径最终进入 Fatal
func TestCrashLoopReachesFatal(t *testing.T) {
	s := spec("flappy", 50, true)
	s.StartRetries = 2
	h := newHarness(t, s)
	defer h.shutdownAll(t)

	for i := 0; i < s.StartRetries+1; i++ {
		h.waitState(t, "flappy", process.StateStarting)
		h.l.current("flappy").exit(process.ExitStatus{Code: 1})
		if i < s.StartRetries {
			h.waitState(t, "flappy", process.StateBackoff)
			h.tick(time.Duration(i+1) * time.Second)
		}
	}

	h.waitState(t, "flappy", process.StateFatal)
	assert.Equal(t, s.StartRetries+1, h.l.spawnCount("flappy"))

	// Fatal 状态如实出现在快照中
	st, err := h.sup.Status("flappy")
	require.NoError(t, err)
	assert.Equal(t, process.StateFatal, st.State)
	assert.NotEmpty(t, st.LastError)
}

func TestReloadDiff(t *testing.T) {
	h := newHarness(t,
		spec("tws", 50, true),
		spec("legacy", 200, false),
	)
	defer h.shutdownAll(t)

	h.tick(time.Second)
	h.waitState(t, "tws", process.StateRunning)

	updated := spec("tws", 50, true)
	updated.Command = "/usr/bin/tws --paper"
	added := spec("mailer", 300, true)

	result, err := h.sup.Reload([]*process.Spec{updated, added})
	require.NoError(t, err)
	assert.Equal(t, []string{"mailer"}, result.Added)
	assert.Equal(t, []string{"legacy"}, result.Removed)
	assert.Equal(t, []string{"tws"}, result.Updated)

	// 新增程序自动启动；运行中的 tws 不受影响
	h.waitState(t, "mailer", process.StateStarting)
	st, err := h.sup.Status("tws")
	require.NoError(t, err)
	assert.Equal(t, process.StateRunning, st.State)

	// 被移除的程序从表中消失
	_, err = h.sup.Status("legacy")
	assert.ErrorIs(t, err, process.ErrUnknownProcess)
}

func TestReloadRemovesActiveProgramAfterStop(t *testing.T) {
	h := newHarness(t,
		spec("tws", 50, true),
		spec("legacy", 200, true),
	)
	defer h.shutdownAll(t)

	h.tick(time.Second)
	h.waitState(t, "legacy", process.StateRunning)

	_, err := h.sup.Reload([]*process.Spec{spec("tws", 50, true)})
	require.NoError(t, err)

	// 活跃的被移除程序先被停止，稳定后才从表中摘除
	h.l.current("legacy").exit(process.ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM})
	require.Eventually(t, func() bool {
		_, err := h.sup.Status("legacy")
		return err != nil
	}, 2*time.Second, time.Millisecond)
}

// 关闭按优先级逆序停止：数值高的先收到信号
func TestShutdownStopsInReverseOrder(t *testing.T) {
	h := newHarness(t,
		spec("tws", 50, true),
		spec("gateway", 60, true),
	)

	h.tick(time.Second)
	h.waitState(t, "tws", process.StateRunning)
	h.waitState(t, "gateway", process.StateRunning)

	done := make(chan struct{})
	go func() {
		h.sup.Shutdown()
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(h.l.signals()) >= 2
	}, 2*time.Second, time.Millisecond)
	sigs := h.l.signals()
	assert.Equal(t, "gateway", sigs[0].name)
	assert.Equal(t, "tws", sigs[1].name)

	h.l.current("gateway").exit(process.ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM})
	h.l.current("tws").exit(process.ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	// 循环结束后的请求得到 ErrShutdown
	assert.ErrorIs(t, h.sup.StartProcess("tws"), ErrShutdown)
}
