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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Sdoof/capsule/internal/api"
	"github.com/Sdoof/capsule/internal/history"
	"github.com/Sdoof/capsule/internal/process"
	"github.com/Sdoof/capsule/internal/supervisor"
)

// stubHandle 是一个保持存活直至被显式退出的假进程
type stubHandle struct {
	pid  int
	mu   sync.Mutex
	live bool
	done chan process.ExitStatus
}

func (h *stubHandle) Pid() int                            { return h.pid }
func (h *stubHandle) Signal(sig syscall.Signal) error     { return nil }
func (h *stubHandle) Wait() <-chan process.ExitStatus     { return h.done }
func (h *stubHandle) Alive() bool                         { h.mu.Lock(); defer h.mu.Unlock(); return h.live }
func (h *stubHandle) exit(st process.ExitStatus) {
	h.mu.Lock()
	h.live = false
	h.mu.Unlock()
	h.done <- st
}

type stubLauncher struct {
	mu      sync.Mutex
	nextPid int
	handles []*stubHandle
}

func (l *stubLauncher) Launch(spec *process.Spec) (process.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextPid++
	h := &stubHandle{pid: 3000 + l.nextPid, live: true, done: make(chan process.ExitStatus, 1)}
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *stubLauncher) exitAll() {
	l.mu.Lock()
	handles := append([]*stubHandle(nil), l.handles...)
	l.mu.Unlock()
	for _, h := range handles {
		if h.Alive() {
			h.exit(process.ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM})
		}
	}
}

type testEnv struct {
	engine       *gin.Engine
	sup          *supervisor.Supervisor
	launcher     *stubLauncher
	reloadResult supervisor.ReloadResult
	reloadErr    error
	shutdownHit  chan struct{}
}

func newTestEnv(t *testing.T, repo *history.Repository, specs ...*process.Spec) *testEnv {
	t.Helper()
	env := &testEnv{
		launcher:    &stubLauncher{},
		shutdownHit: make(chan struct{}, 1),
	}
	env.sup = supervisor.New(specs, supervisor.Options{Launcher: env.launcher})
	env.sup.Run()
	t.Cleanup(func() {
		go func() {
			for {
				select {
				case <-env.sup.Done():
					return
				default:
					env.launcher.exitAll()
					time.Sleep(time.Millisecond)
				}
			}
		}()
		env.sup.Shutdown()
	})

	handler := NewHandler(env.sup, repo,
		func() (supervisor.ReloadResult, error) { return env.reloadResult, env.reloadErr },
		func() { env.shutdownHit <- struct{}{} },
	)
	gin.SetMode(gin.TestMode)
	env.engine = gin.New()
	handler.Register(env.engine)
	return env
}

func (env *testEnv) request(t *testing.T, method, path string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func apiSpec(name string, priority int) *process.Spec {
	return &process.Spec{
		Name:         name,
		Command:      "/usr/bin/" + name,
		Priority:     priority,
		Autorestart:  process.RestartUnexpected,
		StartSecs:    time.Second,
		StartRetries: 3,
		StopSignal:   syscall.SIGTERM,
		StopWaitSecs: 10 * time.Second,
	}
}

func TestListProcesses(t *testing.T) {
	env := newTestEnv(t, nil, apiSpec("tws", 50), apiSpec("mailer", 300))

	var resp api.ListProcessesResponse
	code := env.request(t, http.MethodGet, "/api/v1/processes", &resp)

	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Data)
	require.Equal(t, 2, resp.Data.Total)
	// 按启动顺序（优先级升序）
	assert.Equal(t, "tws", resp.Data.Processes[0].Name)
	assert.Equal(t, "mailer", resp.Data.Processes[1].Name)
	assert.Equal(t, "stopped", resp.Data.Processes[0].State)
}

func TestGetProcessUnknown(t *testing.T) {
	env := newTestEnv(t, nil, apiSpec("tws", 50))

	var resp api.GetProcessResponse
	code := env.request(t, http.MethodGet, "/api/v1/processes/nope", &resp)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrCodeUnknownProcess, resp.ErrorCode)
	assert.NotEmpty(t, resp.ErrorMsg)
}

func TestStartAndConflict(t *testing.T) {
	env := newTestEnv(t, nil, apiSpec("tws", 50))

	var resp api.ActionResponse
	code := env.request(t, http.MethodPost, "/api/v1/processes/tws/start", &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "starting", resp.Data.State)
	assert.Positive(t, resp.Data.Pid)

	// 重复启动冲突
	var conflict api.ActionResponse
	code = env.request(t, http.MethodPost, "/api/v1/processes/tws/start", &conflict)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, ErrCodeAlreadyStarted, conflict.ErrorCode)
}

func TestStopNotRunning(t *testing.T) {
	env := newTestEnv(t, nil, apiSpec("tws", 50))

	var resp api.ActionResponse
	code := env.request(t, http.MethodPost, "/api/v1/processes/tws/stop", &resp)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, ErrCodeNotRunning, resp.ErrorCode)
}

func TestRestartEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, apiSpec("tws", 50))

	var resp api.ActionResponse
	code := env.request(t, http.MethodPost, "/api/v1/processes/tws/restart", &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "starting", resp.Data.State)
}

func TestReloadEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, apiSpec("tws", 50))
	env.reloadResult = supervisor.ReloadResult{
		Added:   []string{"mailer"},
		Removed: []string{"legacy"},
		Updated: []string{"tws"},
	}

	var resp api.ReloadResponse
	code := env.request(t, http.MethodPost, "/api/v1/reload", &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Data)
	assert.Equal(t, []string{"mailer"}, resp.Data.Added)
	assert.Equal(t, []string{"legacy"}, resp.Data.Removed)
	assert.Equal(t, []string{"tws"}, resp.Data.Updated)
}

func TestReloadBadConfig(t *testing.T) {
	env := newTestEnv(t, nil, apiSpec("tws", 50))
	env.reloadErr = assert.AnError

	var resp api.ReloadResponse
	code := env.request(t, http.MethodPost, "/api/v1/reload", &resp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrCodeBadRequest, resp.ErrorCode)
}

func TestShutdownEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, apiSpec("tws", 50))

	var resp api.ActionResponse
	code := env.request(t, http.MethodPost, "/api/v1/shutdown", &resp)
	require.Equal(t, http.StatusOK, code)

	select {
	case <-env.shutdownHit:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback was not invoked")
	}
}

func TestHistoryDisabled(t *testing.T) {
	env := newTestEnv(t, nil, apiSpec("tws", 50))

	var resp api.ListHistoryResponse
	code := env.request(t, http.MethodGet, "/api/v1/processes/tws/history", &resp)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrCodeHistoryOff, resp.ErrorCode)
}

func TestHistoryEndpoint(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	repo, err := history.NewRepository(gdb)
	require.NoError(t, err)

	at := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(context.Background(), &history.TransitionRecord{
		EventID: "ev-1", Process: "tws", FromState: "starting", ToState: "running", Pid: 42, At: at,
	}))

	env := newTestEnv(t, repo, apiSpec("tws", 50))

	var resp api.ListHistoryResponse
	code := env.request(t, http.MethodGet, "/api/v1/processes/tws/history?to_state=running", &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Data)
	require.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "ev-1", resp.Data.Entries[0].EventID)
	assert.Equal(t, "running", resp.Data.Entries[0].To)

	var bad api.ListHistoryResponse
	code = env.request(t, http.MethodGet, "/api/v1/processes/tws/history?since=yesterday", &bad)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrCodeBadRequest, bad.ErrorCode)
}
