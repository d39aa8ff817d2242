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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sdoof/capsule/internal/api"
	"github.com/Sdoof/capsule/internal/history"
	"github.com/Sdoof/capsule/internal/supervisor"
)

// Handler provides the HTTP handlers of the control API.
// Handler 提供控制 API 的 HTTP 处理器。
type Handler struct {
	sup  *supervisor.Supervisor
	repo *history.Repository

	// reload re-reads the configuration file and applies the diff.
	// reload 重新读取配置文件并应用差异。
	reload func() (supervisor.ReloadResult, error)

	// shutdown asks the daemon to terminate gracefully.
	// shutdown 请求守护进程优雅退出。
	shutdown func()
}

// NewHandler creates the control API handler. repo may be nil when the
// history store is disabled.
// NewHandler 创建控制 API 处理器。历史存储未启用时 repo 可为 nil。
func NewHandler(sup *supervisor.Supervisor, repo *history.Repository,
	reload func() (supervisor.ReloadResult, error), shutdown func()) *Handler {
	return &Handler{sup: sup, repo: repo, reload: reload, shutdown: shutdown}
}

// Register mounts the control API routes.
// Register 挂载控制 API 路由。
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	{
		v1.GET("/processes", h.ListProcesses)
		v1.GET("/processes/:name", h.GetProcess)
		v1.POST("/processes/:name/start", h.StartProcess)
		v1.POST("/processes/:name/stop", h.StopProcess)
		v1.POST("/processes/:name/restart", h.RestartProcess)
		v1.GET("/processes/:name/history", h.ListHistory)
		v1.POST("/reload", h.Reload)
		v1.POST("/shutdown", h.Shutdown)
	}
}

// ListProcesses handles GET /api/v1/processes - lists every supervised
// process in start order.
// ListProcesses 处理 GET /api/v1/processes - 按启动顺序列出所有受监管进程。
func (h *Handler) ListProcesses(c *gin.Context) {
	statuses, err := h.sup.StatusAll()
	if err != nil {
		status, _ := classify(err)
		c.JSON(status, api.ListProcessesResponse{ErrorMsg: err.Error()})
		return
	}

	views := make([]*api.ProcessView, len(statuses))
	for i, st := range statuses {
		views[i] = api.ViewFromStatus(st)
	}
	c.JSON(http.StatusOK, api.ListProcessesResponse{
		Data: &struct {
			Total     int                `json:"total"`
			Processes []*api.ProcessView `json:"processes"`
		}{
			Total:     len(views),
			Processes: views,
		},
	})
}

// GetProcess handles GET /api/v1/processes/:name.
// GetProcess 处理 GET /api/v1/processes/:name。
func (h *Handler) GetProcess(c *gin.Context) {
	st, err := h.sup.Status(c.Param("name"))
	if err != nil {
		status, code := classify(err)
		c.JSON(status, api.GetProcessResponse{ErrorMsg: err.Error(), ErrorCode: code})
		return
	}
	c.JSON(http.StatusOK, api.GetProcessResponse{Data: api.ViewFromStatus(st)})
}

// StartProcess handles POST /api/v1/processes/:name/start.
// StartProcess 处理 POST /api/v1/processes/:name/start。
func (h *Handler) StartProcess(c *gin.Context) {
	h.action(c, h.sup.StartProcess)
}

// StopProcess handles POST /api/v1/processes/:name/stop.
// StopProcess 处理 POST /api/v1/processes/:name/stop。
func (h *Handler) StopProcess(c *gin.Context) {
	h.action(c, h.sup.StopProcess)
}

// RestartProcess handles POST /api/v1/processes/:name/restart.
// RestartProcess 处理 POST /api/v1/processes/:name/restart。
func (h *Handler) RestartProcess(c *gin.Context) {
	h.action(c, h.sup.RestartProcess)
}

// action runs one lifecycle operation and replies with the fresh snapshot.
// action 执行一个生命周期操作并以最新快照应答。
func (h *Handler) action(c *gin.Context, op func(string) error) {
	name := c.Param("name")
	if err := op(name); err != nil {
		status, code := classify(err)
		c.JSON(status, api.ActionResponse{ErrorMsg: err.Error(), ErrorCode: code})
		return
	}
	resp := api.ActionResponse{}
	if st, err := h.sup.Status(name); err == nil {
		resp.Data = api.ViewFromStatus(st)
	}
	c.JSON(http.StatusOK, resp)
}

// ListHistory handles GET /api/v1/processes/:name/history. Query parameters:
// to_state, since (RFC3339), limit.
// ListHistory 处理 GET /api/v1/processes/:name/history。查询参数：
// to_state、since（RFC3339）、limit。
func (h *Handler) ListHistory(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusNotFound, api.ListHistoryResponse{
			ErrorMsg:  history.ErrNotEnabled.Error(),
			ErrorCode: ErrCodeHistoryOff,
		})
		return
	}

	filter := &history.Filter{
		Process: c.Param("name"),
		ToState: c.Query("to_state"),
	}
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ListHistoryResponse{
				ErrorMsg:  "invalid since, use RFC3339 / since 格式无效，请使用 RFC3339",
				ErrorCode: ErrCodeBadRequest,
			})
			return
		}
		filter.Since = &t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, api.ListHistoryResponse{
				ErrorMsg:  "invalid limit / limit 无效",
				ErrorCode: ErrCodeBadRequest,
			})
			return
		}
		filter.Limit = n
	}

	records, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ListHistoryResponse{
			ErrorMsg:  err.Error(),
			ErrorCode: ErrCodeInternal,
		})
		return
	}

	entries := make([]*api.HistoryEntry, len(records))
	for i, rec := range records {
		entries[i] = &api.HistoryEntry{
			EventID: rec.EventID,
			Process: rec.Process,
			From:    rec.FromState,
			To:      rec.ToState,
			Pid:     rec.Pid,
			Exit:    rec.Exit,
			At:      rec.At,
		}
	}
	c.JSON(http.StatusOK, api.ListHistoryResponse{
		Data: &struct {
			Total   int                 `json:"total"`
			Entries []*api.HistoryEntry `json:"entries"`
		}{
			Total:   len(entries),
			Entries: entries,
		},
	})
}

// Reload handles POST /api/v1/reload.
// Reload 处理 POST /api/v1/reload。
func (h *Handler) Reload(c *gin.Context) {
	result, err := h.reload()
	if err != nil {
		// 关闭中之外的失败都是配置文件问题
		status, code := http.StatusBadRequest, ErrCodeBadRequest
		if errors.Is(err, supervisor.ErrShutdown) {
			status, code = http.StatusServiceUnavailable, ErrCodeShutdown
		}
		c.JSON(status, api.ReloadResponse{ErrorMsg: err.Error(), ErrorCode: code})
		return
	}
	c.JSON(http.StatusOK, api.ReloadResponse{
		Data: &api.ReloadSummary{
			Added:   result.Added,
			Removed: result.Removed,
			Updated: result.Updated,
		},
	})
}

// Shutdown handles POST /api/v1/shutdown. The reply is sent before the
// daemon begins stopping children, so the client always gets an answer.
// Shutdown 处理 POST /api/v1/shutdown。应答在守护进程开始停止子进程前送出，
// 保证客户端总能收到响应。
func (h *Handler) Shutdown(c *gin.Context) {
	c.JSON(http.StatusOK, api.ActionResponse{})
	go h.shutdown()
}
