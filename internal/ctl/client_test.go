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

package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sdoof/capsule/internal/api"
)

// startFakeDaemon serves canned handlers on a unix socket in a temp dir.
// startFakeDaemon 在临时目录的 unix 套接字上提供固定响应。
func startFakeDaemon(t *testing.T, register func(r gin.IRouter)) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	register(engine)

	socketPath := filepath.Join(t.TempDir(), "capsule.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	srv := &http.Server{Handler: engine}
	go srv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return socketPath
}

func TestClientListProcesses(t *testing.T) {
	socket := startFakeDaemon(t, func(r gin.IRouter) {
		r.GET("/api/v1/processes", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"data": gin.H{
					"total": 2,
					"processes": []gin.H{
						{"name": "tws", "state": "running", "pid": 42},
						{"name": "mailer", "state": "stopped"},
					},
				},
			})
		})
	})

	cli := NewClient(socket)
	views, err := cli.ListProcesses(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "tws", views[0].Name)
	assert.Equal(t, "running", views[0].State)
	assert.Equal(t, 42, views[0].Pid)
}

func TestClientStartProcess(t *testing.T) {
	var gotPath string
	socket := startFakeDaemon(t, func(r gin.IRouter) {
		r.POST("/api/v1/processes/:name/start", func(c *gin.Context) {
			gotPath = c.Request.URL.Path
			c.JSON(http.StatusOK, gin.H{
				"data": gin.H{"name": c.Param("name"), "state": "starting", "pid": 77},
			})
		})
	})

	cli := NewClient(socket)
	view, err := cli.StartProcess(context.Background(), "tws")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/processes/tws/start", gotPath)
	assert.Equal(t, "starting", view.State)
	assert.Equal(t, 77, view.Pid)
}

func TestClientAPIError(t *testing.T) {
	socket := startFakeDaemon(t, func(r gin.IRouter) {
		r.GET("/api/v1/processes/:name", func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{
				"error_msg":  "process: unknown process name",
				"error_code": 6001,
			})
		})
	})

	cli := NewClient(socket)
	_, err := cli.GetProcess(context.Background(), "nope")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, 6001, apiErr.Code)
	assert.Contains(t, apiErr.Error(), "unknown process")
}

func TestClientHistoryQueryParams(t *testing.T) {
	var gotQuery map[string][]string
	socket := startFakeDaemon(t, func(r gin.IRouter) {
		r.GET("/api/v1/processes/:name/history", func(c *gin.Context) {
			gotQuery = c.Request.URL.Query()
			c.JSON(http.StatusOK, gin.H{
				"data": gin.H{
					"total": 1,
					"entries": []gin.H{
						{"event_id": "ev-1", "process": "tws", "from": "starting", "to": "running"},
					},
				},
			})
		})
	})

	since := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	cli := NewClient(socket)
	entries, err := cli.History(context.Background(), "tws", HistoryQuery{
		ToState: "running",
		Since:   since,
		Limit:   5,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ev-1", entries[0].EventID)
	assert.Equal(t, []string{"running"}, gotQuery["to_state"])
	assert.Equal(t, []string{"2026-08-28T00:00:00Z"}, gotQuery["since"])
	assert.Equal(t, []string{"5"}, gotQuery["limit"])
}

func TestClientReload(t *testing.T) {
	socket := startFakeDaemon(t, func(r gin.IRouter) {
		r.POST("/api/v1/reload", func(c *gin.Context) {
			body, _ := json.Marshal(api.ReloadResponse{
				Data: &api.ReloadSummary{Added: []string{"mailer"}},
			})
			c.Data(http.StatusOK, "application/json", body)
		})
	})

	cli := NewClient(socket)
	diff, err := cli.Reload(context.Background())
	require.NoError(t, err)
	require.NotNil(t, diff)
	assert.Equal(t, []string{"mailer"}, diff.Added)
}

func TestClientSocketGone(t *testing.T) {
	cli := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	_, err := cli.ListProcesses(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
