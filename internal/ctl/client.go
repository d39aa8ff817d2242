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

// Package ctl implements the client side of the control socket. It is the
// only way capsulectl talks to a running capsuled.
// Package ctl 实现控制套接字的客户端，是 capsulectl 与运行中的
// capsuled 通信的唯一途径。
package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sdoof/capsule/internal/api"
)

const defaultRequestTimeout = 30 * time.Second

// baseURL is a placeholder host; the transport dials the unix socket and
// never resolves it.
// baseURL 只是占位主机名；传输层直接拨号 unix 套接字，不会解析它。
const baseURL = "http://capsule"

// APIError carries the error envelope returned by the daemon, so callers
// can map error codes to exit codes.
// APIError 承载守护进程返回的错误信封，调用方可将错误码映射为退出码。
type APIError struct {
	StatusCode int
	Code       int
	Msg        string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("ctl: server error %d: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("ctl: server returned status %d: %s", e.StatusCode, e.Msg)
}

// HistoryQuery narrows a history listing.
// HistoryQuery 收窄历史查询范围。
type HistoryQuery struct {
	ToState string
	Since   time.Time
	Limit   int
}

// Client talks to capsuled over its unix control socket.
// Client 通过 unix 控制套接字与 capsuled 通信。
type Client struct {
	hc *http.Client
}

// NewClient builds a client for the daemon listening on socketPath.
// NewClient 构建面向监听 socketPath 的守护进程的客户端。
func NewClient(socketPath string) *Client {
	return &Client{
		hc: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// ListProcesses returns every supervised process in start order.
// ListProcesses 按启动顺序返回所有受监管进程。
func (c *Client) ListProcesses(ctx context.Context) ([]*api.ProcessView, error) {
	var resp api.ListProcessesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/processes", &resp, &resp.ErrorMsg, &resp.ErrorCode); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, nil
	}
	return resp.Data.Processes, nil
}

// GetProcess returns the status of one process.
// GetProcess 返回单个进程的状态。
func (c *Client) GetProcess(ctx context.Context, name string) (*api.ProcessView, error) {
	var resp api.GetProcessResponse
	path := "/api/v1/processes/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodGet, path, &resp, &resp.ErrorMsg, &resp.ErrorCode); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// StartProcess asks the daemon to start the named process.
// StartProcess 请求守护进程启动指定进程。
func (c *Client) StartProcess(ctx context.Context, name string) (*api.ProcessView, error) {
	return c.action(ctx, name, "start")
}

// StopProcess asks the daemon to stop the named process.
// StopProcess 请求守护进程停止指定进程。
func (c *Client) StopProcess(ctx context.Context, name string) (*api.ProcessView, error) {
	return c.action(ctx, name, "stop")
}

// RestartProcess asks the daemon to stop then start the named process.
// RestartProcess 请求守护进程先停后起指定进程。
func (c *Client) RestartProcess(ctx context.Context, name string) (*api.ProcessView, error) {
	return c.action(ctx, name, "restart")
}

func (c *Client) action(ctx context.Context, name, verb string) (*api.ProcessView, error) {
	var resp api.ActionResponse
	path := "/api/v1/processes/" + url.PathEscape(name) + "/" + verb
	if err := c.do(ctx, http.MethodPost, path, &resp, &resp.ErrorMsg, &resp.ErrorCode); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Reload asks the daemon to re-read its configuration and returns the diff.
// Reload 请求守护进程重读配置并返回差异。
func (c *Client) Reload(ctx context.Context) (*api.ReloadSummary, error) {
	var resp api.ReloadResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/reload", &resp, &resp.ErrorMsg, &resp.ErrorCode); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Shutdown asks the daemon to stop every process and exit.
// Shutdown 请求守护进程停止全部进程并退出。
func (c *Client) Shutdown(ctx context.Context) error {
	var resp api.ActionResponse
	return c.do(ctx, http.MethodPost, "/api/v1/shutdown", &resp, &resp.ErrorMsg, &resp.ErrorCode)
}

// History lists recorded state transitions for one process.
// History 列出单个进程的状态转换历史。
func (c *Client) History(ctx context.Context, name string, q HistoryQuery) ([]*api.HistoryEntry, error) {
	path := "/api/v1/processes/" + url.PathEscape(name) + "/history"
	params := url.Values{}
	if q.ToState != "" {
		params.Set("to_state", q.ToState)
	}
	if !q.Since.IsZero() {
		params.Set("since", q.Since.Format(time.RFC3339))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp api.ListHistoryResponse
	if err := c.do(ctx, http.MethodGet, path, &resp, &resp.ErrorMsg, &resp.ErrorCode); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, nil
	}
	return resp.Data.Entries, nil
}

// do issues the request and decodes the envelope. Non-2xx responses become
// an *APIError built from the envelope's error fields.
// do 发起请求并解码信封。非 2xx 响应依据信封错误字段构造 *APIError。
func (c *Client) do(ctx context.Context, method, path string, out interface{}, errMsg *string, errCode *int) error {
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("ctl: build request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("ctl: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ctl: read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ctl: decode response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{StatusCode: resp.StatusCode, Code: *errCode, Msg: *errMsg}
	}
	return nil
}
