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

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sdoof/capsule/internal/process"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath   = "/etc/capsule/capsuled.conf"
	DefaultSocketPath   = "/tmp/capsule.sock"
	DefaultSocketMode   = 0o700
	DefaultLogLevel     = "info"
	DefaultLogMaxMB     = 50
	DefaultLogBackups   = 10
	DefaultTickInterval = 1 * time.Second
	DefaultHistoryPath  = "./data/capsule-history.db"
)

// Config is the full daemon configuration assembled from the INI file.
// Config 是由 INI 文件组装出的守护进程完整配置。
type Config struct {
	// Daemon holds the [capsuled] section.
	// Daemon 对应 [capsuled] 配置段。
	Daemon DaemonConfig

	// HTTPServer holds the [unix_http_server] section.
	// HTTPServer 对应 [unix_http_server] 配置段。
	HTTPServer HTTPServerConfig

	// Ctl holds the [capsulectl] section.
	// Ctl 对应 [capsulectl] 配置段。
	Ctl CtlConfig

	// History holds the [history] section.
	// History 对应 [history] 配置段。
	History HistoryConfig

	// Programs holds one immutable spec per [program:<name>] section.
	// Programs 每个 [program:<name>] 配置段对应一个不可变定义。
	Programs []*process.Spec

	// Listeners holds one entry per [eventlistener:<name>] section.
	// Listeners 每个 [eventlistener:<name>] 配置段对应一个条目。
	Listeners []ListenerConfig

	// Skipped records program sections rejected during Load. A malformed
	// program never rejects the whole file.
	// Skipped 记录 Load 时被拒绝的程序配置段。单个畸形程序不会导致整个
	// 文件被拒绝。
	Skipped []SectionError
}

// SectionError describes a configuration section that could not be loaded.
// SectionError 描述一个无法加载的配置段。
type SectionError struct {
	Section string
	Err     error
}

func (e SectionError) Error() string {
	return fmt.Sprintf("config: section [%s]: %v", e.Section, e.Err)
}

// DaemonConfig mirrors the [capsuled] section.
// DaemonConfig 对应 [capsuled] 配置段。
type DaemonConfig struct {
	// Logfile is the daemon's own log file; empty logs to stderr.
	// Logfile 是守护进程自身的日志文件；为空则输出到 stderr。
	Logfile string

	// LogMaxMegabytes rotates the daemon log at this size.
	// LogMaxMegabytes 以该大小轮转守护进程日志（MB）。
	LogMaxMegabytes int

	// LogBackups is the number of rotated daemon logs to keep.
	// LogBackups 是保留的已轮转守护进程日志数量。
	LogBackups int

	// Loglevel is one of debug, info, warn, error.
	// Loglevel 为 debug、info、warn、error 之一。
	Loglevel string

	// Pidfile records the daemon pid; empty disables it.
	// Pidfile 记录守护进程 pid；为空则禁用。
	Pidfile string

	// ChildLogDir is the fallback directory for child process logs.
	// ChildLogDir 是子进程日志的兜底目录。
	ChildLogDir string

	// TickInterval is the reconciliation tick of the supervisor loop.
	// TickInterval 是监管循环的对账周期。
	TickInterval time.Duration
}

// HTTPServerConfig mirrors the [unix_http_server] section: the control
// socket and its permission bits, which are the API's whole auth model.
// HTTPServerConfig 对应 [unix_http_server] 配置段：控制套接字及其权限位，
// 即控制 API 的全部鉴权模型。
type HTTPServerConfig struct {
	File  string
	Chmod os.FileMode
}

// CtlConfig mirrors the [capsulectl] section.
// CtlConfig 对应 [capsulectl] 配置段。
type CtlConfig struct {
	// ServerURL is a unix:///path/to/socket URL the CLI connects to.
	// ServerURL 是 CLI 连接的 unix:///path/to/socket 地址。
	ServerURL string
}

// HistoryConfig mirrors the [history] section (transition journal store).
// HistoryConfig 对应 [history] 配置段（状态转换日志存储）。
type HistoryConfig struct {
	Enabled bool

	// Type selects the store backend: sqlite (default), mysql, postgres.
	// Type 选择存储后端：sqlite（默认）、mysql、postgres。
	Type string

	// Path is the sqlite database file.
	// Path 是 sqlite 数据库文件。
	Path string

	// DSN is the connection string for mysql/postgres backends.
	// DSN 是 mysql/postgres 后端的连接串。
	DSN string
}

// ListenerConfig mirrors one [eventlistener:<name>] section. Listeners are
// instantiated purely from configuration; there is no runtime registration.
// ListenerConfig 对应一个 [eventlistener:<name>] 配置段。监听器完全由配置
// 实例化，不存在运行时注册。
type ListenerConfig struct {
	// Name identifies the listener.
	// Name 标识监听器。
	Name string

	// Command is the listener child process to spawn.
	// Command 是要拉起的监听器子进程命令。
	Command string

	// Events filters which target states the listener receives; empty
	// means every transition.
	// Events 过滤监听器接收的目标状态；为空表示所有转换。
	Events []string
}

// Validate checks the assembled configuration. Program entries are validated
// individually during Load so one malformed entry never rejects the rest.
// Validate 检查组装后的配置。程序条目在 Load 时逐个校验，单个畸形条目不会
// 连累其余条目。
func (c *Config) Validate() error {
	if c.HTTPServer.File == "" {
		return errors.New("config: unix_http_server.file is required")
	}
	switch strings.ToLower(c.Daemon.Loglevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: invalid loglevel %q", c.Daemon.Loglevel)
	}
	if c.Daemon.TickInterval < 100*time.Millisecond {
		return errors.New("config: tick interval must be at least 100ms")
	}
	if c.History.Enabled {
		switch c.History.Type {
		case "", "sqlite":
			if c.History.Path == "" {
				return errors.New("config: history.path is required for sqlite")
			}
		case "mysql", "postgres":
			if c.History.DSN == "" {
				return fmt.Errorf("config: history.dsn is required for %s", c.History.Type)
			}
		default:
			return fmt.Errorf("config: unsupported history type %q", c.History.Type)
		}
	}
	seen := make(map[string]bool, len(c.Programs))
	for _, p := range c.Programs {
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate program name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// SocketPath resolves the control socket path the CLI should dial, from the
// [capsulectl] serverurl with the server section as fallback.
// SocketPath 解析 CLI 应连接的控制套接字路径，优先使用 [capsulectl] 的
// serverurl，其次回退到服务端配置段。
func (c *Config) SocketPath() string {
	if u := strings.TrimSpace(c.Ctl.ServerURL); u != "" {
		return strings.TrimPrefix(u, "unix://")
	}
	if c.HTTPServer.File != "" {
		return c.HTTPServer.File
	}
	return DefaultSocketPath
}
