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

// Package config loads the capsuled INI configuration file: the daemon
// section, the control socket, the history store and one section per
// supervised program or event listener.
// config 包加载 capsuled 的 INI 配置文件：守护进程段、控制套接字段、历史
// 存储段，以及每个受监管程序或事件监听器各一个配置段。
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/Sdoof/capsule/internal/process"
)

const (
	programPrefix  = "program:"
	listenerPrefix = "eventlistener:"
)

// Load reads and assembles the configuration from the given INI file.
// Malformed [program:] and [eventlistener:] sections are collected into
// Skipped instead of failing the whole load; everything else is strict.
// Load 从给定的 INI 文件读取并组装配置。畸形的 [program:] 和
// [eventlistener:] 配置段会被收集到 Skipped 而不是导致整个加载失败；
// 其余配置段则严格校验。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	// 支持 CAPSULE_CAPSULED_LOGLEVEL 这类环境变量覆盖
	v.SetEnvPrefix("CAPSULE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", ":", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s failed: %w", path, err)
	}

	cfg := &Config{
		Daemon: DaemonConfig{
			Logfile:     v.GetString("capsuled.logfile"),
			LogBackups:  v.GetInt("capsuled.logfile_backups"),
			Loglevel:    v.GetString("capsuled.loglevel"),
			Pidfile:     v.GetString("capsuled.pidfile"),
			ChildLogDir: v.GetString("capsuled.childlogdir"),
		},
		HTTPServer: HTTPServerConfig{
			File: v.GetString("unix_http_server.file"),
		},
		Ctl: CtlConfig{
			ServerURL: v.GetString("capsulectl.serverurl"),
		},
		History: HistoryConfig{
			Enabled: v.GetBool("history.enabled"),
			Type:    v.GetString("history.type"),
			Path:    v.GetString("history.path"),
			DSN:     v.GetString("history.dsn"),
		},
	}
	cfg.Daemon.TickInterval = secondsOrDefault(v.GetString("capsuled.tickinterval"), DefaultTickInterval)

	if raw := v.GetString("capsuled.logfile_maxbytes"); raw != "" {
		mb, err := parseMegabytes(raw)
		if err != nil {
			return nil, fmt.Errorf("config: capsuled.logfile_maxbytes: %w", err)
		}
		cfg.Daemon.LogMaxMegabytes = mb
	}

	if mode := v.GetString("unix_http_server.chmod"); mode != "" {
		parsed, err := parseFileMode(mode)
		if err != nil {
			return nil, fmt.Errorf("config: unix_http_server.chmod: %w", err)
		}
		cfg.HTTPServer.Chmod = parsed
	}

	setDefaults(cfg)
	loadSections(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 设置配置默认值
func setDefaults(c *Config) {
	if c.Daemon.Loglevel == "" {
		c.Daemon.Loglevel = DefaultLogLevel
	}
	if c.Daemon.LogMaxMegabytes == 0 {
		c.Daemon.LogMaxMegabytes = DefaultLogMaxMB
	}
	if c.Daemon.LogBackups == 0 {
		c.Daemon.LogBackups = DefaultLogBackups
	}
	if c.Daemon.TickInterval == 0 {
		c.Daemon.TickInterval = DefaultTickInterval
	}
	if c.HTTPServer.File == "" {
		c.HTTPServer.File = DefaultSocketPath
	}
	if c.HTTPServer.Chmod == 0 {
		c.HTTPServer.Chmod = DefaultSocketMode
	}
	if c.History.Enabled {
		if c.History.Type == "" {
			c.History.Type = "sqlite"
		}
		if c.History.Type == "sqlite" && c.History.Path == "" {
			c.History.Path = DefaultHistoryPath
		}
	}
}

// loadSections walks every [program:<name>] and [eventlistener:<name>]
// section. Viper lowercases section names, so program names are effectively
// case-insensitive and reported in lower case.
// loadSections 遍历所有 [program:<name>] 与 [eventlistener:<name>] 配置段。
// viper 会将配置段名转为小写，程序名因此不区分大小写并以小写形式呈现。
func loadSections(v *viper.Viper, cfg *Config) {
	sections := make([]string, 0)
	for key := range v.AllSettings() {
		if strings.HasPrefix(key, programPrefix) || strings.HasPrefix(key, listenerPrefix) {
			sections = append(sections, key)
		}
	}
	sort.Strings(sections)

	for _, section := range sections {
		values := v.GetStringMap(section)
		if name := strings.TrimPrefix(section, programPrefix); name != section {
			spec, err := parseProgram(name, values)
			if err != nil {
				cfg.Skipped = append(cfg.Skipped, SectionError{Section: section, Err: err})
				continue
			}
			cfg.Programs = append(cfg.Programs, spec)
			continue
		}
		name := strings.TrimPrefix(section, listenerPrefix)
		listener, err := parseListener(name, values)
		if err != nil {
			cfg.Skipped = append(cfg.Skipped, SectionError{Section: section, Err: err})
			continue
		}
		cfg.Listeners = append(cfg.Listeners, listener)
	}
}

// parseProgram builds a program spec from one raw section map.
// parseProgram 由一个原始配置段 map 构建程序定义。
func parseProgram(name string, values map[string]interface{}) (*process.Spec, error) {
	spec := &process.Spec{
		Name:      name,
		Command:   cast.ToString(values["command"]),
		Directory: cast.ToString(values["directory"]),
		Priority:  cast.ToInt(values["priority"]),
		Autostart: boolOrDefault(values, "autostart", true),

		StartRetries:  cast.ToInt(values["startretries"]),
		StartSecs:     time.Duration(cast.ToInt(values["startsecs"])) * time.Second,
		StopWaitSecs:  time.Duration(cast.ToInt(values["stopwaitsecs"])) * time.Second,
		StdoutLogfile: cast.ToString(values["stdout_logfile"]),
		LogBackups:    cast.ToInt(values["stdout_logfile_backups"]),
	}

	policy, err := parseAutorestart(cast.ToString(values["autorestart"]))
	if err != nil {
		return nil, err
	}
	spec.Autorestart = policy

	if raw := cast.ToString(values["exitcodes"]); raw != "" {
		codes, err := parseExitCodes(raw)
		if err != nil {
			return nil, err
		}
		spec.ExitCodes = codes
	}

	if raw := cast.ToString(values["stopsignal"]); raw != "" {
		sig, err := process.ParseSignal(raw)
		if err != nil {
			return nil, err
		}
		spec.StopSignal = sig
	}

	if raw := cast.ToString(values["environment"]); raw != "" {
		env, err := parseEnvironment(raw)
		if err != nil {
			return nil, err
		}
		spec.Environment = env
	}

	if raw := cast.ToString(values["stdout_logfile_maxbytes"]); raw != "" {
		mb, err := parseMegabytes(raw)
		if err != nil {
			return nil, err
		}
		spec.LogMaxMegabytes = mb
	}

	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// parseListener builds an event listener entry from one raw section map.
// parseListener 由一个原始配置段 map 构建事件监听器条目。
func parseListener(name string, values map[string]interface{}) (ListenerConfig, error) {
	listener := ListenerConfig{
		Name:    name,
		Command: cast.ToString(values["command"]),
	}
	if strings.TrimSpace(listener.Command) == "" {
		return ListenerConfig{}, fmt.Errorf("eventlistener %s has no command", name)
	}
	if raw := cast.ToString(values["events"]); raw != "" {
		for _, ev := range strings.Split(raw, ",") {
			if ev = strings.TrimSpace(ev); ev != "" {
				listener.Events = append(listener.Events, strings.ToUpper(ev))
			}
		}
	}
	return listener, nil
}

// parseAutorestart maps the configured value onto a restart policy. The
// supervisord-compatible booleans are accepted alongside the policy names.
// parseAutorestart 将配置值映射为重启策略。除策略名外同时接受与
// supervisord 兼容的布尔写法。
func parseAutorestart(raw string) (process.RestartPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "unexpected":
		return process.RestartUnexpected, nil
	case "true", "always":
		return process.RestartAlways, nil
	case "false", "never":
		return process.RestartNever, nil
	default:
		return "", fmt.Errorf("invalid autorestart value %q", raw)
	}
}

// parseExitCodes 解析 "0,2" 形式的预期退出码列表。
func parseExitCodes(raw string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid exit code %q", part)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// parseEnvironment 解析 "KEY=a,KEY2=b" 形式的环境变量列表。
func parseEnvironment(raw string) ([]string, error) {
	var env []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid environment entry %q", part)
		}
		env = append(env, strings.TrimSpace(key)+"="+strings.Trim(value, `"`))
	}
	return env, nil
}

// parseMegabytes converts a size like "50MB", "1GB" or a raw byte count into
// whole megabytes, rounding up so small non-zero sizes still rotate.
// parseMegabytes 将 "50MB"、"1GB" 或原始字节数转换为整数 MB，向上取整以保证
// 较小的非零值仍然触发轮转。
func parseMegabytes(raw string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		mult, s = 1<<30, strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		mult, s = 1<<20, strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		mult, s = 1<<10, strings.TrimSuffix(s, "KB")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	bytes := n * mult
	if bytes == 0 {
		return 0, nil
	}
	mb := bytes / (1 << 20)
	if bytes%(1<<20) != 0 {
		mb++
	}
	return int(mb), nil
}

// parseFileMode 解析 "0700" 形式的八进制权限位。
func parseFileMode(raw string) (os.FileMode, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q", raw)
	}
	return os.FileMode(n), nil
}

// boolOrDefault 读取布尔键，缺省时返回默认值。
func boolOrDefault(values map[string]interface{}, key string, def bool) bool {
	raw, ok := values[key]
	if !ok || cast.ToString(raw) == "" {
		return def
	}
	return cast.ToBool(raw)
}

// secondsOrDefault interprets a bare number as seconds and otherwise accepts
// a Go duration string.
// secondsOrDefault 将纯数字解释为秒，其余情况接受 Go 时长字符串。
func secondsOrDefault(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return def
}
