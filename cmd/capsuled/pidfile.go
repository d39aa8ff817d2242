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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// writePidfile records the daemon's pid, refusing to clobber a live daemon.
// A pidfile left behind by a dead process is overwritten.
// writePidfile 记录守护进程的 pid，拒绝覆盖仍然存活的守护进程。
// 已死进程遗留的 pidfile 会被覆盖。
func writePidfile(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && pid > 0 {
			if syscall.Kill(pid, 0) == nil {
				return fmt.Errorf("pidfile %s held by running process %d / pidfile %s 被运行中的进程 %d 持有", path, pid, path, pid)
			}
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pidfile directory: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// removePidfile deletes the pidfile, but only if it still belongs to us.
// removePidfile 删除 pidfile，但仅当它仍属于当前进程时。
func removePidfile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && pid == os.Getpid() {
		os.Remove(path)
	}
}
