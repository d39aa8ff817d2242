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

// Package collector samples CPU and memory usage of supervised child
// processes, for status reporting only.
// collector 包采集受监管子进程的 CPU 与内存使用情况，仅用于状态展示。
package collector

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// cpuSample is one CPU tick reading for a pid.
// cpuSample 是某个 pid 的一次 CPU tick 读数。
type cpuSample struct {
	ticks uint64
	at    time.Time
}

// Collector samples process resource usage. CPU percentage needs two readings
// of the same pid; the first sample for a pid always reports zero CPU.
// Collector 采集进程资源使用情况。CPU 百分比需要对同一 pid 读数两次；
// 某个 pid 的首次采样 CPU 始终为零。
type Collector struct {
	mu       sync.Mutex
	prev     map[int]cpuSample
	pageSize int64

	// clockTicks is the kernel USER_HZ value, fixed at 100 on Linux.
	// clockTicks 是内核 USER_HZ 值，Linux 上固定为 100。
	clockTicks float64
}

// New creates a collector.
// New 创建采集器。
func New() *Collector {
	return &Collector{
		prev:       make(map[int]cpuSample),
		pageSize:   int64(os.Getpagesize()),
		clockTicks: 100,
	}
}

// Sample returns the CPU percentage and resident memory in bytes for pid.
// A dead or unreadable pid reports zeros.
// Sample 返回 pid 的 CPU 百分比与常驻内存字节数。已死亡或不可读的 pid
// 返回零值。
func (c *Collector) Sample(pid int) (cpuPercent float64, memoryBytes int64) {
	if pid <= 0 {
		return 0, 0
	}
	switch runtime.GOOS {
	case "linux":
		return c.sampleLinux(pid)
	case "darwin":
		return samplePS(pid)
	default:
		return 0, 0
	}
}

// Forget drops the stored CPU reading of an exited pid.
// Forget 丢弃已退出 pid 的 CPU 读数。
func (c *Collector) Forget(pid int) {
	c.mu.Lock()
	delete(c.prev, pid)
	c.mu.Unlock()
}

// sampleLinux 通过 /proc 文件系统采集指标
func (c *Collector) sampleLinux(pid int) (cpuPercent float64, memoryBytes int64) {
	statData, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		c.Forget(pid)
		return 0, 0
	}

	// 进程名可能包含空格，字段从右括号之后解析
	rest := string(statData)
	if idx := strings.LastIndexByte(rest, ')'); idx >= 0 {
		rest = rest[idx+1:]
	}
	fields := strings.Fields(rest)

	// utime and stime are the 14th and 15th fields of the full stat line,
	// which lands them at offsets 11 and 12 after the command name.
	// utime 与 stime 是完整 stat 行的第 14、15 个字段，去掉命令名后位于
	// 偏移 11 和 12。
	if len(fields) > 12 {
		utime, _ := strconv.ParseUint(fields[11], 10, 64)
		stime, _ := strconv.ParseUint(fields[12], 10, 64)
		cpuPercent = c.cpuDelta(pid, utime+stime, time.Now())
	}

	statmData, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return cpuPercent, 0
	}
	statmFields := strings.Fields(string(statmData))
	if len(statmFields) >= 2 {
		// RSS is in pages / RSS 以页为单位
		rss, _ := strconv.ParseInt(statmFields[1], 10, 64)
		memoryBytes = rss * c.pageSize
	}
	return cpuPercent, memoryBytes
}

// cpuDelta computes the CPU percentage from the tick delta since the last
// reading of the same pid.
// cpuDelta 由同一 pid 距上次读数的 tick 增量计算 CPU 百分比。
func (c *Collector) cpuDelta(pid int, ticks uint64, now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.prev[pid]
	c.prev[pid] = cpuSample{ticks: ticks, at: now}
	if !ok || ticks < last.ticks {
		return 0
	}
	elapsed := now.Sub(last.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	percent := float64(ticks-last.ticks) / c.clockTicks / elapsed * 100
	if percent < 0 {
		return 0
	}
	return percent
}

// samplePS 在 macOS 上通过 ps 命令采集指标
func samplePS(pid int) (cpuPercent float64, memoryBytes int64) {
	cmd := exec.Command("ps", "-o", "rss=,pcpu=", "-p", strconv.Itoa(pid))
	output, err := cmd.Output()
	if err != nil {
		return 0, 0
	}
	fields := strings.Fields(string(output))
	if len(fields) >= 2 {
		// RSS is in KB / RSS 以 KB 为单位
		rss, _ := strconv.ParseInt(fields[0], 10, 64)
		memoryBytes = rss * 1024
		cpuPercent, _ = strconv.ParseFloat(fields[1], 64)
	}
	return cpuPercent, memoryBytes
}
