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
	"text/tabwriter"
	"time"

	"github.com/Sdoof/capsule/internal/api"
)

// printProcessTable renders one line per process, supervisorctl-style.
// printProcessTable 按每进程一行渲染，风格类似 supervisorctl。
func printProcessTable(views []*api.ProcessView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tPID\tUPTIME\tDETAIL")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			v.Name, v.State, pidColumn(v), uptimeColumn(v), detailColumn(v))
	}
	w.Flush()
}

// printProcessDetail renders the full view of one process.
// printProcessDetail 渲染单个进程的完整视图。
func printProcessDetail(v *api.ProcessView) {
	fmt.Printf("Name:       %s\n", v.Name)
	fmt.Printf("State:      %s\n", v.State)
	fmt.Printf("Priority:   %d\n", v.Priority)
	if v.Pid > 0 {
		fmt.Printf("PID:        %d\n", v.Pid)
	}
	if v.StartedAt != "" {
		fmt.Printf("Started:    %s\n", v.StartedAt)
		fmt.Printf("Uptime:     %s\n", formatSeconds(v.UptimeSeconds))
	}
	if v.Failures > 0 {
		fmt.Printf("Failures:   %d\n", v.Failures)
	}
	if v.LastExit != "" {
		fmt.Printf("Last Exit:  %s\n", v.LastExit)
	}
	if v.LastError != "" {
		fmt.Printf("Last Error: %s\n", v.LastError)
	}
	if v.Pid > 0 {
		fmt.Printf("CPU:        %.1f%%\n", v.CPUPercent)
		fmt.Printf("Memory:     %s\n", formatBytes(v.MemoryBytes))
	}
}

// printHistoryTable renders recorded transitions, newest first.
// printHistoryTable 渲染已记录的状态转换，最新在前。
func printHistoryTable(entries []*api.HistoryEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tPROCESS\tTRANSITION\tPID\tEXIT")
	for _, e := range entries {
		pid := "-"
		if e.Pid > 0 {
			pid = fmt.Sprintf("%d", e.Pid)
		}
		exit := e.Exit
		if exit == "" {
			exit = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s -> %s\t%s\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05"), e.Process, e.From, e.To, pid, exit)
	}
	w.Flush()
}

func pidColumn(v *api.ProcessView) string {
	if v.Pid > 0 {
		return fmt.Sprintf("%d", v.Pid)
	}
	return "-"
}

func uptimeColumn(v *api.ProcessView) string {
	if v.StartedAt == "" {
		return "-"
	}
	return formatSeconds(v.UptimeSeconds)
}

func detailColumn(v *api.ProcessView) string {
	if v.LastError != "" {
		return v.LastError
	}
	if v.LastExit != "" {
		return v.LastExit
	}
	return ""
}

// formatSeconds renders an uptime as 1d2h3m4s, dropping leading zeros.
// formatSeconds 将运行时长渲染为 1d2h3m4s，省略前导零单位。
func formatSeconds(secs int64) string {
	d := time.Duration(secs) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh%dm%ds", days, hours, mins, s)
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, mins, s)
	case mins > 0:
		return fmt.Sprintf("%dm%ds", mins, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// formatBytes renders a byte count with a binary unit suffix.
// formatBytes 以二进制单位后缀渲染字节数。
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
