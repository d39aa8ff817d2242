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

// Package main is the capsulectl command line client for capsuled.
// main 包是 capsuled 的命令行客户端 capsulectl。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sdoof/capsule/internal/config"
	"github.com/Sdoof/capsule/internal/ctl"
	"github.com/Sdoof/capsule/internal/server"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Exit codes mirror the daemon's error classes so scripts can branch on
// them without parsing output.
// 退出码与守护进程的错误类别对应，脚本无需解析输出即可分支。
const (
	exitOK        = 0
	exitTransport = 1
	exitUnknown   = 2
	exitConflict  = 3
	exitSpawn     = 4
)

var (
	configFile string
	serverURL  string
)

// newClient resolves the control socket and builds a client. An explicit
// --serverurl wins; otherwise the config file's [capsulectl] section decides.
// newClient 解析控制套接字并构建客户端。显式的 --serverurl 优先；
// 否则由配置文件的 [capsulectl] 段决定。
func newClient() *ctl.Client {
	if serverURL != "" {
		return ctl.NewClient(strings.TrimPrefix(serverURL, "unix://"))
	}
	if cfg, err := config.Load(configFile); err == nil {
		return ctl.NewClient(cfg.SocketPath())
	}
	return ctl.NewClient(config.DefaultSocketPath)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

var rootCmd = &cobra.Command{
	Use:   "capsulectl",
	Short: "capsulectl - control client for capsuled",
	Long: `capsulectl controls a running capsuled daemon over its unix socket.
capsulectl 通过 unix 套接字控制运行中的 capsuled 守护进程。`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show process status / 显示进程状态",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()
		cli := newClient()
		if len(args) == 1 {
			view, err := cli.GetProcess(ctx, args[0])
			if err != nil {
				return err
			}
			printProcessDetail(view)
			return nil
		}
		views, err := cli.ListProcesses(ctx)
		if err != nil {
			return err
		}
		printProcessTable(views)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a process / 启动进程",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()
		view, err := newClient().StartProcess(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", view.Name, view.State)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a process / 停止进程",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()
		view, err := newClient().StopProcess(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", view.Name, view.State)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "Restart a process / 重启进程",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()
		view, err := newClient().RestartProcess(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", view.Name, view.State)
		return nil
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon configuration / 重载守护进程配置",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()
		diff, err := newClient().Reload(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("added:   %s\n", strings.Join(diff.Added, ", "))
		fmt.Printf("removed: %s\n", strings.Join(diff.Removed, ", "))
		fmt.Printf("updated: %s\n", strings.Join(diff.Updated, ", "))
		return nil
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop all processes and exit the daemon / 停止所有进程并退出守护进程",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()
		if err := newClient().Shutdown(ctx); err != nil {
			return err
		}
		fmt.Println("shutdown requested")
		return nil
	},
}

var (
	historyToState string
	historySince   string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Show recorded state transitions / 显示已记录的状态转换",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()
		q := ctl.HistoryQuery{ToState: historyToState, Limit: historyLimit}
		if historySince != "" {
			since, err := time.Parse(time.RFC3339, historySince)
			if err != nil {
				return fmt.Errorf("invalid --since, want RFC3339: %w / --since 无效，需要 RFC3339：%w", err, err)
			}
			q.Since = since
		}
		entries, err := newClient().History(ctx, args[0], q)
		if err != nil {
			return err
		}
		printHistoryTable(entries)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("capsulectl\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Go Version: %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultConfigPath,
		"config file path / 配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "serverurl", "s", "",
		"control socket url, e.g. unix:///tmp/capsule.sock / 控制套接字地址")

	historyCmd.Flags().StringVar(&historyToState, "to-state", "", "only transitions into this state / 仅该目标状态")
	historyCmd.Flags().StringVar(&historySince, "since", "", "only transitions at or after this RFC3339 time / 仅该时刻之后")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "maximum entries to return / 返回条数上限")

	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, restartCmd, reloadCmd, shutdownCmd, historyCmd, versionCmd)
}

// exitCode maps an error onto the documented exit code classes.
// exitCode 将错误映射到约定的退出码类别。
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var apiErr *ctl.APIError
	if !errors.As(err, &apiErr) {
		return exitTransport
	}
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		return exitUnknown
	case http.StatusConflict:
		return exitConflict
	}
	if apiErr.Code == server.ErrCodeSpawnFailed {
		return exitSpawn
	}
	return exitTransport
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
