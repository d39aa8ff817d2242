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

// Package main is the entry point for the capsuled daemon.
// main 包是 capsuled 守护进程的入口点。
//
// capsuled supervises a set of long-lived child processes:
// capsuled 监管一组长生命周期的子进程，负责：
// - Starts, stops and restarts programs per configuration / 按配置启动、停止、重启程序
// - Restarts crashed programs with backoff and a retry budget / 以退避与重试预算拉起崩溃的程序
// - Serves a control API over a unix socket for capsulectl / 通过 unix 套接字为 capsulectl 提供控制 API
// - Records state transitions and notifies event listeners / 记录状态转换并通知事件监听器
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Sdoof/capsule/internal/collector"
	"github.com/Sdoof/capsule/internal/config"
	"github.com/Sdoof/capsule/internal/db"
	"github.com/Sdoof/capsule/internal/event"
	"github.com/Sdoof/capsule/internal/history"
	"github.com/Sdoof/capsule/internal/logging"
	"github.com/Sdoof/capsule/internal/process"
	"github.com/Sdoof/capsule/internal/server"
	"github.com/Sdoof/capsule/internal/supervisor"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const shutdownTimeout = 30 * time.Second

// Daemon wires every capsuled component together.
// Daemon 将 capsuled 的所有组件组装在一起。
type Daemon struct {
	// cfg holds the loaded configuration
	// cfg 保存已加载的配置
	cfg *config.Config

	// configPath is remembered for SIGHUP reloads
	// configPath 被记住以供 SIGHUP 重载使用
	configPath string

	logger *zap.Logger

	// gdb is the history database handle; nil when history is disabled
	// gdb 是历史数据库句柄；历史功能关闭时为 nil
	gdb  *gorm.DB
	repo *history.Repository

	dispatcher *event.Dispatcher
	listeners  []*event.Listener

	sup *supervisor.Supervisor
	srv *server.Server

	// shutdownCh is signalled by the control API's shutdown operation
	// shutdownCh 由控制 API 的 shutdown 操作触发
	shutdownCh chan struct{}
}

// NewDaemon loads configuration and constructs all components. Nothing is
// started yet.
// NewDaemon 加载配置并构造所有组件。此时尚未启动任何东西。
func NewDaemon(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w / 加载配置失败：%w", err, err)
	}

	logger, err := logging.New(logging.Options{
		Level:        cfg.Daemon.Loglevel,
		File:         cfg.Daemon.Logfile,
		MaxMegabytes: cfg.Daemon.LogMaxMegabytes,
		MaxBackups:   cfg.Daemon.LogBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w / 初始化日志失败：%w", err, err)
	}

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		shutdownCh: make(chan struct{}, 1),
	}
	for _, skipped := range cfg.Skipped {
		logger.Warn("skipped malformed config section",
			zap.String("section", skipped.Section),
			zap.Error(skipped.Err))
	}
	return d, nil
}

// Run brings the daemon up and blocks until a shutdown signal arrives.
// Run 拉起守护进程并阻塞，直至收到关闭信号。
func (d *Daemon) Run() error {
	fmt.Println("========================================")
	fmt.Println("  capsuled starting...")
	fmt.Println("  capsuled 正在启动...")
	fmt.Println("========================================")
	fmt.Printf("Version: %s, Commit: %s, Build: %s\n", Version, GitCommit, BuildTime)
	fmt.Printf("Config: %s\n", d.configPath)
	fmt.Printf("Control Socket: %s\n", d.cfg.SocketPath())
	fmt.Printf("Programs: %d, Listeners: %d\n", len(d.cfg.Programs), len(d.cfg.Listeners))

	// Step 1: Claim the pidfile
	// 步骤 1：占有 pidfile
	if pidfile := d.cfg.Daemon.Pidfile; pidfile != "" {
		fmt.Println("[1/5] Writing pidfile... / 写入 pidfile...")
		if err := writePidfile(pidfile); err != nil {
			return err
		}
		defer removePidfile(pidfile)
	}

	// Step 2: Open the transition history store
	// 步骤 2：打开状态转换历史存储
	fmt.Println("[2/5] Opening history store... / 打开历史存储...")
	if err := d.setupHistory(); err != nil {
		return err
	}

	// Step 3: Start event fan-out and configured listeners
	// 步骤 3：启动事件分发与已配置的监听器
	fmt.Println("[3/5] Starting event dispatch... / 启动事件分发...")
	if err := d.setupEvents(); err != nil {
		return err
	}

	// Step 4: Start the supervision loop
	// 步骤 4：启动监管循环
	fmt.Println("[4/5] Starting supervisor... / 启动监管循环...")
	d.sup = supervisor.New(d.cfg.Programs, supervisor.Options{
		Launcher:     process.NewExecLauncher(d.cfg.Daemon.ChildLogDir, d.logger),
		Dispatcher:   d.dispatcher,
		Collector:    collector.New(),
		Logger:       d.logger,
		TickInterval: d.cfg.Daemon.TickInterval,
	})
	d.sup.Run()

	// Step 5: Serve the control socket
	// 步骤 5：提供控制套接字服务
	fmt.Println("[5/5] Starting control server... / 启动控制服务...")
	handler := server.NewHandler(d.sup, d.repo, d.reload, d.requestShutdown)
	srvCfg := d.cfg.HTTPServer
	srvCfg.File = d.cfg.SocketPath()
	d.srv = server.New(srvCfg, handler, d.logger)
	if err := d.srv.Start(); err != nil {
		return fmt.Errorf("start control server: %w / 启动控制服务失败：%w", err, err)
	}

	fmt.Println("========================================")
	fmt.Println("  capsuled started successfully!")
	fmt.Println("  capsuled 启动成功！")
	fmt.Println("========================================")

	return d.wait()
}

// setupHistory opens the database and builds the repository when enabled.
// setupHistory 在历史功能启用时打开数据库并构建仓储。
func (d *Daemon) setupHistory() error {
	if !d.cfg.History.Enabled {
		fmt.Println("History store disabled / 历史存储未启用")
		return nil
	}
	gdb, err := db.Open(d.cfg.History)
	if err != nil {
		return fmt.Errorf("open history database: %w / 打开历史数据库失败：%w", err, err)
	}
	repo, err := history.NewRepository(gdb)
	if err != nil {
		db.Close(gdb)
		return fmt.Errorf("migrate history schema: %w / 迁移历史表结构失败：%w", err, err)
	}
	d.gdb = gdb
	d.repo = repo
	return nil
}

// setupEvents starts the dispatcher, wires the history recorder and spawns
// the configured event listener programs.
// setupEvents 启动分发器，接入历史记录器，并拉起配置的事件监听程序。
func (d *Daemon) setupEvents() error {
	d.dispatcher = event.NewDispatcher(d.logger)
	if d.repo != nil {
		d.dispatcher.Subscribe(history.NewRecorder(d.repo, d.logger))
	}
	for _, lc := range d.cfg.Listeners {
		l, err := event.NewListener(lc.Name, lc.Command, lc.Events, d.logger)
		if err != nil {
			return fmt.Errorf("listener %s: %w / 监听器 %s：%w", lc.Name, err, lc.Name, err)
		}
		if err := l.Start(); err != nil {
			d.logger.Warn("event listener failed to start, will retry on first event",
				zap.String("listener", lc.Name), zap.Error(err))
		}
		d.dispatcher.Subscribe(l)
		d.listeners = append(d.listeners, l)
	}
	return nil
}

// wait blocks on OS signals and the control API's shutdown request.
// SIGHUP triggers a configuration reload instead of exiting.
// wait 阻塞等待 OS 信号与控制 API 的关闭请求。
// SIGHUP 触发配置重载而非退出。
func (d *Daemon) wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				fmt.Println("Received SIGHUP, reloading configuration / 收到 SIGHUP，重载配置")
				if diff, err := d.reload(); err != nil {
					d.logger.Error("reload failed", zap.Error(err))
				} else {
					d.logger.Info("reload complete",
						zap.Strings("added", diff.Added),
						zap.Strings("removed", diff.Removed),
						zap.Strings("updated", diff.Updated))
				}
				continue
			}
			fmt.Printf("\nReceived signal: %v / 收到信号：%v\n", sig, sig)
			d.shutdown()
			return nil
		case <-d.shutdownCh:
			fmt.Println("Shutdown requested via control API / 通过控制 API 请求关闭")
			d.shutdown()
			return nil
		}
	}
}

// reload re-reads the configuration file and applies the program diff.
// Daemon-level settings (socket, logging) keep their original values.
// reload 重新读取配置文件并应用程序差异。
// 守护进程级设置（套接字、日志）保持原值不变。
func (d *Daemon) reload() (supervisor.ReloadResult, error) {
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return supervisor.ReloadResult{}, fmt.Errorf("reload config: %w / 重载配置失败：%w", err, err)
	}
	for _, skipped := range cfg.Skipped {
		d.logger.Warn("skipped malformed config section",
			zap.String("section", skipped.Section),
			zap.Error(skipped.Err))
	}
	diff, err := d.sup.Reload(cfg.Programs)
	if err != nil {
		return supervisor.ReloadResult{}, err
	}
	d.cfg.Programs = cfg.Programs
	return diff, nil
}

// requestShutdown is handed to the control API; it must not block the
// HTTP handler.
// requestShutdown 交给控制 API 使用；不得阻塞 HTTP 处理器。
func (d *Daemon) requestShutdown() {
	select {
	case d.shutdownCh <- struct{}{}:
	default:
	}
}

// shutdown tears the daemon down in reverse start order.
// shutdown 按启动的相反顺序拆除守护进程。
func (d *Daemon) shutdown() {
	fmt.Println("========================================")
	fmt.Println("  Shutting down capsuled...")
	fmt.Println("  正在关闭 capsuled...")
	fmt.Println("========================================")

	// Step 1: Stop accepting control requests
	// 步骤 1：停止接受控制请求
	fmt.Println("[1/4] Stopping control server... / 停止控制服务...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := d.srv.Stop(ctx); err != nil {
		d.logger.Warn("control server stop", zap.Error(err))
	}
	cancel()

	// Step 2: Stop all supervised programs and the loop
	// 步骤 2：停止所有受监管程序与循环
	fmt.Println("[2/4] Stopping supervised programs... / 停止受监管程序...")
	d.sup.Shutdown()
	select {
	case <-d.sup.Done():
	case <-time.After(shutdownTimeout):
		d.logger.Warn("supervisor did not settle before timeout")
	}

	// Step 3: Drain events and stop listeners
	// 步骤 3：排空事件并停止监听器
	fmt.Println("[3/4] Stopping event dispatch... / 停止事件分发...")
	d.dispatcher.Close()
	for _, l := range d.listeners {
		l.Close()
	}

	// Step 4: Close the history store
	// 步骤 4：关闭历史存储
	fmt.Println("[4/4] Closing history store... / 关闭历史存储...")
	if d.gdb != nil {
		if err := db.Close(d.gdb); err != nil {
			d.logger.Warn("history database close", zap.Error(err))
		}
	}

	d.logger.Sync()
	fmt.Println("========================================")
	fmt.Println("  capsuled shutdown complete")
	fmt.Println("  capsuled 关闭完成")
	fmt.Println("========================================")
}

// rootCmd is the root command for the capsuled CLI
// rootCmd 是 capsuled CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "capsuled",
	Short: "capsuled - process supervision daemon",
	Long: `capsuled supervises a set of long-lived child processes.
capsuled 监管一组长生命周期的子进程。

It reads an INI configuration describing the programs to run and:
它读取描述待运行程序的 INI 配置，并：
- Starts them in priority order / 按优先级顺序启动
- Restarts crashes with backoff and a retry budget / 以退避与重试预算处理崩溃
- Serves a unix-socket control API for capsulectl / 通过 unix 套接字为 capsulectl 提供控制 API`,
	RunE: runDaemon,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("capsuled\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Go Version: %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// configFile is the path to the configuration file
// configFile 是配置文件的路径
var configFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultConfigPath,
		"config file path / 配置文件路径")
	rootCmd.AddCommand(versionCmd)
}

// runDaemon is the main entry point for the daemon
// runDaemon 是守护进程的主入口点
func runDaemon(cmd *cobra.Command, args []string) error {
	d, err := NewDaemon(configFile)
	if err != nil {
		return err
	}
	return d.Run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
