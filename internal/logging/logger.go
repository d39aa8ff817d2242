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

// Package logging builds the daemon's zap logger with size-based rotation.
// logging 包构建守护进程的 zap 日志器，支持按大小轮转。
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options describe where and how verbosely the daemon logs.
// Options 描述守护进程日志的输出位置与详细程度。
type Options struct {
	// Level is one of debug, info, warn, error.
	// Level 为 debug、info、warn、error 之一。
	Level string

	// File is the log file path; empty logs to stderr in console format.
	// File 是日志文件路径；为空时以 console 格式输出到 stderr。
	File string

	// MaxMegabytes is the rotation size of the log file.
	// MaxMegabytes 是日志文件的轮转大小（MB）。
	MaxMegabytes int

	// MaxBackups is the number of rotated files to keep.
	// MaxBackups 是保留的轮转文件数量。
	MaxBackups int
}

// New creates the logger. File output is JSON through lumberjack so the
// [capsuled] logfile rotation settings apply; stderr output is console
// encoded for interactive runs.
// New 创建日志器。文件输出为经 lumberjack 的 JSON，使 [capsuled] 的
// logfile 轮转配置生效；stderr 输出为 console 编码，便于交互运行。
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var core zapcore.Core
	if opts.File == "" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		)
	} else {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		maxSize := opts.MaxMegabytes
		if maxSize == 0 {
			maxSize = 50
		}
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
		})
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level)
	}

	return zap.New(core, zap.AddCaller()), nil
}

// parseLevel maps the configured level name to a zap level.
// parseLevel 将配置的级别名映射为 zap 级别。
func parseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("logging: invalid log level %q (must be debug, info, warn, or error)", name)
	}
}
