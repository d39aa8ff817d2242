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

// Package server exposes the control API over a unix domain socket. The
// socket's permission bits are the entire authentication model, mirroring
// how supervisord guards its unix_http_server.
// server 包通过 unix 域套接字暴露控制 API。套接字权限位即全部鉴权模型，
// 与 supervisord 保护其 unix_http_server 的方式一致。
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sdoof/capsule/internal/config"
)

// Server runs the control API over the configured unix socket.
// Server 在配置的 unix 套接字上运行控制 API。
type Server struct {
	cfg    config.HTTPServerConfig
	engine *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// New builds the server with its routes mounted.
// New 构建已挂载路由的服务端。
func New(cfg config.HTTPServerConfig, handler *Handler, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	handler.Register(engine)

	return &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
	}
}

// Start binds the unix socket and serves in the background. A stale socket
// file from a previous run is removed first.
// Start 绑定 unix 套接字并在后台提供服务。上一次运行遗留的套接字文件会先
// 被清理。
func (s *Server) Start() error {
	file := s.cfg.File
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("server: create socket directory failed: %w", err)
	}
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("server: remove stale socket failed: %w", err)
	}

	ln, err := net.Listen("unix", file)
	if err != nil {
		return fmt.Errorf("server: listen on %s failed: %w", file, err)
	}
	if err := os.Chmod(file, s.cfg.Chmod); err != nil {
		_ = ln.Close()
		return fmt.Errorf("server: chmod socket failed: %w", err)
	}

	s.srv = &http.Server{Handler: s.engine}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control API server stopped / 控制 API 服务异常停止", zap.Error(err))
		}
	}()

	s.logger.Info("control API listening / 控制 API 开始监听",
		zap.String("socket", file),
		zap.String("chmod", s.cfg.Chmod.String()),
	)
	return nil
}

// Stop shuts the server down and removes the socket file.
// Stop 关闭服务并删除套接字文件。
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	if rmErr := os.Remove(s.cfg.File); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// requestLogger 以 debug 级别记录每个控制请求
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("control request / 控制请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
