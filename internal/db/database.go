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

// Package db opens the transition history database.
// db 包负责打开状态转换历史数据库。
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Sdoof/capsule/internal/config"
)

// DatabaseType 数据库类型常量
const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypePostgres = "postgres"
	DatabaseTypeMySQL    = "mysql"
)

// Open 根据历史存储配置建立数据库连接
// 支持 SQLite、MySQL、PostgreSQL 三种数据库类型，默认使用 SQLite
func Open(cfg config.HistoryConfig) (*gorm.DB, error) {
	dbType := cfg.Type
	if dbType == "" {
		dbType = DatabaseTypeSQLite
	}

	var dialector gorm.Dialector
	var err error
	switch dbType {
	case DatabaseTypeSQLite:
		dialector, err = sqliteDialector(cfg.Path)
	case DatabaseTypeMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DatabaseTypePostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("db: unsupported database type %s / 不支持的数据库类型 %s", dbType, dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("db: init %s dialector failed / 初始化 %s 驱动失败: %w", dbType, dbType, err)
	}

	// 守护进程的日志走 zap，gorm 自身保持静默，仅保留错误
	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s failed / 连接 %s 数据库失败: %w", dbType, dbType, err)
	}
	return gdb, nil
}

// sqliteDialector 初始化 SQLite 驱动并确保目录存在
func sqliteDialector(path string) (gorm.Dialector, error) {
	if path == "" {
		path = config.DefaultHistoryPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory failed / 创建 SQLite 目录失败: %w", err)
	}
	return sqlite.Open(path), nil
}

// Close 关闭底层数据库连接
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("db: obtain underlying connection failed / 获取底层数据库连接失败: %w", err)
	}
	return sqlDB.Close()
}
