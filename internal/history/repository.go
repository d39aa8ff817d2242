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

package history

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// defaultListLimit bounds unpaginated history queries.
// defaultListLimit 限制未分页历史查询的条数。
const defaultListLimit = 100

// Repository provides data access operations for TransitionRecord entities.
// Repository 提供 TransitionRecord 实体的数据访问操作。
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository instance and migrates the schema.
// NewRepository 创建一个新的 Repository 实例并迁移表结构。
func NewRepository(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&TransitionRecord{}); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Create persists one transition record.
// Create 持久化一条转换记录。
func (r *Repository) Create(ctx context.Context, rec *TransitionRecord) error {
	// 验证必填字段
	if rec.EventID == "" {
		return ErrEventIDEmpty
	}
	if rec.Process == "" {
		return ErrProcessEmpty
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// List retrieves transition records by filter, most recent first.
// List 按过滤条件获取转换记录，按时间倒序。
func (r *Repository) List(ctx context.Context, filter *Filter) ([]*TransitionRecord, error) {
	query := r.db.WithContext(ctx).Model(&TransitionRecord{})

	limit := defaultListLimit
	if filter != nil {
		if filter.Process != "" {
			query = query.Where("process = ?", filter.Process)
		}
		if filter.ToState != "" {
			query = query.Where("to_state = ?", filter.ToState)
		}
		if filter.Since != nil {
			query = query.Where("at >= ?", *filter.Since)
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}

	var records []*TransitionRecord
	err := query.Order("at DESC, id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Purge deletes records older than the cutoff and returns the deleted count.
// Purge 删除早于截止时间的记录并返回删除条数。
func (r *Repository) Purge(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("at < ?", before).Delete(&TransitionRecord{})
	return result.RowsAffected, result.Error
}
