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

// Package history persists process state transitions to the configured
// database so operators can inspect what a program did overnight.
// history 包将进程状态转换持久化到配置的数据库，便于运维人员追溯程序的
// 历史行为。
package history

import "time"

// TransitionRecord is one persisted state transition of a supervised process.
// TransitionRecord 是受监管进程的一次已持久化的状态转换。
type TransitionRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID   string    `json:"event_id" gorm:"size:36;uniqueIndex;not null"`
	Process   string    `json:"process" gorm:"size:100;not null;index"`
	FromState string    `json:"from_state" gorm:"size:20;not null"`
	ToState   string    `json:"to_state" gorm:"size:20;not null;index"`
	Pid       int       `json:"pid"`
	Exit      string    `json:"exit" gorm:"size:100"`
	At        time.Time `json:"at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the TransitionRecord model.
// TableName 指定 TransitionRecord 模型的表名。
func (TransitionRecord) TableName() string {
	return "transition_records"
}

// Filter represents filter criteria for querying transition records.
// Filter 表示查询转换记录的过滤条件。
type Filter struct {
	Process string     `json:"process"`
	ToState string     `json:"to_state"`
	Since   *time.Time `json:"since"`
	Limit   int        `json:"limit"`
}
