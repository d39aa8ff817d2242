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

	"go.uber.org/zap"

	"github.com/Sdoof/capsule/internal/event"
)

// recordTimeout bounds one history insert so a stuck database never stalls
// event fan-out for long.
// recordTimeout 限制单次历史写入时长，避免数据库卡顿长时间拖住事件分发。
const recordTimeout = 2 * time.Second

// Recorder subscribes to transition events and persists them. Persistence
// failures are logged and dropped: history is an observability aid, never a
// reason to disturb supervision.
// Recorder 订阅转换事件并持久化。持久化失败仅记录日志后丢弃：历史是观测
// 辅助，绝不能干扰监管本身。
type Recorder struct {
	repo   *Repository
	logger *zap.Logger
}

// NewRecorder creates a recorder backed by the given repository.
// NewRecorder 创建基于给定仓储的记录器。
func NewRecorder(repo *Repository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// OnEvent implements event.Notifier.
// OnEvent 实现 event.Notifier。
func (r *Recorder) OnEvent(ev event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	rec := &TransitionRecord{
		EventID:   ev.ID,
		Process:   ev.Process,
		FromState: string(ev.From),
		ToState:   string(ev.To),
		Pid:       ev.Pid,
		Exit:      ev.Exit,
		At:        ev.Time,
	}
	if err := r.repo.Create(ctx, rec); err != nil {
		r.logger.Warn("record transition failed / 记录状态转换失败",
			zap.String("process", ev.Process),
			zap.Error(err))
	}
}
