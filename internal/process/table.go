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

package process

import "sort"

// Table is the authoritative name-keyed registry of process controllers.
//
// Like the controllers it holds, the table is mutated only from the
// supervisor loop goroutine; external readers go through the supervisor's
// intent queue rather than touching the table directly.
//
// Table 是以名称为键的进程控制器权威注册表。
//
// 与其持有的控制器一样，Table 仅在监管循环 goroutine 中被修改；
// 外部读取方通过监管器的意图队列访问，而不直接触碰表。
type Table struct {
	entries map[string]*Controller
}

// NewTable creates an empty table.
// NewTable 创建空表。
func NewTable() *Table {
	return &Table{entries: make(map[string]*Controller)}
}

// Get returns the controller for name.
// Get 返回指定名称的控制器。
func (t *Table) Get(name string) (*Controller, error) {
	c, ok := t.entries[name]
	if !ok {
		return nil, ErrUnknownProcess
	}
	return c, nil
}

// Upsert inserts or replaces the controller for its program name.
// Upsert 插入或替换对应程序名的控制器。
func (t *Table) Upsert(c *Controller) {
	t.entries[c.Spec().Name] = c
}

// Remove drops the controller for name, if present.
// Remove 删除指定名称的控制器（若存在）。
func (t *Table) Remove(name string) {
	delete(t.entries, name)
}

// Len returns the number of supervised programs.
// Len 返回受监管程序的数量。
func (t *Table) Len() int { return len(t.entries) }

// Names returns all program names in start order.
// Names 按启动顺序返回所有程序名。
func (t *Table) Names() []string {
	list := t.StartOrder()
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Spec().Name)
	}
	return names
}

// StartOrder returns the controllers ordered by ascending priority, ties
// broken by name. Lower priority numbers are foundational and start first.
// StartOrder 返回按优先级升序排列的控制器，同优先级按名称排序。
// 优先级数值越低越基础，越先启动。
func (t *Table) StartOrder() []*Controller {
	list := make([]*Controller, 0, len(t.entries))
	for _, c := range t.entries {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i].Spec(), list[j].Spec()
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Name < b.Name
	})
	return list
}

// StopOrder returns the controllers in the reverse of StartOrder: higher
// priority numbers stop first.
// StopOrder 返回 StartOrder 的逆序：优先级数值越高越先停止。
func (t *Table) StopOrder() []*Controller {
	list := t.StartOrder()
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list
}

// AllSettled reports whether no controller holds a live or pending OS
// process, i.e. shutdown may complete.
// AllSettled 报告是否已没有控制器持有存活或待启动的 OS 进程，即关闭可以完成。
func (t *Table) AllSettled() bool {
	for _, c := range t.entries {
		if c.State().IsActive() {
			return false
		}
	}
	return true
}
