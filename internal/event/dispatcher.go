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

package event

import (
	"sync"

	"go.uber.org/zap"
)

// dispatchBuffer bounds the publish queue; events beyond it are dropped so
// the supervisor loop never blocks on a slow listener.
// dispatchBuffer 限定发布队列长度；超出的事件被丢弃，保证监管循环不会被
// 慢监听器阻塞。
const dispatchBuffer = 256

// Dispatcher fans transition events out to registered notifiers from a
// single goroutine.
// Dispatcher 在单个协程中将转换事件扇出给已注册的通知器。
type Dispatcher struct {
	mu        sync.Mutex
	notifiers []Notifier
	closed    bool

	ch     chan Event
	done   chan struct{}
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher and starts its fan-out goroutine.
// NewDispatcher 创建分发器并启动其分发协程。
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		ch:     make(chan Event, dispatchBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go d.run()
	return d
}

// Subscribe registers a notifier for all subsequent events.
// Subscribe 注册一个通知器，接收此后的所有事件。
func (d *Dispatcher) Subscribe(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, n)
}

// Publish enqueues an event without blocking. Events are dropped with a log
// line when the queue is full or the dispatcher is closed.
// Publish 非阻塞地入队事件。队列已满或分发器已关闭时事件被丢弃并记录日志。
func (d *Dispatcher) Publish(ev Event) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.logger.Warn("event queue full, dropping event / 事件队列已满，丢弃事件",
			zap.String("process", ev.Process),
			zap.String("to", string(ev.To)))
	}
}

// Close stops the dispatcher after draining queued events.
// Close 在排空已入队事件后停止分发器。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.ch)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		d.mu.Lock()
		targets := make([]Notifier, len(d.notifiers))
		copy(targets, d.notifiers)
		d.mu.Unlock()

		for _, n := range targets {
			n.OnEvent(ev)
		}
	}
}
