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

// Package config 配置解析属性测试
package config

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ParseExitCodesRoundTrip 测试任意合法的退出码列表序列化后应能无损解析回来
func TestProperty_ParseExitCodesRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// 属性：对于任意退出码切片，逗号拼接后解析应得到相同的切片
	properties.Property("exit codes survive a format/parse round trip", prop.ForAll(
		func(codes []int) bool {
			if len(codes) == 0 {
				return true // 空列表表示默认值，单独测试
			}

			parts := make([]string, len(codes))
			for i, c := range codes {
				parts[i] = strconv.Itoa(c)
			}

			parsed, err := parseExitCodes(strings.Join(parts, ","))
			if err != nil {
				return false
			}
			if len(parsed) != len(codes) {
				return false
			}
			for i := range codes {
				if parsed[i] != codes[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 255)),
	))

	properties.TestingRun(t)
}

// TestProperty_ParseMegabytesRoundsUp 测试字节数换算为 MB 必须向上取整且不丢失非零值
func TestProperty_ParseMegabytesRoundsUp(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("byte counts round up to the enclosing megabyte", prop.ForAll(
		func(n int64) bool {
			mb, err := parseMegabytes(strconv.FormatInt(n, 10))
			if err != nil {
				return false
			}
			// 非零字节数不可折算为零 MB
			if n > 0 && mb == 0 {
				return false
			}
			// 不得向下取整
			if int64(mb)*(1<<20) < n {
				return false
			}
			// 也不得多进一整个 MB
			if mb > 0 && int64(mb-1)*(1<<20) >= n {
				return false
			}
			return true
		},
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}

// TestProperty_SecondsOrDefault 测试配置中的纯数字一律按秒解释
func TestProperty_SecondsOrDefault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("bare integers are interpreted as seconds", prop.ForAll(
		func(n int) bool {
			got := secondsOrDefault(strconv.Itoa(n), DefaultTickInterval)
			return got == time.Duration(n)*time.Second
		},
		gen.IntRange(0, 86400),
	))

	properties.TestingRun(t)
}

// TestProperty_LoadProgramSection 测试任意程序名与优先级的配置段应被完整加载
func TestProperty_LoadProgramSection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30 // 每次都要写临时文件，控制轮数

	properties := gopter.NewProperties(parameters)

	properties.Property("program sections survive a write/load round trip", prop.ForAll(
		func(name string, priority int, retries int) bool {
			content := fmt.Sprintf(`
[unix_http_server]
file = /tmp/capsule.sock

[program:%s]
command = /usr/bin/%s
priority = %d
startretries = %d
`, name, name, priority, retries)

			path := writeConfig(t, content)
			cfg, err := Load(path)
			if err != nil {
				return false
			}
			if len(cfg.Programs) != 1 {
				return false
			}
			p := cfg.Programs[0]
			return p.Name == name && p.Priority == priority && p.StartRetries == retries
		},
		gen.RegexMatch(`[a-z][a-z0-9_-]{0,15}`),
		gen.IntRange(1, 999),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
