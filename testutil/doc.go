// Copyright (c) vstream Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 vstream 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，自动注册 Cleanup
  - 日志辅助: TestLogger 输出到 t.Log
  - 软件外设: NewManualPeripheral 创建手动计时的 sim.Peripheral
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue / AssertEventuallyEqual
  - 异步辅助: WaitFor / WaitForChannel / Recorder（收集回调参数）

# 子包

  - testutil/mocks: MockObserver，记录 vstream.Observer 的全部调用
  - testutil/fixtures: WAV 测试文件的写入与读取、自签名 TLS 证书

# 使用示例

	periph := testutil.NewManualPeripheral(t, "vsi0", vsi.AudioLayout)
	events := testutil.NewRecorder[vstream.Event]()
	s, _ := vstream.NewStream("audio_in", vstream.DirectionIn, periph.Instance(), cfg)
	_ = s.Initialize(events.Record)
*/
package testutil
