// Copyright (c) vstream Authors.
// Licensed under the MIT License.

/*
Package vstream 实现面向 VSI 外设的块流式传输引擎。

# 概述

应用与外设之间通过一个固定容量的环形块缓冲区交换数据：中断处理函数
推进生产者游标，应用通过 GetBlock/ReleaseBlock 推进获取/释放游标。
同一套逻辑按 Direction（输入/输出）和 ChannelConfig（音频/视频）
为每个通道实例化一次，通道之间不共享状态。

# 生命周期

	Uninitialized → Initialize → Idle → SetBuf → Start → Active → Stop → Idle
	任意状态 → Uninitialize → Uninitialized

# 核心类型

  - Stream：单通道驱动：Initialize / SetBuf / Start / Stop / GetBlock / ReleaseBlock / GetStatus
  - ChannelConfig：AudioConfig 或 VideoConfig，写入外设静态配置并推导定时器间隔
  - Platform：按 ChannelID 管理 AudioIn / AudioOut / VideoIn / VideoOut
  - Observer：事件观测接口，由 internal/metrics 实现

# 事件

回调携带 EventData / EventOverflow / EventUnderflow / EventEOS 的组合掩码，
默认在每个 Stream 独立的分发 goroutine 上执行；同一次中断只回调一次，
回调执行期间到达的事件会合并。溢出与欠载只在连续模式下报告，
并以粘滞标志保存到下一次 GetStatus。

# 并发约定

GetBlock 与 ReleaseBlock 不加锁，必须由同一个 goroutine 调用；
控制操作可以从任意 goroutine 调用；Snapshot 可以并发读取。
*/
package vstream
