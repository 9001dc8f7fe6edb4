// Copyright (c) vstream Authors.
// Licensed under the MIT License.

/*
Package sim 提供 VSI 外设的软件实现，用于单元测试与命令行仿真。

# 概述

Peripheral 实现 vsi.Registers 与 vsi.MemoryBinder：维护完整的寄存器文件，
按写入顺序记录访问日志（含屏障），并模拟外设行为：

  - CONTROL.ENABLE 上升沿打开数据流并置位 STATUS.ACTIVE，下降沿关闭
  - 定时器按 Interval（微秒）周期或单次溢出，触发 DMA 与中断
  - DMA 在 BlockIndex 处搬运一块后推进索引并置位 STATUS.DATA
  - 输入数据耗尽时置位 STATUS.EOS
  - 读取 STATUS 清除 DATA 位

Controller 实现 vsi.InterruptController，所有中断串行投递，处理函数不会重入。

# 数据后端

输入使用 Source（io.Reader），输出使用 Sink（io.Writer）。通过 FILENAME
寄存器写入文件名后，外设在 WithFileRoot 指定的目录中打开文件；
.wav 文件经 go-audio/wav 编解码，其余文件按原始字节处理。

# 手动模式

WithManualTiming 下定时器不会自动运行，测试通过 Complete 逐个驱动传输，
通过 SignalEOS 注入流结束，通过 RefuseActivation 注入激活失败。
*/
package sim
