// Copyright (c) vstream Authors.
// Licensed under the MIT License.

/*
Package vsi 描述虚拟流接口（Virtual Streaming Interface）外设的寄存器契约。

# 概述

每个 VSI 实例是一组固定偏移的 32 位寄存器：中断请求（IRQ）、1MHz 定时器、
DMA 控制器以及 64 个用户寄存器。驱动层不直接访问内存映射 I/O，而是通过
Registers 接口进行类型化读写，从而可以在单元测试中用软件外设替换真实硬件。

# 核心接口

  - Registers：按 Offset 读写寄存器，Barrier 保证写入顺序
  - InterruptController：按 IRQ 号注册/注销中断处理函数
  - MemoryBinder：可选能力，让软件外设访问调用方持有的流缓冲区
  - Instance：一个外设实例：名称、基地址、IRQ 号与上述接口

# 寄存器布局

  - IRQ   0x000  Enable / Set / Clear / Status
  - Timer 0x100  Control / Interval(µs) / Count
  - DMA   0x200  Control / Address / BlockSize / BlockNum / BlockIndex
  - Regs  0x300  64 个用户寄存器，含义由 Layout 按音频/视频配置描述
*/
package vsi
