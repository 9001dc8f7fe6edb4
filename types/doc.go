// Copyright (c) vstream Authors.
// Licensed under the MIT License.

/*
Package types 提供 vstream 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 vsi、vstream、config
等上层模块提供统一的错误契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含通道标记与 Cause 链

# 错误码

  - INVALID_PARAMETER：缓冲区为空、大小为 0 或块大小超过总大小
  - INVALID_STATE：操作顺序错误，调用方修正后可恢复
  - DEVICE_ERROR：外设在 Start 后未报告激活，不做内部重试

溢出（overflow）、欠载（underflow）与流结束（EOS）是正常的流式状态，
通过状态位与事件位报告，不属于错误。
*/
package types
