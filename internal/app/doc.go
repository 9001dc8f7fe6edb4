// Copyright (c) vstream Authors.
// Licensed under the MIT License.

// Package app 组装 vstream 的示例应用。
//
// SimBoard 按配置用软件外设搭建开发板；Loopback 把输入通道的每一块
// 复制到对应的输出通道（音频 audio_in→audio_out，视频 video_in→video_out），
// 直到输入报告流结束、达到块数上限或会话超时。每次会话带有随机的会话 ID，
// 会话与每个通道的 Start/Stop 都会记录 OpenTelemetry span。
package app
