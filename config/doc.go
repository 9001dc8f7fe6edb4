// Copyright (c) vstream Authors.
// Licensed under the MIT License.

// Package config 提供 vstream 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（VSTREAM_ 前缀）的顺序合并，
// 通道配置可直接转换为 vstream.AudioConfig / vstream.VideoConfig。
// Watcher 轮询配置文件，在变更后重新加载并通知订阅者，
// 命令行用它在运行时调整日志级别。
package config
