// Copyright (c) vstream Authors.
// Licensed under the MIT License.

/*
Package main 提供 vstream 命令行程序入口。

# 概述

cmd/vstream 在软件 VSI 外设组成的开发板上运行回环会话：
输入通道的每一块被复制到对应的输出通道，结束后把会话结果以 JSON
输出到标准输出。

# 主要能力

  - 子命令：run（运行回环会话）、version、help
  - 配置：YAML 文件 + VSTREAM_ 环境变量，--max-blocks 覆盖会话块数上限
  - 日志级别热调整：Watcher 监听配置文件，变更后更新 zap.AtomicLevel
  - 指标：Prometheus 独立 Registry，同时经 OTel StreamObserver 导出
  - 诊断服务：server.enabled 为 true 时提供 /healthz、/status、/metrics、/events
  - 优雅关闭：SIGINT/SIGTERM 取消会话 → 停止流 → 关闭诊断服务 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
