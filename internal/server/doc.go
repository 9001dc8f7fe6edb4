// Copyright (c) vstream Authors.
// Licensed under the MIT License.

/*
包 server 提供诊断 HTTP 服务：服务器生命周期管理与诊断路由。

# 核心类型

  - Manager：封装 net/http.Server，非阻塞启动、优雅关闭与异步错误传播。
  - Hub：把流事件扇出给 websocket 订阅者，发布方从不阻塞。
  - NewHandler：组装诊断路由。

# 路由

  - GET /healthz：存活检查
  - GET /status：各通道的诊断快照（游标、标志、块几何），不清除粘滞标志
  - GET /metrics：Prometheus 指标
  - GET /events：websocket 事件流，每个事件掩码一条 JSON 文本帧，
    可按客户端限速
*/
package server
