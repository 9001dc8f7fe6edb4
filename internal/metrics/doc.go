// Copyright (c) vstream Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的流指标采集能力。

# 概述

Collector 实现 vstream.Observer，由各通道的流在生命周期操作和
中断处理路径上调用，因此所有记录方法都是无锁且非阻塞的。
指标按 namespace 隔离，可注册到默认 registry 或自定义 registry。

# 指标

  - blocks_total{channel,direction}：外设完成的块传输数
  - xruns_total{channel,kind}：溢出/欠载次数
  - eos_total{channel}：流结束通知次数
  - start_failures_total{channel}：设备未激活的 Start 次数
  - stream_active{channel}：通道是否正在传输
  - blocks_owned{channel}：应用当前持有的块数
  - http_requests_total / http_request_duration_seconds：诊断服务请求
*/
package metrics
