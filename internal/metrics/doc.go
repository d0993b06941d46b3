// 版权所有 2025 BenchDuo Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、连接器、对局、批处理与评测五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 连接器指标：后端对话调用计数与耗时、引擎探活结果，
    按 backend 分组。
  - 对局指标：回合计数、对话终态计数、估算 Token 累计。
  - 批处理指标：run 与 job 的终态计数、队列深度 Gauge。
  - 评测指标：评测任务终态计数、裁判输出解析结果分布。
*/
package metrics
