// 版权所有 2025 BenchDuo Authors
// Licensed under the MIT License.

/*
Package handlers 提供 BenchDuo HTTP API 的请求处理器实现。

# 概述

handlers 包实现了模型注册、Agent 配置、交互对局、批量任务与
对话质量评估的全部 HTTP 端点，以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - ModelHandler    — 模型 CRUD、引擎探活、后端探测与预热
  - AgentHandler    — Agent CRUD 与就绪状态查询
  - ChatHandler     — 交互对局启动与对话回放
  - BatchHandler    — 批量任务创建、查询与取消
  - EvaluateHandler — 对话质量评估
  - HealthHandler   — 存活/就绪探针与版本信息
  - Response        — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo       — 结构化错误信息，含 code、message、retryable 标记

# 主要能力

  - 统一响应格式：WriteSuccess / WriteCreated / WriteError / WriteJSON
  - 请求验证：DecodeJSONBody（严格模式，拒绝未知字段）
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
