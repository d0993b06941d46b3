// Copyright 2026 BenchDuo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style license.

/*
Package types 定义 BenchDuo 的核心领域实体与共享类型。

# 概述

types 是依赖层级最低的包，不导入任何项目内部包，
所有其它包（connector、duel、batch、status、evaluate、api）都依赖它。

# 核心实体

  - Model：已注册的推理后端（ollama/mlx/tensorrt），携带可达性与预热状态
  - Agent：绑定到一个 Model 的对话角色（系统提示词 + 生成参数）
  - Conversation / Message：一场双 Agent 对话及其有序消息序列
  - BatchJob：同一配对重复执行 N 轮对话的批量任务，带断点续跑检查点
  - EvaluationJob：针对已完成对话的多裁判质量评估任务

# 其它

  - Error / ErrorCode：统一错误分类（配置错误、连接错误、解析错误等）
  - EstimateTokens：基于空白分词的占位 token 估算（仅用于展示指标）
*/
package types
