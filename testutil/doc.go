// 版权所有 2025 BenchDuo Authors
// Licensed under the MIT License.

/*
Package testutil 提供 BenchDuo 测试的通用辅助设施。

# 子包

  - mocks    — 桩连接器（确定性回显，记录调用）
  - fixtures — 预置模型与 Agent 记录

# 主要能力

  - TestContext / CancelledContext：统一的测试上下文管理
  - OpenDB：内存 sqlite 数据库 + 自动建表
  - WaitFor / WaitForChannel：异步条件等待
  - MustJSON / MustParseJSON：测试数据序列化
*/
package testutil
