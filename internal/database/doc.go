// 版权所有 2025 BenchDuo Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM + SQLite 的存储层，支持健康检查与事务重试。

# 概述

本包通过 Open 打开 SQLite 库并迁移全部实体表，通过 PoolManager
封装 GORM 与 database/sql 的连接池配置，统一管理连接生命周期。
后台健康检查定时探活，异常时通过 zap 日志输出诊断信息。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Close() 等生命周期方法。
  - PoolConfig：连接池配置。SQLite 单写者，默认连接数保持小值。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 模式迁移：Migrate 幂等迁移六张实体表，可在每次启动时调用。
  - 健康检查：后台定时 PingContext 探活。
  - 事务管理：WithTransaction 提供单次事务执行，
    WithTransactionRetry 针对 SQLite 锁冲突做指数退避重试。
*/
package database
