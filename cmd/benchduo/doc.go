// 版权所有 2025 BenchDuo Authors
// Licensed under the MIT License.

/*
Package main 提供 BenchDuo 服务端程序入口。

# 概述

cmd/benchduo 是 BenchDuo 的可执行入口，提供 HTTP API 服务、
数据库建表、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）与 Prometheus 指标采集。

# 核心类型

  - Server         — 主服务器，装配数据库、对局引擎、调度器与广播中枢
  - Middleware     — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库建表）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、RateLimiter（基于 IP）、MetricsMiddleware
  - websocket 广播：/ws 端点推送对局回合与收尾事件
  - 优雅关闭：信号监听 → 关闭 HTTP → 排空队列 → 关闭数据库
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
