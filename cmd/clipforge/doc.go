// 版权所有 2024 ClipForge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 ClipForge 服务端与命令行程序入口。

# 概述

cmd/clipforge 是 ClipForge 的可执行入口，提供 HTTP API 服务、本地
批处理、目录监听、数据库迁移、健康检查和版本查询等子命令。程序支持
YAML 配置文件加载、结构化日志（zap）、Prometheus 指标采集与 OTel
链路追踪。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - localStack       — process/watch 共用的本地流水线装配（无 HTTP 层）
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、process（批处理视频）、watch（监听目录）、
    migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、RateLimiter（基于 IP）、APIKeyAuth（X-API-Key / query 参数）
  - watch 模式：fsnotify 监听新视频落地，信号量限并发，等文件写稳再处理
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 等在途任务 → 关闭 Metrics → 落盘
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
