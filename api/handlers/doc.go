// Copyright (c) ClipForge Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 ClipForge HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 ClipForge 所有 HTTP 端点的请求处理逻辑，
包括视频上传、任务管理、进度推送、结果下载、历史统计以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - UploadHandler    — multipart 视频上传，落盘后提交处理任务
  - JobsHandler      — 任务提交（服务器路径）、查询、列表与取消
  - EventsHandler    — 任务进度推送，WebSocket 优先，SSE 回退
  - DownloadHandler  — 结果下载，短期 HMAC 签名令牌校验
  - HistoryHandler   — 处理历史、累计统计与用户偏好
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Database、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 上传校验：扩展名白名单 + MaxBytesReader 大小上限
  - 进度推送：事件流快照先行，终态事件后正常关闭
  - 下载令牌：HS256 JWT，subject 绑定任务 ID
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现

# 路由装配

NewRouter 将全部 Handler 装配到 net/http ServeMux（Go 1.22+ 方法路由），
中间件链（恢复、日志、限流、鉴权等）由 cmd/clipforge 在外层套接。
*/
package handlers
