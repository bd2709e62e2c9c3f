// 版权所有 2024 ClipForge Authors。保留所有权利。
// 本源代码的使用受 MIT 风格许可证约束，该许可证可在 LICENSE 文件中找到。

/*
Package metrics 提供 ClipForge 内部的 Prometheus 指标收集。

涵盖五个指标域：

  - HTTP：请求计数、时延、请求/响应大小
  - 任务与流水线：任务状态计数、端到端时长、阶段执行与重试
  - FFmpeg：ffmpeg/ffprobe 调用计数与时长
  - OpenAI：API 请求计数、时延、token 用量
  - 存储：缓存命中率、数据库连接池与查询时延

所有指标通过 promauto 注册到默认 registry，命名空间由调用方指定
（生产环境使用 "clipforge"）。

使用示例：

	collector := metrics.NewCollector("clipforge", logger)
	collector.RecordHTTPRequest("GET", "/api/v1/jobs", 200, duration, reqSize, respSize)
	collector.RecordStage("transcribe", "success", elapsed)

内部包，不对外暴露。
*/
package metrics
