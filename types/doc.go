// Copyright (c) ClipForge Authors.
// Licensed under the MIT License.

/*
Package types 提供 ClipForge 的全局共享类型定义。

# 概述

types 是服务最底层的公共包，不依赖任何内部包，为 media、ai、pipeline、
storage、api 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和
错误码均定义于此，以避免循环依赖。

# 核心类型

  - VideoInfo               — 探测到的视频元数据（分辨率、帧率、时长、大小）
  - Transcript / TranscriptSegment — 语音识别结果与分段时间轴
  - Caption / CaptionStyle  — 字幕条目与渲染预设（standard / tiktok / youtube / custom）
  - WhisperModel            — Whisper 模型规格（tiny..large）
  - BRollSuggestion         — AI 建议的 B-roll 插入点
  - MemeMoment / MemeType   — 检测到的梗时刻及建议特效
  - EnhancementSuggestions  — 按维度分组的剪辑改进建议
  - Error / ErrorCode       — 结构化错误体系，含 HTTP 状态码、Retryable、Component 标记

# 主要能力

  - 错误工具链：NewError / WrapError / IsRetryable / GetErrorCode
  - 字幕派生：CaptionsFromTranscript（分段一一映射、保序）
  - 枚举校验：CaptionStyle.Valid / WhisperModel.Valid
*/
package types
