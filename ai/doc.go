// 版权所有 2024 ClipForge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 ai 封装 OpenAI 接入：Whisper 语音转写与 GPT 内容分析。

# 概述

本包不使用官方 SDK，聊天补全与音频转写都是手写 HTTP 客户端，
走加固的 TLS 配置。聊天请求对 429 与 5xx 做指数退避重试，上游
状态码映射到统一错误码；转写使用 multipart 上传并解析
verbose_json 分段。

# 核心类型

  - [Client]：聊天补全客户端，Complete / CompleteText
  - [Whisper]：音频转写客户端，Transcribe / TranscribeFile
  - [Analyzer]：内容分析器，SuggestBRoll / DetectMemeMoments /
    SuggestEnhancements / AnalyzeAll

# 降级策略

分析是增强能力而不是硬依赖：B-roll 失败返回空列表，梗检测失败退回
关键词扫描（[KeywordMemeMoments]），剪辑建议失败返回静态清单
（[StaticEnhancements]）。只有上下文取消会向上传播错误。

# 提示词预算

转写文本在进入提示词前用 tiktoken 计数并截断到配置的 token 预算，
编码数据不可用时退回按字符估算。
*/
package ai
