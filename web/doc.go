// Copyright (c) ClipForge Authors.
// Licensed under the MIT License.

/*
Package web 提供 ClipForge 内嵌的单页控制台。

页面在编译期通过 go:embed 打包，不依赖外部静态资源目录。
控制台自身无状态：上传走 POST /api/v1/upload，进度走
WebSocket（SSE 回退），历史与统计走 /api/v1/history 和
/api/v1/stats，下载使用任务详情返回的签名链接。

Whisper 模型、字幕风格、上传大小限制等页面常量在 [NewHandler]
中由配置注入，与后端校验保持一致。
*/
package web
