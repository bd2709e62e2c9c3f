// Package config 提供 ClipForge 的配置管理功能。
//
// 支持从 .env 文件、YAML 文件和环境变量（CLIPFORGE_ 前缀，
// 另兼容 OPENAI_API_KEY、OUTPUT_DIR 等历史裸名）分层加载配置。
package config
