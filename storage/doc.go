// 版权所有 2024 ClipForge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 storage 提供 ClipForge 的持久层：处理历史、转写缓存、用户偏好
与全局统计。

# 概述

[Repository] 基于 GORM 实现，依赖 internal/database 的连接池与事务
重试能力。所有写操作走 WithTransactionRetry，统计行的累计更新与
历史写入在同一事务内完成，瞬态错误（SQLITE_BUSY、死锁）自动退避
重试。表结构由 internal/migration 维护，模型标签仅服务于测试中的
AutoMigrate。

# 转写缓存

转写是流水线中最贵的一步。[TranscriptionCache] 在仓储之上叠加
Redis 快路径：查询先走 Redis，未命中回落数据库并回填；写入先落库
再写 Redis，Redis 故障只降级不报错。缓存键为文件内容 SHA-256 加
Whisper 模型名（见 [FileHash]），同内容文件改名后依旧命中，换模型
则各自独立缓存。数据库条目默认保留 30 天，Redis 条目随 TTL 过期。

# 统计口径

app_statistics 为单行累计表：每写入一条处理历史，视频数加一、累计
耗时与各功能使用次数随之累加；缓存命中跳过转写时，省下的耗时通过
[Repository.AddTimeSaved] 记入 total_time_saved。
*/
package storage
