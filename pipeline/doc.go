// 版权所有 2024 ClipForge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 pipeline 实现 ClipForge 的视频处理流水线：任务调度、阶段编排、
进度广播与生命周期管理。

# 流水线

一个任务按固定顺序经过以下阶段，未勾选的功能对应的阶段直接跳过：

	probe → extract_audio → transcribe → captions → analyze
	      → burn_captions → effects → export

探测和导出恒定存在；抽音轨和转写只在任一功能需要转写结果时运行；
字幕相关阶段跟随 auto_captions 开关；分析阶段在 b-roll 或梗模式
开启时运行；特效阶段只属于梗模式。

# 失败策略

每个阶段带一个 [ErrorPolicy]：探测、字幕、特效、导出 fail_fast，
抽音轨和转写按配置重试，分析阶段 skip（AI 建议缺失不应毁掉成片）。
上下文取消优先于所有策略，被取消的任务以 error 终态收尾并带上
取消说明。

# 调度

[Manager] 把任务交给有界 worker 池异步执行，队列满时提交方收到
429。每个任务独享一个临时工作目录，结束后清理。同一内容的视频用
Redis SetNX 去重，避免重复烧钱。进度事件经 [Broadcaster] 扇出给
任意数量的订阅者，慢订阅者丢事件不阻塞流水线；任务自身保留最近
5 条活动供断线重连后回放。
*/
package pipeline
