// 版权所有 2024 ClipForge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供 ClipForge 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertSegmentsEqual / AssertCaptionsEqual / AssertJSONEqual /
    AssertNoError / AssertError / AssertContains 等
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual，
    支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON / CopySegments / CopyCaptions /
    WriteTempFile，简化测试数据构造
  - 通道辅助: WaitForChannel / DrainChannel / FeedChannel，
    用于进度事件流测试
  - 基准辅助: BenchmarkHelper 封装 testing.B 常用操作

# 子包

  - testutil/fixtures: 测试数据工厂，提供预置转写结果、视频探测信息、
    字幕与 AI 分析结果样例

# 使用示例

	ctx := testutil.TestContext(t)
	transcript := fixtures.SampleTranscript()
	got, err := whisper.TranscribeFile(ctx, path)
	testutil.AssertNoError(t, err)
	testutil.AssertSegmentsEqual(t, transcript.Segments, got.Segments)
*/
package testutil
