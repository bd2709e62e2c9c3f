// =============================================================================
// 📦 测试数据工厂 - 媒体与 AI 分析测试数据
// =============================================================================
// 提供预定义的转写、视频信息和分析结果，用于测试
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/clipforge/types"
)

// =============================================================================
// 🎙️ 转写工厂
// =============================================================================

// SampleTranscript 返回一段带三个片段的标准转写结果
func SampleTranscript() *types.Transcript {
	return &types.Transcript{
		Text:     "Welcome back. Wait, what? Unbelievable.",
		Language: "english",
		Duration: 90 * time.Second,
		Model:    "base",
		Segments: []types.TranscriptSegment{
			{ID: 0, Start: 0, End: 3 * time.Second, Text: "Welcome back.", Confidence: -0.2},
			{ID: 1, Start: 40 * time.Second, End: 42 * time.Second, Text: "Wait, what?", Confidence: -0.4},
			{ID: 2, Start: 80 * time.Second, End: 83 * time.Second, Text: "Unbelievable.", Confidence: -0.3},
		},
	}
}

// EmptyTranscript 返回无语音内容的转写结果（纯音乐视频等场景）
func EmptyTranscript() *types.Transcript {
	return &types.Transcript{
		Language: "english",
		Duration: 30 * time.Second,
		Model:    "base",
	}
}

// SampleCaptions 返回与 SampleTranscript 对应的字幕
func SampleCaptions() []types.Caption {
	return types.CaptionsFromTranscript(SampleTranscript())
}

// =============================================================================
// 🎬 视频信息工厂
// =============================================================================

// SampleVideoInfo 返回一段 1080p 横屏视频的探测结果
func SampleVideoInfo() *types.VideoInfo {
	return &types.VideoInfo{
		Path:     "/tmp/sample.mp4",
		Width:    1920,
		Height:   1080,
		FPS:      30,
		Frames:   2700,
		Duration: 90 * time.Second,
		Size:     12 << 20,
	}
}

// =============================================================================
// 🧠 分析结果工厂
// =============================================================================

// SampleAnalysis 返回一份包含 B-roll、梗时刻和增强建议的完整分析
func SampleAnalysis() *types.AnalysisResult {
	return &types.AnalysisResult{
		BRoll: []types.BRollSuggestion{
			{Timestamp: 10, Duration: 4, Description: "Show the dashboard", Confidence: 0.8, Category: "product"},
		},
		MemeMoments: []types.MemeMoment{
			{Timestamp: 40, Type: "surprise", Text: "Wait, what?", Effects: []string{types.EffectZoom}, Confidence: 0.9},
		},
		Enhancements: &types.EnhancementSuggestions{Pacing: []string{"tighten the intro"}},
	}
}

// EmptyAnalysis 返回没有任何建议的分析结果
func EmptyAnalysis() *types.AnalysisResult {
	return &types.AnalysisResult{}
}
