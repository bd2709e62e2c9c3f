package types

import (
	"strings"
	"time"
)

// VideoInfo describes a probed video file.
type VideoInfo struct {
	Path     string        `json:"path"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	FPS      float64       `json:"fps"`
	Frames   int64         `json:"frames"`
	Duration time.Duration `json:"duration"`
	Size     int64         `json:"size"`
}

// TranscriptSegment is one timed span of recognized speech.
type TranscriptSegment struct {
	ID         int           `json:"id"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence,omitempty"`
}

// Transcript is the full speech-to-text result for one audio track.
type Transcript struct {
	Text     string              `json:"text"`
	Language string              `json:"language,omitempty"`
	Duration time.Duration       `json:"duration,omitempty"`
	Model    string              `json:"model,omitempty"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// Caption is one subtitle cue derived from a transcript segment.
type Caption struct {
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence,omitempty"`
}

// CaptionsFromTranscript derives one caption per segment, preserving order.
func CaptionsFromTranscript(t *Transcript) []Caption {
	if t == nil || len(t.Segments) == 0 {
		return nil
	}
	captions := make([]Caption, 0, len(t.Segments))
	for _, seg := range t.Segments {
		captions = append(captions, Caption{
			Start:      seg.Start,
			End:        seg.End,
			Text:       strings.TrimSpace(seg.Text),
			Confidence: seg.Confidence,
		})
	}
	return captions
}

// CaptionStyle names a caption rendering preset.
type CaptionStyle string

const (
	CaptionStyleStandard CaptionStyle = "standard"
	CaptionStyleTikTok   CaptionStyle = "tiktok"
	CaptionStyleYouTube  CaptionStyle = "youtube"
	CaptionStyleCustom   CaptionStyle = "custom"
)

// Valid reports whether the style is a known preset.
func (s CaptionStyle) Valid() bool {
	switch s {
	case CaptionStyleStandard, CaptionStyleTikTok, CaptionStyleYouTube, CaptionStyleCustom:
		return true
	}
	return false
}

// WhisperModel names a Whisper model size.
type WhisperModel string

const (
	WhisperTiny   WhisperModel = "tiny"
	WhisperBase   WhisperModel = "base"
	WhisperSmall  WhisperModel = "small"
	WhisperMedium WhisperModel = "medium"
	WhisperLarge  WhisperModel = "large"
)

// Valid reports whether the model size is supported.
func (m WhisperModel) Valid() bool {
	switch m {
	case WhisperTiny, WhisperBase, WhisperSmall, WhisperMedium, WhisperLarge:
		return true
	}
	return false
}

// BRollSuggestion is an AI-proposed insertion point for supplementary footage.
// Timestamps are seconds into the video, matching the analyzer wire format.
type BRollSuggestion struct {
	Timestamp   float64 `json:"timestamp"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Category    string  `json:"category,omitempty"`
}

// MemeType classifies a detected meme-worthy moment.
type MemeType string

const (
	MemeReaction  MemeType = "reaction"
	MemePunchline MemeType = "punchline"
	MemeAwkward   MemeType = "awkward"
	MemeEmphasis  MemeType = "emphasis"
	MemeSurprise  MemeType = "surprise"
)

// MemeMoment is a detected moment plus the effects suggested for it.
type MemeMoment struct {
	Timestamp  float64  `json:"timestamp"`
	Type       MemeType `json:"meme_type"`
	Text       string   `json:"text"`
	Effects    []string `json:"suggested_effects"`
	Confidence float64  `json:"confidence"`
}

// Effect names usable in MemeMoment.Effects.
const (
	EffectZoom   = "zoom"
	EffectEmoji  = "emoji"
	EffectSound  = "sound"
	EffectSlowmo = "slowmo"
	EffectText   = "text"
)

// EnhancementSuggestions groups editing advice by concern.
type EnhancementSuggestions struct {
	Pacing        []string `json:"pacing"`
	Audio         []string `json:"audio"`
	Visual        []string `json:"visual"`
	Engagement    []string `json:"engagement"`
	Accessibility []string `json:"accessibility"`
}

// AnalysisResult bundles the outputs of one content-analysis pass.
type AnalysisResult struct {
	BRoll        []BRollSuggestion       `json:"broll,omitempty"`
	MemeMoments  []MemeMoment            `json:"meme_moments,omitempty"`
	Enhancements *EnhancementSuggestions `json:"enhancements,omitempty"`
}
