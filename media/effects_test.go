package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/clipforge/types"
)

func TestZoomFilter(t *testing.T) {
	assert.Equal(t,
		"[0:v]scale=iw*1.3:ih*1.3,crop=iw/1.3:ih/1.3:(iw-ow)/2:(ih-oh)/2[zoomed];"+
			"[0:v][zoomed]overlay=enable='between(t,12.5,13)'[vout]",
		ZoomFilter(12.5))
}

func TestEmojiOverlayFilter(t *testing.T) {
	assert.Equal(t,
		"[1:v]scale=100:100[emoji];[0:v][emoji]overlay=W-110:10:enable='between(t,3.25,4.25)'[vout]",
		EmojiOverlayFilter(3.25))
}

func TestSoundMixFilter(t *testing.T) {
	assert.Equal(t,
		"[1:a]adelay=2500|2500[delayed];[0:a][delayed]amix=inputs=2[aout]",
		SoundMixFilter(2.5))
}

func TestSlowmoFilter(t *testing.T) {
	assert.Equal(t, "setpts=if(between(t,5,7),PTS/0.5,PTS)", SlowmoFilter(5))
}

func TestTextOverlayFilter(t *testing.T) {
	assert.Equal(t,
		"drawtext=text='WAIT WHAT?':x=(w-text_w)/2:y=h-100:"+
			"fontsize=36:fontcolor=white:bordercolor=black:borderw=2:"+
			"enable='between(t,1,2.5)'",
		TextOverlayFilter("WAIT WHAT?", 1))
}

func TestColorEnhanceFilter(t *testing.T) {
	assert.Equal(t, "eq=saturation=1.3:brightness=0.1", ColorEnhanceFilter(1.3, 1.1))
}

func TestConcatFilter(t *testing.T) {
	assert.Equal(t,
		"[0:v][0:a][1:v][1:a][2:v][2:a]concat=n=3:v=1:a=1[vout][aout]",
		ConcatFilter(3))
}

func TestSanitizeDrawText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"it's here", "its here"},
		{`say "hi"`, "say hi"},
		{"a:b", `a\:b`},
		{`back\slash`, "backslash"},
		{`mix:'of"all\`, `mix\:ofall`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeDrawText(tt.input))
		})
	}
}

func TestMemeText(t *testing.T) {
	tests := []struct {
		name   string
		moment types.MemeMoment
		want   string
	}{
		{"wait cue wins", types.MemeMoment{Type: types.MemeEmphasis, Text: "Wait, really?"}, "WAIT WHAT?"},
		{"oh cue", types.MemeMoment{Type: types.MemeReaction, Text: "oh man"}, "OH NO"},
		{"reaction default", types.MemeMoment{Type: types.MemeReaction, Text: "incredible"}, "BRUH"},
		{"emphasis default", types.MemeMoment{Type: types.MemeEmphasis, Text: "facts"}, "EXACTLY!"},
		{"awkward default", types.MemeMoment{Type: types.MemeAwkward, Text: "um"}, "..."},
		{"surprise default", types.MemeMoment{Type: types.MemeSurprise, Text: "sudden"}, "PLOT TWIST"},
		{"unmapped type", types.MemeMoment{Type: types.MemePunchline, Text: "that was funny"}, "WOW"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MemeText(tt.moment))
		})
	}
}

func newTestEffects(t *testing.T, fake *fakeExecutor, maxMoments int) (*Effects, *AssetLibrary) {
	t.Helper()
	assets := NewAssetLibrary(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, assets.EnsurePlaceholders())
	proc := newTestProcessor(fake)
	return NewEffects(proc, assets, maxMoments, zaptest.NewLogger(t)), assets
}

func TestEffects_Apply(t *testing.T) {
	fake := &fakeExecutor{}
	effects, _ := newTestEffects(t, fake, 0)
	workDir := t.TempDir()

	moments := []types.MemeMoment{{
		Timestamp: 1.0,
		Type:      types.MemeReaction,
		Text:      "no way",
		// sound_ding has no placeholder asset, so it is skipped
		Effects: []string{types.EffectZoom, "emoji_fire", "sound_ding", types.EffectText},
	}}

	final, err := effects.Apply(context.Background(), "/in.mp4", moments, workDir)
	require.NoError(t, err)

	// zoom, emoji, text applied; sound skipped for lack of asset
	assert.Equal(t, 3, fake.callCount())
	assert.Equal(t, filepath.Join(workDir, "effect_02.mp4"), final)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	zoomArgs := strings.Join(fake.calls[0].Args, " ")
	assert.Contains(t, zoomArgs, "scale=iw*1.3")
	assert.Contains(t, zoomArgs, "-filter_complex")

	emojiArgs := strings.Join(fake.calls[1].Args, " ")
	assert.Contains(t, emojiArgs, "fire.png")
	assert.Contains(t, emojiArgs, "overlay=W-110:10")

	textArgs := strings.Join(fake.calls[2].Args, " ")
	assert.Contains(t, textArgs, "drawtext=text='BRUH'")
}

func TestEffects_ApplyChainsIntermediates(t *testing.T) {
	fake := &fakeExecutor{}
	effects, _ := newTestEffects(t, fake, 0)
	workDir := t.TempDir()

	moments := []types.MemeMoment{
		{Timestamp: 1, Type: types.MemeReaction, Effects: []string{types.EffectZoom}},
		{Timestamp: 5, Type: types.MemeSurprise, Effects: []string{types.EffectSlowmo}},
	}

	final, err := effects.Apply(context.Background(), "/in.mp4", moments, workDir)
	require.NoError(t, err)
	require.Equal(t, 2, fake.callCount())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	// Second effect reads the first effect's output.
	assert.Contains(t, fake.calls[1].Args, filepath.Join(workDir, "effect_00.mp4"))
	assert.Equal(t, filepath.Join(workDir, "effect_01.mp4"), final)
}

func TestEffects_ApplyNoMoments(t *testing.T) {
	fake := &fakeExecutor{}
	effects, _ := newTestEffects(t, fake, 0)

	final, err := effects.Apply(context.Background(), "/in.mp4", nil, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/in.mp4", final)
	assert.Zero(t, fake.callCount())
}

func TestEffects_ApplyCapsMoments(t *testing.T) {
	fake := &fakeExecutor{}
	effects, _ := newTestEffects(t, fake, 1)

	moments := []types.MemeMoment{
		{Timestamp: 1, Type: types.MemeReaction, Effects: []string{types.EffectZoom}},
		{Timestamp: 2, Type: types.MemeReaction, Effects: []string{types.EffectZoom}},
		{Timestamp: 3, Type: types.MemeReaction, Effects: []string{types.EffectZoom}},
	}

	_, err := effects.Apply(context.Background(), "/in.mp4", moments, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.callCount())
}

func TestEffects_ApplyFailedEffectKeepsPrevious(t *testing.T) {
	fake := &fakeExecutor{handler: func(execCall) (string, error) {
		return "", errors.New("filter exploded")
	}}
	effects, _ := newTestEffects(t, fake, 0)

	moments := []types.MemeMoment{
		{Timestamp: 1, Type: types.MemeReaction, Effects: []string{types.EffectZoom}},
	}

	final, err := effects.Apply(context.Background(), "/in.mp4", moments, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/in.mp4", final)
}

func TestEffects_SpeedUpRejectsOutOfRange(t *testing.T) {
	fake := &fakeExecutor{}
	effects, _ := newTestEffects(t, fake, 0)

	err := effects.SpeedUp(context.Background(), "/in.mp4", "/out.mp4", 3.0)
	require.Error(t, err)
	assert.Zero(t, fake.callCount())
}

func TestEffects_SpeedUp(t *testing.T) {
	fake := &fakeExecutor{}
	effects, _ := newTestEffects(t, fake, 0)

	require.NoError(t, effects.SpeedUp(context.Background(), "/in.mp4", "/out.mp4", 1.5))

	args := strings.Join(fake.lastCall().Args, " ")
	assert.Contains(t, args, "setpts=PTS/1.5")
	assert.Contains(t, args, "atempo=1.5")
}

func TestEffects_Concat(t *testing.T) {
	fake := &fakeExecutor{}
	effects, _ := newTestEffects(t, fake, 0)

	err := effects.Concat(context.Background(), []string{"/a.mp4"}, "/out.mp4")
	require.Error(t, err)

	require.NoError(t, effects.Concat(context.Background(), []string{"/a.mp4", "/b.mp4"}, "/out.mp4"))
	args := strings.Join(fake.lastCall().Args, " ")
	assert.Contains(t, args, "concat=n=2:v=1:a=1")
	assert.Contains(t, args, "/a.mp4")
	assert.Contains(t, args, "/b.mp4")
}

func TestEffects_ApplySoundWithAsset(t *testing.T) {
	fake := &fakeExecutor{}
	effects, assets := newTestEffects(t, fake, 0)

	// Drop a stand-in sound file into the library.
	soundPath := filepath.Join(assets.baseDir, "sounds", "ding.wav")
	require.NoError(t, os.MkdirAll(filepath.Dir(soundPath), 0o755))
	require.NoError(t, os.WriteFile(soundPath, []byte("RIFF"), 0o644))

	moments := []types.MemeMoment{
		{Timestamp: 2.5, Type: types.MemeReaction, Effects: []string{"sound_ding"}},
	}

	_, err := effects.Apply(context.Background(), "/in.mp4", moments, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 1, fake.callCount())

	args := strings.Join(fake.lastCall().Args, " ")
	assert.Contains(t, args, "adelay=2500|2500")
	assert.Contains(t, args, "ding.wav")
}
