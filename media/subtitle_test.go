package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/types"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "00:00:00,000"},
		{"millis", 1500 * time.Millisecond, "00:00:01,500"},
		{"minutes", 90 * time.Minute, "01:30:00,000"},
		{"full", time.Hour + time.Minute + time.Second + 250*time.Millisecond, "01:01:01,250"},
		{"negative clamps", -5 * time.Second, "00:00:00,000"},
		{"sub-millisecond truncates", 999*time.Millisecond + 900*time.Microsecond, "00:00:00,999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(tt.d))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"00:00:00,000", 0, false},
		{"00:00:01,500", 1500 * time.Millisecond, false},
		{"01:30:00,000", 90 * time.Minute, false},
		{"12:34:56,789", 12*time.Hour + 34*time.Minute + 56*time.Second + 789*time.Millisecond, false},
		{" 00:00:05,250 ", 5250 * time.Millisecond, false},
		{"", 0, true},
		{"00:00:00", 0, true},
		{"00:00,000", 0, true},
		{"00:60:00,000", 0, true},
		{"00:00:60,000", 0, true},
		{"00:00:00,1000", 0, true},
		{"aa:00:00,000", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderSRT(t *testing.T) {
	captions := []types.Caption{
		{Start: 0, End: 2 * time.Second, Text: "Hello world"},
		{Start: 2500 * time.Millisecond, End: 5 * time.Second, Text: "Second line"},
	}

	want := "1\n" +
		"00:00:00,000 --> 00:00:02,000\n" +
		"Hello world\n\n" +
		"2\n" +
		"00:00:02,500 --> 00:00:05,000\n" +
		"Second line\n\n"

	assert.Equal(t, want, string(RenderSRT(captions)))
}

func TestRenderSRT_Empty(t *testing.T) {
	assert.Empty(t, RenderSRT(nil))
}

func TestWriteSRTFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	captions := []types.Caption{{Start: time.Second, End: 2 * time.Second, Text: "hi"}}

	require.NoError(t, WriteSRTFile(path, captions))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:02,000\nhi\n\n", string(data))
}

func TestForceStyle(t *testing.T) {
	opts := config.CaptionConfig{FontSize: 24, FontColor: "white"}

	assert.Equal(t,
		"FontSize=32,Bold=1,PrimaryColour=&HFFFFFF,OutlineColour=&H000000,Outline=2",
		forceStyle(types.CaptionStyleTikTok, opts))
	assert.Equal(t,
		"FontSize=28,PrimaryColour=&HFFFFFF,BackColour=&H80000000",
		forceStyle(types.CaptionStyleYouTube, opts))
	assert.Equal(t,
		"FontSize=24,PrimaryColour=&HFFFFFF",
		forceStyle(types.CaptionStyleStandard, opts))
	assert.Equal(t,
		"FontSize=40,PrimaryColour=&H0088FF",
		forceStyle(types.CaptionStyleCustom, config.CaptionConfig{FontSize: 40, FontColor: "#FF8800"}))
}

func TestAssColor(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"white", "FFFFFF"},
		{"", "FFFFFF"},
		{"black", "000000"},
		{"red", "0000FF"},
		{"blue", "FF0000"},
		{"yellow", "00FFFF"},
		{"#FF8800", "0088FF"},
		{"#ffffff", "FFFFFF"},
		{"#12345", "FFFFFF"},
		{"#GGHHII", "FFFFFF"},
		{"not-a-color", "FFFFFF"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, assColor(tt.input))
		})
	}
}

func TestProcessor_BurnCaptions(t *testing.T) {
	fake := &fakeExecutor{}
	p := newTestProcessor(fake)
	workDir := t.TempDir()

	captions := []types.Caption{{Start: 0, End: time.Second, Text: "hello"}}
	outPath, err := p.BurnCaptions(context.Background(), BurnRequest{
		VideoPath: filepath.Join(workDir, "in.mp4"),
		Captions:  captions,
		Style:     types.CaptionStyleTikTok,
		WorkDir:   workDir,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "captioned.mp4"), outPath)

	// SRT must land in the work dir before ffmpeg runs.
	data, err := os.ReadFile(filepath.Join(workDir, "captions.srt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	call := fake.lastCall()
	assert.Equal(t, workDir, call.Dir)
	assert.Equal(t, "ffmpeg", call.Name)
	assert.Contains(t, call.Args, "-vf")
	assert.Contains(t, call.Args,
		"subtitles=captions.srt:force_style='FontSize=32,Bold=1,PrimaryColour=&HFFFFFF,OutlineColour=&H000000,Outline=2'")
	assert.Contains(t, call.Args, "libx264")
	assert.Contains(t, call.Args, "medium")
	assert.Contains(t, call.Args, "23")
	assert.Contains(t, call.Args, "aac")
}

func TestProcessor_BurnCaptionsNoCaptions(t *testing.T) {
	p := newTestProcessor(&fakeExecutor{})

	_, err := p.BurnCaptions(context.Background(), BurnRequest{
		VideoPath: "in.mp4",
		WorkDir:   t.TempDir(),
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}
