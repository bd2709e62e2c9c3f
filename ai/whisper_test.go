package ai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/types"
)

const whisperFixture = `{
	"task": "transcribe",
	"language": "english",
	"duration": 8.47,
	"text": "  Hello world. This is a test.  ",
	"segments": [
		{"id": 0, "start": 0.0, "end": 3.2, "text": " Hello world.", "avg_logprob": -0.25, "compression_ratio": 1.1, "no_speech_prob": 0.01},
		{"id": 1, "start": 3.2, "end": 8.47, "text": " This is a test.", "avg_logprob": -0.4, "compression_ratio": 1.2, "no_speech_prob": 0.02}
	]
}`

func newTestWhisper(t *testing.T, baseURL string, whisperCfg config.WhisperConfig) *Whisper {
	t.Helper()
	return NewWhisper(
		config.OpenAIConfig{APIKey: "sk-test", BaseURL: baseURL},
		whisperCfg,
		zaptest.NewLogger(t),
	)
}

func TestWhisper_Transcribe(t *testing.T) {
	var gotPath, gotAuth, gotFilename, gotFileBody string
	gotFields := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		gotFileBody = string(data)

		for name, values := range r.MultipartForm.Value {
			gotFields[name] = values[0]
		}
		_, _ = w.Write([]byte(whisperFixture))
	}))
	defer server.Close()

	w := newTestWhisper(t, server.URL, config.WhisperConfig{Model: "small", Language: "en"})
	transcript, err := w.Transcribe(context.Background(), strings.NewReader("fake-wav-bytes"), "audio.wav")
	require.NoError(t, err)

	assert.Equal(t, "/v1/audio/transcriptions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "audio.wav", gotFilename)
	assert.Equal(t, "fake-wav-bytes", gotFileBody)
	assert.Equal(t, "whisper-1", gotFields["model"])
	assert.Equal(t, "verbose_json", gotFields["response_format"])
	assert.Equal(t, "segment", gotFields["timestamp_granularities[]"])
	assert.Equal(t, "en", gotFields["language"])

	assert.Equal(t, "Hello world. This is a test.", transcript.Text)
	assert.Equal(t, "english", transcript.Language)
	assert.InDelta(t, 8.47, transcript.Duration.Seconds(), 0.001)
	assert.Equal(t, "small", transcript.Model, "requested model size recorded for cache keying")

	require.Len(t, transcript.Segments, 2)
	first := transcript.Segments[0]
	assert.Equal(t, 0, first.ID)
	assert.Equal(t, time.Duration(0), first.Start)
	assert.InDelta(t, 3.2, first.End.Seconds(), 0.001)
	assert.Equal(t, "Hello world.", first.Text)
	assert.InDelta(t, -0.25, first.Confidence, 1e-9)

	second := transcript.Segments[1]
	assert.Equal(t, 1, second.ID)
	assert.InDelta(t, 3.2, second.Start.Seconds(), 0.001)
	assert.InDelta(t, 8.47, second.End.Seconds(), 0.001)
}

func TestWhisper_Transcribe_LanguageOmittedWhenUnset(t *testing.T) {
	var hasLanguage bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hasLanguage = r.MultipartForm.Value["language"]
		_, _ = w.Write([]byte(whisperFixture))
	}))
	defer server.Close()

	w := newTestWhisper(t, server.URL, config.WhisperConfig{})
	_, err := w.Transcribe(context.Background(), strings.NewReader("x"), "audio.wav")
	require.NoError(t, err)
	assert.False(t, hasLanguage)
}

func TestWhisper_TranscribeFile(t *testing.T) {
	var gotFilename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		gotFilename = header.Filename
		_, _ = w.Write([]byte(whisperFixture))
	}))
	defer server.Close()

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "extracted.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF fake"), 0o644))

	w := newTestWhisper(t, server.URL, config.WhisperConfig{Model: "base"})
	transcript, err := w.TranscribeFile(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Equal(t, "extracted.wav", gotFilename)
	assert.Equal(t, "base", transcript.Model)
}

func TestWhisper_TranscribeFile_Missing(t *testing.T) {
	w := newTestWhisper(t, "http://127.0.0.1:0", config.WhisperConfig{})
	_, err := w.TranscribeFile(context.Background(), "/does/not/exist.wav")
	require.Error(t, err)
	assert.Equal(t, types.ErrTranscriptionFailed, types.GetErrorCode(err))
}

func TestWhisper_Transcribe_MissingAPIKey(t *testing.T) {
	w := NewWhisper(config.OpenAIConfig{}, config.WhisperConfig{}, zaptest.NewLogger(t))
	_, err := w.Transcribe(context.Background(), strings.NewReader("x"), "audio.wav")
	require.Error(t, err)
	assert.Equal(t, types.ErrAPIKeyMissing, types.GetErrorCode(err))
}

func TestWhisper_Transcribe_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"file too short"}}`))
	}))
	defer server.Close()

	w := newTestWhisper(t, server.URL, config.WhisperConfig{})
	_, err := w.Transcribe(context.Background(), strings.NewReader("x"), "audio.wav")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "file too short")
}

func TestWhisper_MetricsRecording(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(whisperFixture))
	}))
	defer server.Close()

	w := newTestWhisper(t, server.URL, config.WhisperConfig{})
	metrics := &fakeMetrics{}
	w.SetMetrics(metrics)

	_, err := w.Transcribe(context.Background(), strings.NewReader("x"), "audio.wav")
	require.NoError(t, err)

	calls := metrics.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, recordedMetric{"transcriptions", "whisper-1", "success", 0, 0}, calls[0])
}

func TestSecondsToDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    time.Duration
	}{
		{0, 0},
		{1.5, 1500 * time.Millisecond},
		{0.001, time.Millisecond},
		{120.25, 120*time.Second + 250*time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, secondsToDuration(tt.seconds))
	}
}
