package media

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Emoji and sound effect names accepted in MemeMoment.Effects. A bare
// "emoji" or "sound" resolves to the first entry of its library.
const (
	EmojiFire     = "emoji_fire"
	EmojiShocked  = "emoji_shocked"
	EmojiLaughing = "emoji_laughing"
	EmojiThinking = "emoji_thinking"
	EmojiClap     = "emoji_clap"

	SoundDing          = "sound_ding"
	SoundRecordScratch = "sound_record_scratch"
	SoundAirhorn       = "sound_airhorn"
	SoundWhoosh        = "sound_whoosh"
	SoundPop           = "sound_pop"
)

// AssetLibrary resolves effect names to emoji images and sound files
// under a base directory (emojis/*.png, sounds/*.wav).
type AssetLibrary struct {
	baseDir string
	emojis  map[string]string
	sounds  map[string]string
	logger  *zap.Logger
}

// NewAssetLibrary creates a library rooted at baseDir.
func NewAssetLibrary(baseDir string, logger *zap.Logger) *AssetLibrary {
	if logger == nil {
		logger = zap.NewNop()
	}
	lib := &AssetLibrary{
		baseDir: baseDir,
		emojis:  make(map[string]string),
		sounds:  make(map[string]string),
		logger:  logger,
	}
	for _, name := range []string{EmojiFire, EmojiShocked, EmojiLaughing, EmojiThinking, EmojiClap} {
		file := strings.TrimPrefix(name, "emoji_") + ".png"
		lib.emojis[name] = filepath.Join(baseDir, "emojis", file)
	}
	for _, name := range []string{SoundDing, SoundRecordScratch, SoundAirhorn, SoundWhoosh, SoundPop} {
		file := strings.TrimPrefix(name, "sound_") + ".wav"
		lib.sounds[name] = filepath.Join(baseDir, "sounds", file)
	}
	return lib
}

// EmojiPath resolves an emoji effect name to an existing image file.
// A bare "emoji" maps to the fire emoji.
func (l *AssetLibrary) EmojiPath(effect string) (string, bool) {
	if effect == "emoji" {
		effect = EmojiFire
	}
	path, ok := l.emojis[effect]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// SoundPath resolves a sound effect name to an existing audio file.
// A bare "sound" maps to the ding stinger.
func (l *AssetLibrary) SoundPath(effect string) (string, bool) {
	if effect == "sound" {
		effect = SoundDing
	}
	path, ok := l.sounds[effect]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// EnsurePlaceholders creates simple coloured-circle PNGs for any emoji
// missing from the library, so Meme Mode works out of the box. Sounds
// have no placeholder; missing sound effects are skipped at apply time.
func (l *AssetLibrary) EnsurePlaceholders() error {
	if err := os.MkdirAll(filepath.Join(l.baseDir, "emojis"), 0o755); err != nil {
		return fmt.Errorf("create emoji dir: %w", err)
	}

	colors := map[string]color.RGBA{
		EmojiFire:     {R: 255, G: 100, B: 0, A: 255},
		EmojiShocked:  {R: 255, G: 255, B: 0, A: 255},
		EmojiLaughing: {R: 0, G: 255, B: 0, A: 255},
		EmojiThinking: {R: 0, G: 100, B: 255, A: 255},
		EmojiClap:     {R: 255, G: 0, B: 255, A: 255},
	}

	for name, path := range l.emojis {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		fill, ok := colors[name]
		if !ok {
			fill = color.RGBA{R: 128, G: 128, B: 128, A: 255}
		}
		if err := writeCirclePNG(path, fill); err != nil {
			return fmt.Errorf("create placeholder %s: %w", name, err)
		}
		l.logger.Info("created placeholder emoji", zap.String("path", path))
	}
	return nil
}

// writeCirclePNG renders a 100x100 transparent image with a filled
// circle of the given colour.
func writeCirclePNG(path string, fill color.RGBA) error {
	const size, radius = 100, 40
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	center := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-center, y-center
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(x, y, fill)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
