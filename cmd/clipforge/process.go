package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/types"
)

// =============================================================================
// 🎞️ process 命令 — 命令行批处理
// =============================================================================

// processFlags process/watch 共用的功能开关
type processFlags struct {
	configPath string
	captions   bool
	meme       bool
	broll      bool
	model      string
	style      string
	language   string
}

// register 把功能开关挂到 FlagSet 上
func (f *processFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.BoolVar(&f.captions, "captions", true, "Burn in auto captions")
	fs.BoolVar(&f.meme, "meme", false, "Apply Meme Mode effects")
	fs.BoolVar(&f.broll, "broll", false, "Request B-roll suggestions")
	fs.StringVar(&f.model, "model", "", "Whisper model: tiny, base, small, medium, large")
	fs.StringVar(&f.style, "style", "", "Caption style: standard, tiktok, youtube, custom")
	fs.StringVar(&f.language, "language", "", "Language hint (ISO-639-1)")
}

// options 转换为流水线任务选项，空值由流水线按配置补默认
func (f *processFlags) options() pipeline.Options {
	return pipeline.Options{
		AutoCaptions: f.captions,
		MemeMode:     f.meme,
		BRoll:        f.broll,
		WhisperModel: types.WhisperModel(f.model),
		CaptionStyle: types.CaptionStyle(f.style),
		Language:     f.language,
	}
}

// runProcess 从命令行处理一个或多个视频。参数可以是文件路径或 glob。
func runProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	var flags processFlags
	flags.register(fs)
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: clipforge process [options] <video.mp4|glob> [...]")
		os.Exit(1)
	}

	files, err := resolveInputs(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig(flags.configPath)
	logger := initLogger(cfg.Log)

	// os.Exit 跳过 defer，收尾完成后再决定退出码
	failed := processFiles(cfg, logger, files, flags.options())

	logger.Sync()
	if failed > 0 {
		os.Exit(1)
	}
}

// processFiles 逐个处理文件并返回失败数量
func processFiles(cfg *config.Config, logger *zap.Logger, files []string, opts pipeline.Options) int {
	stack, err := newLocalStack(cfg, logger, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return len(files)
	}
	defer stack.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	for i, file := range files {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Interrupted")
			failed += len(files) - i
			break
		}

		fmt.Printf("Processing %s (%d/%d)\n", file, i+1, len(files))
		start := time.Now()

		job, err := stack.run(ctx, file, opts, printEvent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  failed: %v\n", err)
			failed++
			continue
		}

		switch {
		case job.Status == pipeline.StatusCompleted && job.Result != nil:
			fmt.Printf("  done in %s -> %s\n", time.Since(start).Round(time.Second), job.Result.OutputPath)
			printAnalysis(job.Result)
		default:
			fmt.Fprintf(os.Stderr, "  failed: %s\n", job.Error)
			failed++
		}
	}

	if len(files) > 1 {
		fmt.Printf("Processed %d/%d videos\n", len(files)-failed, len(files))
	}
	return failed
}

// resolveInputs 展开 glob 并校验扩展名，至少要有一个可处理文件。
func resolveInputs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %v", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		for _, m := range matches {
			if !isVideoFile(m) {
				// glob 展开出的非视频文件跳过，显式给出的单文件报错
				if len(matches) == 1 && m == arg {
					return nil, fmt.Errorf("unsupported video format %q", filepath.Ext(m))
				}
				continue
			}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no supported video files to process")
	}
	return files, nil
}

// printEvent 把一条进度事件打到标准输出
func printEvent(ev pipeline.Event) {
	if ev.Message == "" {
		return
	}
	fmt.Printf("  [%-13s] %3.0f%%  %s\n", ev.Stage, ev.Percent, ev.Message)
}

// printAnalysis 把 AI 分析结果摘要打到标准输出
func printAnalysis(result *pipeline.JobResult) {
	if result.Analysis == nil {
		return
	}
	for _, b := range result.Analysis.BRoll {
		fmt.Printf("  b-roll @%.1fs (%.1fs): %s\n", b.Timestamp, b.Duration, b.Description)
	}
	for _, mm := range result.Analysis.MemeMoments {
		fmt.Printf("  meme @%.1fs [%s]: %s\n", mm.Timestamp, mm.Type, mm.Text)
	}
}
