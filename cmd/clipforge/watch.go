package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/pipeline"
)

// =============================================================================
// 👀 watch 命令 — 目录监听自动处理
// =============================================================================

// settlePollInterval 文件写入稳定检测的轮询间隔
const settlePollInterval = 500 * time.Millisecond

// settleTimeout 等待文件写完的上限，超时按当前内容处理
const settleTimeout = 30 * time.Second

// runWatch 监听目录，新落地的视频文件自动进入处理流水线。
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var flags processFlags
	flags.register(fs)
	concurrency := fs.Int("concurrency", 2, "Max videos processed in parallel")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: clipforge watch [options] <directory>")
		os.Exit(1)
	}
	dir := fs.Arg(0)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Not a directory: %s\n", dir)
		os.Exit(1)
	}
	if *concurrency < 1 {
		*concurrency = 1
	}

	cfg := loadConfig(flags.configPath)
	logger := initLogger(cfg.Log)

	code := watchDir(cfg, logger, dir, *concurrency, flags.options())

	logger.Sync()
	if code != 0 {
		os.Exit(code)
	}
}

// watchDir 运行监听循环直到收到退出信号，返回退出码
func watchDir(cfg *config.Config, logger *zap.Logger, dir string, concurrency int, opts pipeline.Options) int {
	stack, err := newLocalStack(cfg, logger, concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer stack.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create watcher", zap.Error(err))
		return 1
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		logger.Error("failed to watch directory", zap.String("dir", dir), zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("watching for new videos",
		zap.String("dir", dir),
		zap.Int("max_concurrent", concurrency),
		zap.Strings("features", featureList(opts)))

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case event, ok := <-watcher.Events:
			if !ok {
				logger.Error("watcher events channel closed")
				break loop
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !isVideoFile(event.Name) {
				logger.Debug("ignoring non-video file", zap.String("path", event.Name))
				continue
			}

			logger.Info("new video detected", zap.String("path", event.Name))

			// 并发额度满时在这里排队，同时保持对退出信号的响应
			if err := sem.Acquire(ctx, 1); err != nil {
				break loop
			}
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				defer sem.Release(1)
				watchOne(ctx, stack, path, opts, logger)
			}(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				logger.Error("watcher errors channel closed")
				break loop
			}
			logger.Error("watcher error", zap.Error(err))
		}
	}

	logger.Info("waiting for in-flight videos to finish")
	wg.Wait()
	return 0
}

// watchOne 等文件写入稳定后提交处理，结果走结构化日志。
func watchOne(ctx context.Context, stack *localStack, path string, opts pipeline.Options, logger *zap.Logger) {
	if err := waitForSettle(ctx, path); err != nil {
		logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
		return
	}

	start := time.Now()
	job, err := stack.run(ctx, path, opts, nil)
	if err != nil {
		logger.Error("failed to process video", zap.String("path", path), zap.Error(err))
		return
	}

	if job.Status == pipeline.StatusCompleted && job.Result != nil {
		logger.Info("video processed",
			zap.String("path", path),
			zap.String("output", job.Result.OutputPath),
			zap.Bool("cache_hit", job.Result.CacheHit),
			zap.Duration("elapsed", time.Since(start).Round(time.Second)))
		return
	}
	logger.Error("video processing failed",
		zap.String("path", path),
		zap.String("error", job.Error))
}

// featureList 把启用的处理选项转成日志字段
func featureList(opts pipeline.Options) []string {
	var features []string
	if opts.AutoCaptions {
		features = append(features, "captions")
	}
	if opts.MemeMode {
		features = append(features, "meme")
	}
	if opts.BRoll {
		features = append(features, "broll")
	}
	return features
}

// waitForSettle 轮询文件大小直到连续两次不变。Create 事件在文件
// 开始写入时就会到达，提前读会把半个文件交给 ffmpeg。
func waitForSettle(ctx context.Context, path string) error {
	deadline := time.Now().Add(settleTimeout)
	var lastSize int64 = -1

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settlePollInterval):
		}

		info, err := os.Stat(path)
		if err != nil {
			// 编辑器落盘时常见先建后删的临时文件
			return fmt.Errorf("file disappeared while settling: %w", err)
		}
		if info.Size() == lastSize {
			return nil
		}
		lastSize = info.Size()

		if time.Now().After(deadline) {
			return nil
		}
	}
}
