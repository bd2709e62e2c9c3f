package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/types"
)

// Exporter copies finished videos into the public output directory under
// a unique clipforge_output_<unix>.mp4 name.
type Exporter struct {
	outputDir string
	logger    *zap.Logger
}

// NewExporter creates an exporter writing into outputDir.
func NewExporter(outputDir string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{outputDir: outputDir, logger: logger}
}

// Export copies srcPath into the output directory and returns the final
// path. Concurrent jobs finishing within the same second get a numeric
// suffix instead of clobbering each other.
func (e *Exporter) Export(srcPath string) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", types.WrapError(types.ErrStorageFailed, "create output dir", err).
			WithComponent("media")
	}

	stamp := time.Now().Unix()
	finalPath := filepath.Join(e.outputDir, fmt.Sprintf("clipforge_output_%d.mp4", stamp))
	for n := 1; ; n++ {
		if _, err := os.Stat(finalPath); os.IsNotExist(err) {
			break
		}
		finalPath = filepath.Join(e.outputDir, fmt.Sprintf("clipforge_output_%d_%d.mp4", stamp, n))
	}

	if err := copyFile(srcPath, finalPath); err != nil {
		return "", types.WrapError(types.ErrStorageFailed, "export video", err).
			WithComponent("media")
	}

	e.logger.Info("video exported",
		zap.String("src", srcPath),
		zap.String("dst", finalPath),
	)
	return finalPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
