package frames

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// runFFmpegFrame decodes exactly one frame at the given timestamp into a
// JPEG file. Each invocation carries its own deadline so a stuck decode
// cannot stall the pipeline.
func (e *Engine) runFFmpegFrame(ctx context.Context, mediaPath string, ts float64, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, e.frameTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffmpegBin,
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", mediaPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		outPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg frame extract failed: %w\nOutput: %s", err, output)
	}
	return nil
}
