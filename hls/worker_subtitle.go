package hls

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
)

// SubtitleWorker extracts one subtitle stream to a standalone file.
type SubtitleWorker struct {
	driver *Driver
	ffmpeg string
	logger hclog.Logger
}

func NewSubtitleWorker(driver *Driver, ffmpegBin string, logger hclog.Logger) *SubtitleWorker {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SubtitleWorker{driver: driver, ffmpeg: ffmpegBin, logger: logger.Named("worker.subtitle")}
}

// subtitleCodecExt maps a target format name to (ffmpeg codec, extension).
func subtitleCodecExt(target string) (codec, ext string) {
	switch target {
	case "webvtt", "vtt":
		return "webvtt", "vtt"
	case "srt":
		return "srt", "srt"
	case "ass", "ssa":
		return "ass", "ass"
	default:
		return "webvtt", "vtt"
	}
}

// Run extracts task into a standalone subtitle file, defaulting to WebVTT.
func (w *SubtitleWorker) Run(task *SubtitleTask, targetFormat string, outputRoot string) (string, error) {
	codec, ext := subtitleCodecExt(targetFormat)
	if task.SourceCodec == codec {
		codec = "copy"
	}

	name := fmt.Sprintf("subtitle_%s", task.Language)
	if task.Forced {
		name += "_forced"
	}
	outPath := filepath.Join(outputRoot, task.OutputDir, fmt.Sprintf("%s.%s", name, ext))

	argv := NewArgvBuilder(w.ffmpeg).
		Global("-y").
		Input(task.SourcePath).
		Output(outPath, "-map", fmt.Sprintf("0:%d", task.StreamIndex), "-c:s", codec).
		Build()

	_, stderr, err := w.driver.Run(argv, 5*time.Minute, func(progress, speed float64) {
		task.Progress = progress
		task.Speed = speed
	})
	if err != nil {
		return "", wrapError(TranscodingKind, err, "subtitle task %s: %s", task.ID, stderr)
	}

	return outPath, nil
}
