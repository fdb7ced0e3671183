package hls

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
)

// AudioWorker builds argv for one AudioTask and drives it through the
// subprocess driver.
type AudioWorker struct {
	driver *Driver
	ffmpeg string
	logger hclog.Logger
}

func NewAudioWorker(driver *Driver, ffmpegBin string, logger hclog.Logger) *AudioWorker {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &AudioWorker{driver: driver, ffmpeg: ffmpegBin, logger: logger.Named("worker.audio")}
}

// audioQualityTag is a short label folded into the audio output filename, since
// unlike video there is no per-language quality ladder, only one bitrate.
func audioQualityTag(task *AudioTask) string {
	if task.BitrateKbps > 0 {
		return fmt.Sprintf("%dk", task.BitrateKbps)
	}
	return "auto"
}

// Run transcodes (or stream-copies) task into an HLS audio rendition,
// returning the absolute path to the emitted playlist.
func (w *AudioWorker) Run(task *AudioTask, audio AudioSettings, outputRoot string) (string, error) {
	dir := filepath.Join(outputRoot, task.OutputDir)
	tag := audioQualityTag(task)
	base := fmt.Sprintf("audio_%s_%s", task.Language, tag)
	playlistPath := filepath.Join(dir, base+".m3u8")
	segmentPattern := filepath.Join(dir, base+"_%03d.ts")

	segmentSeconds := audio.SegmentSize
	if segmentSeconds <= 0 {
		segmentSeconds = 10
	}

	b := NewArgvBuilder(w.ffmpeg).
		Global("-y").
		Input(task.SourcePath)

	if task.StreamCopy {
		b.OutputOnly("-c:a", "copy")
	} else {
		channels := task.Channels
		if channels == 0 {
			channels = 0 // 0 means "use source" -> omit -ac
		}
		rate := task.SampleRate

		b.OutputOnly("-c:a", "aac", "-b:a", fmt.Sprintf("%dk", task.BitrateKbps))
		if rate != 0 {
			b.OutputOnly("-ar", fmt.Sprintf("%d", rate))
		}
		if channels != 0 {
			b.OutputOnly("-ac", fmt.Sprintf("%d", channels))
		}
	}

	b.OutputOnly(
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%g", segmentSeconds),
		"-hls_segment_filename", segmentPattern,
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_type", "mpegts",
	)
	b.Output(playlistPath)

	_, stderr, err := w.driver.Run(b.Build(), 0, func(progress, speed float64) {
		task.Progress = progress
		task.Speed = speed
	})
	if err != nil {
		return "", wrapError(TranscodingKind, err, "audio task %s: %s", task.ID, stderr)
	}

	return playlistPath, nil
}
