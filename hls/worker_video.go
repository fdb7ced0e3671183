package hls

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
)

// VideoWorker builds argv for one VideoTask and drives it through the
// subprocess driver, reporting live progress into the task.
type VideoWorker struct {
	driver *Driver
	ffmpeg string
	logger hclog.Logger
}

func NewVideoWorker(driver *Driver, ffmpegBin string, logger hclog.Logger) *VideoWorker {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &VideoWorker{driver: driver, ffmpeg: ffmpegBin, logger: logger.Named("worker.video")}
}

// Run transcodes task into an HLS variant under task.OutputDir, returning
// the absolute path to the emitted variant playlist.
func (w *VideoWorker) Run(task *VideoTask, hw *HardwareInfo, settings HLSSettings, outputRoot string) (string, error) {
	dir := filepath.Join(outputRoot, task.OutputDir)
	playlistPath := filepath.Join(dir, string(task.Quality)+".m3u8")
	segmentPattern := filepath.Join(dir, string(task.Quality)+"_%03d.ts")

	argv := videoArgv(w.ffmpeg, task, hw, settings, playlistPath, segmentPattern)

	_, stderr, err := w.driver.Run(argv, 0, func(progress, speed float64) {
		task.Progress = progress
		task.Speed = speed
	})
	if err != nil {
		return "", wrapError(TranscodingKind, err, "video task %s: %s", task.ID, stderr)
	}

	return playlistPath, nil
}

func videoFamily(hw *HardwareInfo) EncoderFamily {
	if hw == nil {
		return SOFTWARE
	}
	return hw.DetectedFamily
}

func videoArgv(ffmpeg string, task *VideoTask, hw *HardwareInfo, settings HLSSettings, playlistPath, segmentPattern string) []string {
	family := videoFamily(hw)
	b := NewArgvBuilder(ffmpeg).Global("-y")

	switch family {
	case NVIDIA:
		b.Global("-hwaccel", "cuda", "-hwaccel_output_format", "cuda")
	case INTEL:
		b.Global("-hwaccel", "qsv", "-hwaccel_output_format", "qsv")
	case AMD:
		b.Global("-hwaccel", "d3d11va")
	case APPLE:
		b.Global("-hwaccel", "videotoolbox")
	case VAAPI:
		b.Global("-init_hw_device", "vaapi=va:"+defaultVAAPIRenderNode, "-filter_hw_device", "va")
	}

	b.Input(task.SourcePath)

	scaleFilter := scaleFilterFor(family, task.Width, task.Height)

	gop := int(math.Round(task.FPS * settings.KeyframeIntervalSeconds))
	if gop < 1 {
		gop = 1
	}

	codec, rateControl := videoCodecFor(family, settings)

	b.OutputOnly("-vf", scaleFilter)
	b.OutputOnly(rateControl...)
	b.OutputOnly("-c:v", codec,
		"-b:v", fmt.Sprintf("%dk", task.BitrateKbps),
		"-maxrate:v", fmt.Sprintf("%dk", task.MaxrateKbps),
		"-bufsize:v", fmt.Sprintf("%dk", task.BufsizeKbps),
		"-g", fmt.Sprintf("%d", gop),
		"-keyint_min", fmt.Sprintf("%d", gop),
		"-sc_threshold", "0",
	)

	b.OutputOnly(
		"-an", "-sn",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%g", settings.SegmentSeconds),
		"-hls_segment_filename", segmentPattern,
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_type", "mpegts",
	)
	b.Output(playlistPath)

	return b.Build()
}

func scaleFilterFor(family EncoderFamily, w, h int) string {
	switch family {
	case INTEL:
		return fmt.Sprintf("scale_qsv=%d:%d", w, h)
	case VAAPI:
		return fmt.Sprintf("scale_vaapi=w=%d:h=%d:format=nv12", w, h)
	default:
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h)
	}
}

func videoCodecFor(family EncoderFamily, settings HLSSettings) (codec string, rateControl []string) {
	switch family {
	case NVIDIA:
		return "h264_nvenc", []string{"-rc", "vbr", "-preset", "p4"}
	case INTEL:
		return "h264_qsv", []string{"-preset", settings.EncoderPreset}
	case AMD:
		return "h264_amf", []string{"-rc", "vbr_peak", "-quality", "balanced"}
	case APPLE:
		return "h264_videotoolbox", nil
	case VAAPI:
		return "h264_vaapi", nil
	default:
		args := []string{"-preset", settings.EncoderPreset}
		if settings.CRF > 0 {
			args = append(args, "-crf", fmt.Sprintf("%d", settings.CRF))
		}
		return "libx264", args
	}
}
