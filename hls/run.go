package hls

import (
	"os"
	"sort"

	"github.com/hashicorp/go-hclog"
)

// RunResult is everything one transcode produces: the execution summary,
// the playlist paths it wrote, and the validator's structural re-read.
type RunResult struct {
	Summary        ExecutionSummary
	MasterPlaylist string
	MetadataPath   string
	Validation     ValidationResult
}

// Run drives one source file through the full pipeline — inspect, detect
// hardware, plan, execute, emit the playlist, validate — and returns a
// RunResult. It returns an error with no result if the run cannot start
// (output directory creation, inspection, hardware detection, or planning
// error), and a RunResult holding only Summary together with an error if
// writing the master playlist or metadata fails; per-task failures are
// reported inside Summary, never as a returned error, per the propagation
// policy.
// cancel, if non-nil, is watched for the duration of the run: a close or
// send causes the executor's cancel flag to be set, so any task still
// PENDING is reported as cancelled rather than spawning a child (see
// Executor.Cancel). Pass nil for an uncancellable run.
func Run(sourcePath, outputDir string, cfg *Config, logger hclog.Logger, metrics *Metrics, onProgress ProgressCallback, cancel <-chan struct{}) (*RunResult, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	log := logger.Named("run")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, wrapError(TranscodingKind, err, "create output directory %s", outputDir)
	}

	driver := NewDriver(logger)
	inspector := NewInspector(driver, cfg.FFprobeBinary, logger)

	info, err := inspector.Inspect(sourcePath)
	if err != nil {
		return nil, err
	}
	for _, w := range Warnings(info) {
		log.Warn("inspection warning", "detail", string(w))
	}

	detector := NewHardwareDetector(driver, cfg.FFmpegBinary, logger)
	hw, err := detector.Detect(cfg.Hardware, false)
	if err != nil {
		return nil, err
	}
	log.Info("hardware detected", "family", hw.DetectedFamily, "encoder", hw.SelectedEncoder)

	planner := NewPlanner(logger)
	plan, err := planner.CreatePlan(info, hw, cfg, cfg.IncludeAudio, cfg.IncludeSubtitles, cfg.IncludeSprites, cfg.OriginalOnly)
	if err != nil {
		return nil, err
	}

	videoWorker := NewVideoWorker(driver, cfg.FFmpegBinary, logger)
	audioWorker := NewAudioWorker(driver, cfg.FFmpegBinary, logger)
	subtitleWorker := NewSubtitleWorker(driver, cfg.FFmpegBinary, logger)
	spriteWorker := NewSpriteWorker(driver, cfg.FFmpegBinary, logger)

	executor := NewExecutor(videoWorker, audioWorker, subtitleWorker, spriteWorker, metrics, logger)

	if cancel != nil {
		go func() {
			<-cancel
			log.Warn("run cancelled")
			executor.Cancel()
		}()
	}

	summary := executor.Execute(plan, info.DurationSec, hw, cfg, outputDir, onProgress)

	outputs := make(map[string]string, len(summary.Results))
	for _, r := range summary.Results {
		if r.Success {
			outputs[r.TaskID] = r.OutputPath
		}
	}

	manifest := buildManifest(outputDir, info, plan, outputs)

	generator := NewPlaylistGenerator(logger)
	masterPath, metadataPath, err := generator.Generate(manifest)
	if err != nil {
		return &RunResult{Summary: summary}, err
	}

	validator := NewValidator(logger)
	validation := validator.Validate(outputDir, manifest)

	return &RunResult{
		Summary:        summary,
		MasterPlaylist: masterPath,
		MetadataPath:   metadataPath,
		Validation:     validation,
	}, nil
}

// buildManifest assembles a PackageManifest from a completed plan,
// including only renditions whose task actually produced output. Video
// variants are sorted by bitrate, highest first.
func buildManifest(outputDir string, info *MediaInfo, plan *TaskPlan, outputs map[string]string) *PackageManifest {
	manifest := &PackageManifest{OutputDir: outputDir, Source: info}

	streamLanguage := func(index int) (string, bool) {
		for _, s := range info.AudioStreams {
			if s.Index == index {
				return s.Language, s.IsDefault
			}
		}
		return "und", false
	}

	for _, t := range plan.VideoTasks {
		path, ok := outputs[t.ID]
		if !ok {
			continue
		}
		manifest.Video = append(manifest.Video, VideoVariantInfo{
			Quality:      t.Quality,
			Width:        t.Width,
			Height:       t.Height,
			BitrateKbps:  t.BitrateKbps,
			FPS:          t.FPS,
			Codec:        t.Encoder,
			PlaylistPath: path,
		})
	}

	firstAudioSeen := false
	for _, t := range plan.AudioTasks {
		path, ok := outputs[t.ID]
		if !ok {
			continue
		}
		_, sourceDefault := streamLanguage(t.StreamIndex)
		isDefault := sourceDefault || !firstAudioSeen
		firstAudioSeen = true
		manifest.Audio = append(manifest.Audio, AudioTrackInfo{
			Language:     t.Language,
			Channels:     t.Channels,
			SampleRate:   t.SampleRate,
			BitrateKbps:  t.BitrateKbps,
			Codec:        t.Codec,
			PlaylistPath: path,
			IsDefault:    isDefault,
		})
	}

	for _, t := range plan.SubtitleTasks {
		path, ok := outputs[t.ID]
		if !ok {
			continue
		}
		manifest.Subtitles = append(manifest.Subtitles, SubtitleTrackInfo{
			Language: t.Language,
			FilePath: path,
			Forced:   t.Forced,
		})
	}

	sort.SliceStable(manifest.Video, func(i, j int) bool { return manifest.Video[i].BitrateKbps > manifest.Video[j].BitrateKbps })

	return manifest
}

// DetectHardware runs hardware detection standalone, for the CLI's
// "enumerate detected hardware" introspection surface.
func DetectHardware(cfg *Config, logger hclog.Logger) (*HardwareInfo, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	driver := NewDriver(logger)
	detector := NewHardwareDetector(driver, cfg.FFmpegBinary, logger)
	return detector.Detect(cfg.Hardware, false)
}

// ListProfileNames returns the known profile names, for the CLI's "list
// known profile names" introspection surface.
func ListProfileNames() []string {
	names := make([]string, 0, len(DefaultProfiles))
	for name := range DefaultProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
