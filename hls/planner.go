package hls

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// familySpeed is the family-dependent real-time multiplier used for
// duration estimation.
var familySpeed = map[EncoderFamily]float64{
	NVIDIA:   3.0,
	APPLE:    2.5,
	INTEL:    2.5,
	AMD:      2.5,
	VAAPI:    2.0,
	SOFTWARE: 0.5,
}

// Planner derives a quality ladder, materializes tasks, estimates
// resources, and chooses a concurrency strategy for one source.
type Planner struct {
	logger hclog.Logger
}

// NewPlanner constructs a Planner.
func NewPlanner(logger hclog.Logger) *Planner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Planner{logger: logger.Named("planner")}
}

// CreatePlan derives the full TaskPlan for info given the active config,
// resolved hardware, and the include/original-only flags.
func (p *Planner) CreatePlan(info *MediaInfo, hw *HardwareInfo, cfg *Config, includeAudio, includeSubtitles, includeSprites, originalOnly bool) (*TaskPlan, error) {
	if info.DurationSec <= 0 {
		return nil, newError(TranscodingKind, "source has zero duration, refusing to plan")
	}
	if len(info.VideoStreams) == 0 {
		return nil, newError(TranscodingKind, "source has no video stream to plan variants from")
	}

	sourceVideo := info.VideoStreams[0]

	variants, err := p.qualityLadder(sourceVideo, cfg, originalOnly)
	if err != nil {
		return nil, err
	}

	plan := &TaskPlan{SourcePath: info.Path}

	encoder := hw.SelectedEncoder
	if encoder == "" {
		encoder = "libx264"
	}

	for _, v := range variants {
		plan.VideoTasks = append(plan.VideoTasks, &VideoTask{
			TaskBase:    TaskBase{ID: newTaskID(), Type: VideoTaskType, SourcePath: info.Path, OutputDir: fmt.Sprintf("video_%s", v.resolvedLabel), Status: Pending},
			Quality:     v.resolvedLabel,
			Width:       v.width,
			Height:      v.height,
			BitrateKbps: v.variant.BitrateKbps,
			MaxrateKbps: v.variant.MaxrateKbps,
			BufsizeKbps: v.variant.BufsizeKbps,
			Encoder:     encoder,
			StreamIndex: sourceVideo.Index,
			FPS:         sourceVideo.FPS,
		})
	}

	if includeAudio {
		for _, a := range info.AudioStreams {
			plan.AudioTasks = append(plan.AudioTasks, &AudioTask{
				TaskBase:    TaskBase{ID: newTaskID(), Type: AudioTaskType, SourcePath: info.Path, OutputDir: fmt.Sprintf("audio_%s", a.Language), Status: Pending},
				Language:    a.Language,
				StreamIndex: a.Index,
				Codec:       cfg.Audio.Codec,
				BitrateKbps: cfg.Audio.BitrateKbps,
				Channels:    cfg.Audio.Channels,
				SampleRate:  cfg.Audio.SampleRate,
				StreamCopy:  shouldStreamCopy(a, cfg),
			})
		}
	}

	if includeSubtitles {
		for _, s := range info.SubtitleStreams {
			plan.SubtitleTasks = append(plan.SubtitleTasks, &SubtitleTask{
				TaskBase:    TaskBase{ID: newTaskID(), Type: SubtitleTaskType, SourcePath: info.Path, OutputDir: "subtitles", Status: Pending},
				Language:    s.Language,
				StreamIndex: s.Index,
				Forced:      s.Forced,
				SourceCodec: s.Codec,
			})
		}
	}

	if includeSprites && cfg.Sprite.Enable {
		plan.SpriteTask = &SpriteTask{
			TaskBase:  TaskBase{ID: newTaskID(), Type: SpriteTaskType, SourcePath: info.Path, OutputDir: "sprites", Status: Pending},
			IntervalS: cfg.Sprite.IntervalS,
			TileW:     cfg.Sprite.TileWidth,
			TileH:     cfg.Sprite.TileHeight,
			Columns:   cfg.Sprite.Columns,
			Rows:      cfg.Sprite.Rows,
			Quality:   cfg.Sprite.Quality,
		}
	}

	plan.Estimate = p.estimateResources(plan, info, hw)
	plan.Strategy = p.executionStrategy(plan, cfg, hw)

	return plan, nil
}

type ladderEntry struct {
	resolvedLabel QualityLabel
	width, height int
	variant       QualityVariant
}

// qualityLadder implements the central planner decision: either a single
// "original" variant, or the profile's surviving (non-upscaling) variants
// sorted by height descending.
func (p *Planner) qualityLadder(source VideoStream, cfg *Config, originalOnly bool) ([]ladderEntry, error) {
	if originalOnly {
		bitrate, maxrate, bufsize := estimateOriginalBitrate(source.Width, source.Height)
		return []ladderEntry{{
			resolvedLabel: QualityOriginal,
			width:         source.Width,
			height:        source.Height,
			variant:       QualityVariant{Label: QualityOriginal, BitrateKbps: bitrate, MaxrateKbps: maxrate, BufsizeKbps: bufsize},
		}}, nil
	}

	profile, err := cfg.ActiveProfile()
	if err != nil {
		return nil, err
	}

	var entries []ladderEntry
	for _, v := range profile.Variants {
		if v.Height > source.Height {
			continue // no upscaling
		}
		targetH := v.Height
		targetW := int(math.Round(float64(targetH) * float64(source.Width) / float64(source.Height)))
		targetH = evenDown(targetH)
		targetW = evenDown(targetW)

		entries = append(entries, ladderEntry{resolvedLabel: v.Label, width: targetW, height: targetH, variant: v})
	}

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].height > entries[i].height {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	return entries, nil
}

// estimateOriginalBitrate implements the original_only fallback: copy a
// matching preset if the source height lines up with one, else estimate
// 0.1 bit/s per pixel (width*height/10000 kbps).
func estimateOriginalBitrate(width, height int) (bitrate, maxrate, bufsize int) {
	if preset, ok := heightPresets[height]; ok {
		return preset.BitrateKbps, preset.MaxrateKbps, preset.BufsizeKbps
	}
	bitrate = int(0.1 * float64(width) * float64(height) / 1000)
	maxrate = bitrate * 3 / 2
	bufsize = bitrate * 2
	return
}

func shouldStreamCopy(a AudioStream, cfg *Config) bool {
	if !cfg.Audio.AllowCopy {
		return false
	}
	if a.Codec != "aac" {
		return false
	}
	if cfg.Audio.SampleRate != 0 && a.SampleRate != cfg.Audio.SampleRate {
		return false
	}
	if cfg.Audio.Channels != 0 && a.Channels != cfg.Audio.Channels {
		return false
	}
	return true
}

func (p *Planner) estimateResources(plan *TaskPlan, info *MediaInfo, hw *HardwareInfo) ResourceEstimate {
	speed := familySpeed[hw.DetectedFamily]
	if speed == 0 {
		speed = familySpeed[SOFTWARE]
	}

	videoDuration := info.DurationSec / speed
	audioDuration := info.DurationSec / 4
	subtitleDuration := info.DurationSec / 10
	spriteDuration := info.DurationSec / 5

	estDuration := videoDuration
	if plan.SpriteTask == nil {
		spriteDuration = 0
	}
	if len(plan.AudioTasks) == 0 {
		audioDuration = 0
	}
	if len(plan.SubtitleTasks) == 0 {
		subtitleDuration = 0
	}
	for _, d := range []float64{audioDuration, subtitleDuration, spriteDuration} {
		if d > estDuration {
			estDuration = d
		}
	}

	var outputBytes int64
	var peakMemoryMB float64 = 100

	for _, v := range plan.VideoTasks {
		outputBytes += int64(float64(v.BitrateKbps) * 1000 * info.DurationSec / 8)
		peakMemoryMB += 50 * float64(v.Width*v.Height) / 1e6
	}
	for _, a := range plan.AudioTasks {
		outputBytes += int64(float64(a.BitrateKbps) * 1000 * info.DurationSec / 8)
	}
	peakMemoryMB += 50 * float64(len(plan.AudioTasks))

	const subtitleBytes = 50 * 1024
	outputBytes += int64(len(plan.SubtitleTasks)) * subtitleBytes

	if plan.SpriteTask != nil {
		st := plan.SpriteTask
		thumbnails := maxInt(1, ceilDivFloat(info.DurationSec, st.IntervalS))
		sheetCount := ceilDiv(thumbnails, st.Columns*st.Rows)
		const spriteSheetBytes = 100 * 1024
		outputBytes += int64(sheetCount) * spriteSheetBytes
		peakMemoryMB += 200
	}

	diskNeeded := int64(1.3 * float64(outputBytes))

	totalTasks := len(plan.VideoTasks) + len(plan.AudioTasks) + len(plan.SubtitleTasks)
	if plan.SpriteTask != nil {
		totalTasks++
	}
	cpuCores := minInt(totalTasks, 8)
	if cpuCores == 0 {
		cpuCores = 1
	}

	gpuMemoryMB := 0
	if hw.DetectedFamily != SOFTWARE {
		gpuMemoryMB = 500 * len(plan.VideoTasks)
	}

	return ResourceEstimate{
		DurationSeconds: estDuration,
		OutputBytes:     outputBytes,
		PeakMemoryMB:    peakMemoryMB,
		DiskNeededBytes: diskNeeded,
		CPUCores:        cpuCores,
		GPUMemoryMB:     gpuMemoryMB,
	}
}

func ceilDivFloat(a, b float64) int {
	if b <= 0 {
		return 0
	}
	return int(math.Ceil(a / b))
}

func (p *Planner) executionStrategy(plan *TaskPlan, cfg *Config, hw *HardwareInfo) ExecutionStrategy {
	n := cfg.Performance.MaxParallelTasks
	if n < 1 {
		n = 1
	}

	hwLimit := cfg.Performance.MaxHWInstances
	if hw.DetectedFamily == SOFTWARE {
		hwLimit = maxInt(1, logicalCPUCount()/2)
	}
	if hwLimit < 1 {
		hwLimit = 1
	}

	videoCount := len(plan.VideoTasks)
	audioCount := len(plan.AudioTasks)
	subtitleCount := len(plan.SubtitleTasks)

	videoConcurrency := minInt3(videoCount, hwLimit, n)
	videoConcurrency = maxInt(1, videoConcurrency)

	audioConcurrency := minInt(audioCount, maxInt(1, (n-videoConcurrency)/2))
	audioConcurrency = maxInt(1, audioConcurrency)

	subtitleConcurrency := minInt(subtitleCount, maxInt(1, n-videoConcurrency-audioConcurrency))
	subtitleConcurrency = maxInt(1, subtitleConcurrency)

	spriteSeparate := plan.SpriteTask != nil && (videoCount+audioCount > 2)

	return ExecutionStrategy{
		VideoConcurrency:    videoConcurrency,
		AudioConcurrency:    audioConcurrency,
		SubtitleConcurrency: subtitleConcurrency,
		SpriteSeparate:      spriteSeparate,
		MaxTotalConcurrent:  n,
	}
}

func minInt3(a, b, c int) int {
	return minInt(a, minInt(b, c))
}

func newTaskID() string {
	return uuid.New().String()
}
