package hls

import (
	"math"
	"testing"
)

func softwareHardware() *HardwareInfo {
	return &HardwareInfo{DetectedFamily: SOFTWARE, SelectedEncoder: "libx264"}
}

func mediumConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = "medium"
	return cfg
}

// TestCreatePlanS1 is seed scenario S1: a 1080p30 source under the medium
// profile should produce three video variants (1080p, 720p, 480p), one
// audio task, and one subtitle task.
func TestCreatePlanS1(t *testing.T) {
	info := &MediaInfo{
		Path:        "source.mkv",
		DurationSec: 120,
		VideoStreams: []VideoStream{{
			StreamBase: StreamBase{Index: 0, Codec: "h264"},
			Width:      1920, Height: 1080, FPS: 30,
		}},
		AudioStreams: []AudioStream{{
			StreamBase: StreamBase{Index: 1, Codec: "aac", Language: "eng", IsDefault: true},
			Channels:   2, SampleRate: 48000,
		}},
		SubtitleStreams: []SubtitleStream{{
			StreamBase: StreamBase{Index: 2, Codec: "subrip", Language: "eng"},
		}},
	}

	planner := NewPlanner(nil)
	plan, err := planner.CreatePlan(info, softwareHardware(), mediumConfig(), true, true, false, false)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	if len(plan.VideoTasks) != 3 {
		t.Fatalf("expected 3 video variants, got %d", len(plan.VideoTasks))
	}
	wantLabels := []QualityLabel{Quality1080p, Quality720p, Quality480p}
	for i, task := range plan.VideoTasks {
		if task.Quality != wantLabels[i] {
			t.Errorf("video task %d quality = %s, want %s", i, task.Quality, wantLabels[i])
		}
	}
	if len(plan.AudioTasks) != 1 {
		t.Fatalf("expected 1 audio task, got %d", len(plan.AudioTasks))
	}
	if len(plan.SubtitleTasks) != 1 {
		t.Fatalf("expected 1 subtitle task, got %d", len(plan.SubtitleTasks))
	}
}

// TestCreatePlanS2 is seed scenario S2: a 4K source in original_only mode
// produces exactly one "original" variant at source resolution.
func TestCreatePlanS2(t *testing.T) {
	info := &MediaInfo{
		Path:        "source.mkv",
		DurationSec: 60,
		VideoStreams: []VideoStream{{
			StreamBase: StreamBase{Index: 0, Codec: "h264"},
			Width:      3840, Height: 2160, FPS: 24,
		}},
	}

	planner := NewPlanner(nil)
	plan, err := planner.CreatePlan(info, softwareHardware(), mediumConfig(), false, false, false, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	if len(plan.VideoTasks) != 1 {
		t.Fatalf("original_only must produce exactly one video variant, got %d", len(plan.VideoTasks))
	}
	v := plan.VideoTasks[0]
	if v.Quality != QualityOriginal {
		t.Fatalf("quality = %s, want original", v.Quality)
	}
	if v.Width != 3840 || v.Height != 2160 {
		t.Fatalf("resolution = %dx%d, want 3840x2160", v.Width, v.Height)
	}
}

// TestCreatePlanS3 is seed scenario S3: a non-standard aspect ratio source
// (1366x768) targeted at 720p must land on 1280x720 (1366*720/768 =
// 1280.625, floored to even 1280), with aspect preserved within 0.01.
func TestCreatePlanS3(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profile = "fast" // fast profile includes a 720p rung
	info := &MediaInfo{
		Path:        "source.mkv",
		DurationSec: 30,
		VideoStreams: []VideoStream{{
			StreamBase: StreamBase{Index: 0, Codec: "h264"},
			Width:      1366, Height: 768, FPS: 25,
		}},
	}

	planner := NewPlanner(nil)
	plan, err := planner.CreatePlan(info, softwareHardware(), cfg, false, false, false, false)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	var variant720 *VideoTask
	for _, v := range plan.VideoTasks {
		if v.Quality == Quality720p {
			variant720 = v
		}
	}
	if variant720 == nil {
		t.Fatal("expected a 720p variant in the fast profile")
	}
	if variant720.Height != 720 {
		t.Fatalf("height = %d, want 720", variant720.Height)
	}
	if variant720.Width != 1280 {
		t.Fatalf("width = %d, want 1280", variant720.Width)
	}

	sourceAspect := 1366.0 / 768.0
	targetAspect := float64(variant720.Width) / float64(variant720.Height)
	if math.Abs(sourceAspect-targetAspect) >= 0.01 {
		t.Fatalf("aspect ratio drift %v exceeds 0.01", math.Abs(sourceAspect-targetAspect))
	}
}

// TestCreatePlanNoUpscaling is testable property 1: the ladder never emits
// a rung taller than the source.
func TestCreatePlanNoUpscaling(t *testing.T) {
	info := &MediaInfo{
		Path:        "source.mkv",
		DurationSec: 30,
		VideoStreams: []VideoStream{{
			StreamBase: StreamBase{Index: 0, Codec: "h264"},
			Width:      640, Height: 360, FPS: 30,
		}},
	}

	planner := NewPlanner(nil)
	plan, err := planner.CreatePlan(info, softwareHardware(), mediumConfig(), false, false, false, false)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	for _, v := range plan.VideoTasks {
		if v.Height > info.VideoStreams[0].Height {
			t.Errorf("variant %s height %d exceeds source height %d", v.Quality, v.Height, info.VideoStreams[0].Height)
		}
	}
}

// TestCreatePlanEvenDimensions is testable property 2.
func TestCreatePlanEvenDimensions(t *testing.T) {
	info := &MediaInfo{
		Path:        "source.mkv",
		DurationSec: 30,
		VideoStreams: []VideoStream{{
			StreamBase: StreamBase{Index: 0, Codec: "h264"},
			Width:      1366, Height: 768, FPS: 30,
		}},
	}

	planner := NewPlanner(nil)
	plan, err := planner.CreatePlan(info, softwareHardware(), mediumConfig(), false, false, false, false)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	for _, v := range plan.VideoTasks {
		if v.Width%2 != 0 || v.Height%2 != 0 {
			t.Errorf("variant %s has odd dimension %dx%d", v.Quality, v.Width, v.Height)
		}
	}
}

func TestCreatePlanRejectsZeroDuration(t *testing.T) {
	info := &MediaInfo{Path: "x", DurationSec: 0, VideoStreams: []VideoStream{{Width: 100, Height: 100}}}
	planner := NewPlanner(nil)
	if _, err := planner.CreatePlan(info, softwareHardware(), mediumConfig(), false, false, false, false); err == nil {
		t.Fatal("expected an error for a zero-duration source")
	}
}

func TestShouldStreamCopy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audio.AllowCopy = true
	cfg.Audio.Channels = 2
	cfg.Audio.SampleRate = 48000

	matching := AudioStream{StreamBase: StreamBase{Codec: "aac"}, Channels: 2, SampleRate: 48000}
	if !shouldStreamCopy(matching, cfg) {
		t.Fatal("expected stream copy to be eligible when codec/channels/rate all match")
	}

	wrongCodec := AudioStream{StreamBase: StreamBase{Codec: "ac3"}, Channels: 2, SampleRate: 48000}
	if shouldStreamCopy(wrongCodec, cfg) {
		t.Fatal("non-AAC source must never be stream-copied")
	}

	cfg.Audio.AllowCopy = false
	if shouldStreamCopy(matching, cfg) {
		t.Fatal("AllowCopy=false must disable stream copy")
	}
}
