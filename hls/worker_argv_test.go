package hls

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeArgvRecordingFFmpeg writes a script that appends its own argv (one
// token per line) to recordPath and exits 0, letting worker tests assert on
// the exact flags a Run() call produced without a real ffmpeg binary.
func writeArgvRecordingFFmpeg(t *testing.T, dir, recordPath string) string {
	t.Helper()
	path := filepath.Join(dir, "record-ffmpeg.sh")
	script := "#!/bin/sh\nfor a in \"$@\"; do printf '%s\\n' \"$a\" >> " + recordPath + "; done\nexit 0\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write recording ffmpeg: %v", err)
	}
	return path
}

func readArgv(t *testing.T, recordPath string) []string {
	t.Helper()
	data, err := os.ReadFile(recordPath)
	if err != nil {
		t.Fatalf("read recorded argv: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func containsAdjacent(argv []string, flag, value string) bool {
	for i := 0; i+1 < len(argv); i++ {
		if argv[i] == flag && argv[i+1] == value {
			return true
		}
	}
	return false
}

func TestVideoWorkerRunBuildsExpectedArgv(t *testing.T) {
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "argv.txt")
	fakeFFmpeg := writeArgvRecordingFFmpeg(t, dir, recordPath)

	worker := NewVideoWorker(NewDriver(nil), fakeFFmpeg, nil)
	task := &VideoTask{
		TaskBase:    TaskBase{ID: "v1", SourcePath: "source.mkv", OutputDir: "video_720p"},
		Quality:     Quality720p, Width: 1280, Height: 720,
		BitrateKbps: 2000, MaxrateKbps: 3000, BufsizeKbps: 4000, FPS: 30,
	}
	hw := &HardwareInfo{DetectedFamily: SOFTWARE, SelectedEncoder: "libx264"}
	cfg := DefaultConfig()

	if _, err := worker.Run(task, hw, cfg.HLS, dir); err != nil {
		t.Fatalf("Run: %v", err)
	}

	argv := readArgv(t, recordPath)
	if !containsAdjacent(argv, "-c:v", "libx264") {
		t.Fatalf("expected -c:v libx264 in argv: %v", argv)
	}
	if !containsAdjacent(argv, "-b:v", "2000k") {
		t.Fatalf("expected -b:v 2000k in argv: %v", argv)
	}
	if !containsAdjacent(argv, "-i", "source.mkv") {
		t.Fatalf("expected -i source.mkv in argv: %v", argv)
	}
}

func TestVideoWorkerRunSelectsVAAPIFilters(t *testing.T) {
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "argv.txt")
	fakeFFmpeg := writeArgvRecordingFFmpeg(t, dir, recordPath)

	worker := NewVideoWorker(NewDriver(nil), fakeFFmpeg, nil)
	task := &VideoTask{
		TaskBase:    TaskBase{ID: "v1", SourcePath: "source.mkv", OutputDir: "video_720p"},
		Quality:     Quality720p, Width: 1280, Height: 720,
		BitrateKbps: 2000, MaxrateKbps: 3000, BufsizeKbps: 4000, FPS: 30,
	}
	hw := &HardwareInfo{DetectedFamily: VAAPI, SelectedEncoder: "h264_vaapi"}
	cfg := DefaultConfig()

	if _, err := worker.Run(task, hw, cfg.HLS, dir); err != nil {
		t.Fatalf("Run: %v", err)
	}

	argv := readArgv(t, recordPath)
	if !containsAdjacent(argv, "-c:v", "h264_vaapi") {
		t.Fatalf("expected -c:v h264_vaapi in argv: %v", argv)
	}
	found := false
	for _, a := range argv {
		if strings.HasPrefix(a, "vaapi=va:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a vaapi=va: device init token in argv: %v", argv)
	}
}

func TestAudioWorkerRunStreamCopySkipsEncodeFlags(t *testing.T) {
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "argv.txt")
	fakeFFmpeg := writeArgvRecordingFFmpeg(t, dir, recordPath)

	worker := NewAudioWorker(NewDriver(nil), fakeFFmpeg, nil)
	task := &AudioTask{
		TaskBase:   TaskBase{ID: "a1", SourcePath: "source.mkv", OutputDir: "audio_eng"},
		Language:   "eng", StreamCopy: true,
	}

	if _, err := worker.Run(task, AudioSettings{SegmentSize: 10}, dir); err != nil {
		t.Fatalf("Run: %v", err)
	}

	argv := readArgv(t, recordPath)
	if !containsAdjacent(argv, "-c:a", "copy") {
		t.Fatalf("expected -c:a copy for a stream-copy task: %v", argv)
	}
}

func TestAudioWorkerRunEncodesWithBitrate(t *testing.T) {
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "argv.txt")
	fakeFFmpeg := writeArgvRecordingFFmpeg(t, dir, recordPath)

	worker := NewAudioWorker(NewDriver(nil), fakeFFmpeg, nil)
	task := &AudioTask{
		TaskBase:    TaskBase{ID: "a1", SourcePath: "source.mkv", OutputDir: "audio_eng"},
		Language:    "eng", BitrateKbps: 128, Channels: 2, SampleRate: 48000,
	}

	if _, err := worker.Run(task, AudioSettings{SegmentSize: 10}, dir); err != nil {
		t.Fatalf("Run: %v", err)
	}

	argv := readArgv(t, recordPath)
	if !containsAdjacent(argv, "-b:a", "128k") {
		t.Fatalf("expected -b:a 128k: %v", argv)
	}
	if !containsAdjacent(argv, "-ar", "48000") {
		t.Fatalf("expected -ar 48000: %v", argv)
	}
}

func TestSubtitleWorkerRunCopiesMatchingCodec(t *testing.T) {
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "argv.txt")
	fakeFFmpeg := writeArgvRecordingFFmpeg(t, dir, recordPath)

	worker := NewSubtitleWorker(NewDriver(nil), fakeFFmpeg, nil)
	task := &SubtitleTask{
		TaskBase:    TaskBase{ID: "s1", SourcePath: "source.mkv", OutputDir: "subtitles"},
		Language:    "eng", StreamIndex: 3, SourceCodec: "webvtt",
	}

	outPath, err := worker.Run(task, "webvtt", dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasSuffix(outPath, "subtitle_eng.vtt") {
		t.Fatalf("outPath = %q, want suffix subtitle_eng.vtt", outPath)
	}

	argv := readArgv(t, recordPath)
	if !containsAdjacent(argv, "-c:s", "copy") {
		t.Fatalf("expected -c:s copy when source codec already matches target: %v", argv)
	}
	if !containsAdjacent(argv, "-map", "0:3") {
		t.Fatalf("expected -map 0:3: %v", argv)
	}
}

func TestSubtitleWorkerRunTranscodesMismatchedCodec(t *testing.T) {
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "argv.txt")
	fakeFFmpeg := writeArgvRecordingFFmpeg(t, dir, recordPath)

	worker := NewSubtitleWorker(NewDriver(nil), fakeFFmpeg, nil)
	task := &SubtitleTask{
		TaskBase:    TaskBase{ID: "s1", SourcePath: "source.mkv", OutputDir: "subtitles"},
		Language:    "eng", StreamIndex: 2, SourceCodec: "subrip", Forced: true,
	}

	outPath, err := worker.Run(task, "webvtt", dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(outPath, "subtitle_eng_forced.vtt") {
		t.Fatalf("outPath = %q, expected forced suffix", outPath)
	}

	argv := readArgv(t, recordPath)
	if !containsAdjacent(argv, "-c:s", "webvtt") {
		t.Fatalf("expected a transcode to webvtt for a mismatched source codec: %v", argv)
	}
}

// TestSpriteWorkerS6MultiSheetOverflow is seed scenario S6: a 2000s source
// sampled every 10s with a 10x10 grid produces 200 thumbnails, which
// overflows a single 100-cell sheet into exactly 2 sheets.
func TestSpriteWorkerS6MultiSheetOverflow(t *testing.T) {
	dir := t.TempDir()
	fakeFFmpeg := writeFakeFFmpeg(t, dir, "")

	worker := NewSpriteWorker(NewDriver(nil), fakeFFmpeg, nil)
	task := &SpriteTask{
		TaskBase:  TaskBase{ID: "sp1", SourcePath: "source.mkv", OutputDir: "sprites"},
		IntervalS: 10, TileW: 160, TileH: 90, Columns: 10, Rows: 10, Quality: 4,
	}

	vttPath, err := worker.Run(task, 2000, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(vttPath)
	if err != nil {
		t.Fatalf("read vtt: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "sprite_0.png") || !strings.Contains(content, "sprite_1.png") {
		t.Fatalf("expected cues referencing both sprite_0.png and sprite_1.png, got:\n%s", content)
	}
	if strings.Contains(content, "sprite_2.png") {
		t.Fatal("expected exactly 2 sheets, found a third")
	}
	if got := strings.Count(content, "-->"); got != 200 {
		t.Fatalf("expected 200 cues, got %d", got)
	}
}
