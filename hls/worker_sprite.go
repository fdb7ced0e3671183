package hls

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// SpriteWorker runs the three-phase thumbnail/sheet/VTT pipeline: extract
// thumbnails, tile them into one or more sheets, then emit the WebVTT cue
// index. The temporary thumbnail directory is always cleaned up.
type SpriteWorker struct {
	driver *Driver
	ffmpeg string
	logger hclog.Logger
}

func NewSpriteWorker(driver *Driver, ffmpegBin string, logger hclog.Logger) *SpriteWorker {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SpriteWorker{driver: driver, ffmpeg: ffmpegBin, logger: logger.Named("worker.sprite")}
}

// Run produces sprites/sprite[.png|_<i>.png] and sprites/sprite.vtt under
// outputRoot, returning the VTT path.
func (w *SpriteWorker) Run(task *SpriteTask, durationSec float64, outputRoot string) (string, error) {
	dir := filepath.Join(outputRoot, task.OutputDir)
	thumbDir := filepath.Join(dir, "temp_thumbnails")
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return "", wrapError(TranscodingKind, err, "create thumbnail dir for sprite task %s", task.ID)
	}
	defer os.RemoveAll(thumbDir)

	thumbnails := maxInt(1, ceilDivFloat(durationSec, task.IntervalS))

	if err := w.extractThumbnails(task, thumbDir, thumbnails); err != nil {
		return "", err
	}
	task.Progress = 0.6

	sheetFiles, err := w.composeSheets(task, dir, thumbDir, thumbnails)
	if err != nil {
		return "", err
	}
	task.Progress = 0.9

	vttPath, err := w.writeVTT(task, dir, sheetFiles, thumbnails, durationSec)
	if err != nil {
		return "", err
	}
	task.Progress = 1.0

	return vttPath, nil
}

func (w *SpriteWorker) extractThumbnails(task *SpriteTask, thumbDir string, thumbnails int) error {
	pattern := filepath.Join(thumbDir, "thumb_%04d.jpg")

	argv := NewArgvBuilder(w.ffmpeg).
		Global("-y").
		Input(task.SourcePath).
		Output(pattern,
			"-vf", fmt.Sprintf("fps=1/%g,scale=%d:%d", task.IntervalS, task.TileW, task.TileH),
			"-frames:v", fmt.Sprintf("%d", thumbnails),
			"-q:v", fmt.Sprintf("%d", task.Quality),
		).
		Build()

	_, stderr, err := w.driver.Run(argv, 10*time.Minute, nil)
	if err != nil {
		return wrapError(TranscodingKind, err, "sprite thumbnail extraction for task %s: %s", task.ID, stderr)
	}
	return nil
}

// composeSheets tiles thumbnails into sheet_count sheets, where sheet_count
// = ceil(thumbnails/(cols*rows)); a single sheet is named sprite.png, else
// sprite_<i>.png.
func (w *SpriteWorker) composeSheets(task *SpriteTask, dir, thumbDir string, thumbnails int) ([]string, error) {
	perSheet := task.Columns * task.Rows
	sheetCount := ceilDiv(thumbnails, perSheet)

	var sheetFiles []string
	for i := 0; i < sheetCount; i++ {
		first := i*perSheet + 1
		last := minInt((i+1)*perSheet, thumbnails)
		sheetThumbCount := last - first + 1
		effectiveRows := ceilDiv(sheetThumbCount, task.Columns)

		var sheetName string
		if sheetCount == 1 {
			sheetName = "sprite.png"
		} else {
			sheetName = fmt.Sprintf("sprite_%d.png", i)
		}
		sheetPath := filepath.Join(dir, sheetName)

		argv := NewArgvBuilder(w.ffmpeg).
			Global("-y", "-start_number", fmt.Sprintf("%d", first)).
			Input(filepath.Join(thumbDir, "thumb_%04d.jpg")).
			Output(sheetPath,
				"-frames:v", "1",
				"-filter_complex", fmt.Sprintf("tile=%dx%d", task.Columns, effectiveRows),
				"-c:v", "png",
			).
			Build()

		_, stderr, err := w.driver.Run(argv, 5*time.Minute, nil)
		if err != nil {
			return nil, wrapError(TranscodingKind, err, "sprite sheet %d for task %s: %s", i, task.ID, stderr)
		}

		sheetFiles = append(sheetFiles, sheetName)
	}

	return sheetFiles, nil
}

// writeVTT emits sprite.vtt: one cue per thumbnail, pointing at its sheet's
// xywh fragment.
func (w *SpriteWorker) writeVTT(task *SpriteTask, dir string, sheetFiles []string, thumbnails int, durationSec float64) (string, error) {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")

	perSheet := task.Columns * task.Rows

	for k := 0; k < thumbnails; k++ {
		start := float64(k) * task.IntervalS
		end := math.Min(float64(k+1)*task.IntervalS, durationSec)

		sheetIdx := k / perSheet
		posInSheet := k % perSheet
		col := posInSheet % task.Columns
		row := posInSheet / task.Columns

		x := col * task.TileW
		y := row * task.TileH

		fmt.Fprintf(&b, "%s --> %s\n", formatVTTTime(start), formatVTTTime(end))
		fmt.Fprintf(&b, "%s#xywh=%d,%d,%d,%d\n\n", sheetFiles[sheetIdx], x, y, task.TileW, task.TileH)
	}

	vttPath := filepath.Join(dir, "sprite.vtt")
	if err := os.WriteFile(vttPath, []byte(b.String()), 0o644); err != nil {
		return "", wrapError(TranscodingKind, err, "write sprite vtt for task %s", task.ID)
	}

	return vttPath, nil
}

func formatVTTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(math.Round(seconds * 1000))
	ms := totalMs % 1000
	totalSec := totalMs / 1000
	s := totalSec % 60
	totalMin := totalSec / 60
	m := totalMin % 60
	h := totalMin / 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
