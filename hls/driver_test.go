package hls

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	if got := parseClock("00", "02", "03.500"); got != 123.5 {
		t.Fatalf("parseClock = %v, want 123.5", got)
	}
}

func TestExtractFFmpegMessageMatchesKnownError(t *testing.T) {
	stderr := "frame=1\nError while opening decoder for input stream\nsome detail\nmore detail\ntrailing\n"
	got := extractFFmpegMessage(stderr)
	if got == "" {
		t.Fatal("expected a non-empty message")
	}
	if got[:len("Error while opening")] != "Error while opening" {
		t.Fatalf("extractFFmpegMessage = %q, want it to start with the matched line", got)
	}
}

func TestExtractFFmpegMessageFallsBackToLastLines(t *testing.T) {
	stderr := "line one\nline two\nline three\nline four\n"
	got := extractFFmpegMessage(stderr)
	want := "line two | line three | line four"
	if got != want {
		t.Fatalf("extractFFmpegMessage = %q, want %q", got, want)
	}
}

func TestArgvBuilderBuild(t *testing.T) {
	argv := NewArgvBuilder("ffmpeg").
		Global("-y").
		Input("in.mkv").
		Output("out.m3u8", "-f", "hls").
		Build()

	want := []string{"ffmpeg", "-hide_banner", "-y", "-i", "in.mkv", "-f", "hls", "out.m3u8"}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("argv[%d] = %q, want %q", i, argv[i], want[i])
		}
	}
}

func TestDriverRunSuccess(t *testing.T) {
	driver := NewDriver(nil)
	argv := []string{"/bin/sh", "-c", "echo Duration: 00:00:02.00 >&2; echo time=00:00:01.00 speed=2.0x >&2; exit 0"}

	var lastProgress, lastSpeed float64
	_, stderr, err := driver.Run(argv, 0, func(progress, speed float64) {
		lastProgress, lastSpeed = progress, speed
	})
	if err != nil {
		t.Fatalf("Run: %v, stderr=%s", err, stderr)
	}
	if lastProgress <= 0 {
		t.Fatalf("expected a positive progress reading, got %v", lastProgress)
	}
	if lastSpeed != 2.0 {
		t.Fatalf("lastSpeed = %v, want 2.0", lastSpeed)
	}
}

func TestDriverRunFailure(t *testing.T) {
	driver := NewDriver(nil)
	argv := []string{"/bin/sh", "-c", "echo Invalid data found >&2; exit 1"}

	_, _, err := driver.Run(argv, 0, nil)
	if err == nil {
		t.Fatal("expected an error for a nonzero exit")
	}
	if !IsKind(err, FFmpegKind) {
		t.Fatalf("expected FFmpegKind, got %v", err)
	}
}

func TestDriverRunTimeout(t *testing.T) {
	driver := NewDriver(nil)
	argv := []string{"/bin/sh", "-c", "sleep 5"}

	start := time.Now()
	_, _, err := driver.Run(argv, 200*time.Millisecond, nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if elapsed > 4*time.Second {
		t.Fatalf("terminate took too long: %v", elapsed)
	}
}

func TestDriverRunEmptyArgv(t *testing.T) {
	driver := NewDriver(nil)
	if _, _, err := driver.Run(nil, 0, nil); err == nil {
		t.Fatal("expected an error for an empty argv")
	}
}

func TestDriverRunProgressCallbackPanicRecovered(t *testing.T) {
	driver := NewDriver(nil)
	argv := []string{"/bin/sh", "-c", "echo Duration: 00:00:01.00 >&2; echo time=00:00:00.50 >&2; exit 0"}

	_, _, err := driver.Run(argv, 0, func(progress, speed float64) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("a panicking progress callback must not fail the run: %v", err)
	}
}

func TestFakeFFmpegScriptIsExecutable(t *testing.T) {
	tmp := t.TempDir()
	path := writeFakeFFmpeg(t, tmp, "deny")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode()&0o100 == 0 {
		t.Fatal("expected the generated script to be executable")
	}
	if filepath.Base(path) != "fake-ffmpeg.sh" {
		t.Fatalf("unexpected script name %q", filepath.Base(path))
	}
}
