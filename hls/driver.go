package hls

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ProgressFunc is invoked at most once per stderr line a driven process
// writes, with progress in [0,1] and an optional fps/speed-derived datum.
// Panics raised inside it are recovered and logged, never propagated.
type ProgressFunc func(progress float64, speed float64)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)
	timeRe     = regexp.MustCompile(`time=\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)
	fpsRe      = regexp.MustCompile(`fps=\s*([\d.]+)`)
	speedRe    = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

var ffmpegErrSubstrings = []*regexp.Regexp{
	regexp.MustCompile(`Error while (opening|decoding|encoding)`),
	regexp.MustCompile(`Invalid data found`),
	regexp.MustCompile(`No such file or directory`),
	regexp.MustCompile(`Permission denied`),
	regexp.MustCompile(`Unknown encoder`),
	regexp.MustCompile(`Codec .* is not supported`),
	regexp.MustCompile(`Invalid argument`),
}

func parseClock(h, m, s string) float64 {
	hh, _ := strconv.ParseFloat(h, 64)
	mm, _ := strconv.ParseFloat(m, 64)
	ss, _ := strconv.ParseFloat(s, 64)
	return hh*3600 + mm*60 + ss
}

// extractFFmpegMessage scans stderr for the first line matching one of the
// known ffmpeg error substrings and returns it joined with the two following
// lines; falling back to the last three non-empty lines when nothing matches.
func extractFFmpegMessage(stderr string) string {
	lines := strings.Split(stderr, "\n")
	for i, line := range lines {
		for _, re := range ffmpegErrSubstrings {
			if re.MatchString(line) {
				end := i + 3
				if end > len(lines) {
					end = len(lines)
				}
				return strings.Join(lines[i:end], " | ")
			}
		}
	}

	var nonEmpty []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(line))
		}
	}
	if len(nonEmpty) > 3 {
		nonEmpty = nonEmpty[len(nonEmpty)-3:]
	}
	return strings.Join(nonEmpty, " | ")
}

// Driver runs ffmpeg/ffprobe child processes, parsing streaming stderr
// progress and enforcing timeouts and graceful-then-forceful termination.
type Driver struct {
	logger hclog.Logger
}

// NewDriver constructs a Driver. A nil logger falls back to a null logger.
func NewDriver(logger hclog.Logger) *Driver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Driver{logger: logger.Named("driver")}
}

// Run spawns argv[0] with argv[1:], draining stdout/stderr concurrently so
// long-running ffmpeg children cannot deadlock on a full pipe buffer. It
// parses stderr for Duration:/time=/fps=/speed= markers and calls onProgress
// at most once per line. A zero timeout means no deadline.
func (d *Driver) Run(argv []string, timeout time.Duration, onProgress ProgressFunc) (stdout string, stderr string, err error) {
	if len(argv) == 0 {
		return "", "", newError(FFmpegKind, "empty argv")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", wrapError(FFmpegKind, err, "create stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", wrapError(FFmpegKind, err, "create stderr pipe")
	}

	d.logger.Debug("+ "+strings.Join(argv, " "))

	if err := cmd.Start(); err != nil {
		return "", "", wrapError(FFmpegKind, err, "start %s", argv[0])
	}

	var stdoutBuf, stderrBuf strings.Builder
	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})

	go func() {
		defer close(stdoutDone)
		io.Copy(&stdoutBuf, stdoutPipe)
	}()

	go func() {
		defer close(stderrDone)
		d.streamStderr(stderrPipe, &stderrBuf, onProgress)
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case werr := <-waitDone:
		<-stdoutDone
		<-stderrDone
		if werr != nil {
			return stdoutBuf.String(), stderrBuf.String(), ffmpegError(argv, stderrBuf.String())
		}
		return stdoutBuf.String(), stderrBuf.String(), nil
	case <-timeoutCh:
		d.terminate(cmd)
		<-stdoutDone
		<-stderrDone
		<-waitDone
		return stdoutBuf.String(), stderrBuf.String(), timeoutError(timeout.Seconds())
	}
}

func (d *Driver) streamStderr(r io.Reader, buf *strings.Builder, onProgress ProgressFunc) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var durationSeconds float64
	haveDuration := false

	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')

		if !haveDuration {
			if m := durationRe.FindStringSubmatch(line); m != nil {
				durationSeconds = parseClock(m[1], m[2], m[3])
				haveDuration = true
			}
			continue
		}

		tm := timeRe.FindStringSubmatch(line)
		if tm == nil {
			continue
		}

		var progress float64
		if durationSeconds > 0 {
			elapsed := parseClock(tm[1], tm[2], tm[3])
			progress = elapsed / durationSeconds
			if progress > 1.0 {
				progress = 1.0
			}
		}

		var speed float64
		if sm := speedRe.FindStringSubmatch(line); sm != nil {
			speed, _ = strconv.ParseFloat(sm[1], 64)
		} else if fm := fpsRe.FindStringSubmatch(line); fm != nil {
			fps, _ := strconv.ParseFloat(fm[1], 64)
			speed = fps / 30.0
		}

		if onProgress != nil {
			d.dispatch(onProgress, progress, speed)
		}
	}
}

func (d *Driver) dispatch(onProgress ProgressFunc, progress, speed float64) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("progress callback panicked", "recover", fmt.Sprintf("%v", r))
		}
	}()
	onProgress(progress, speed)
}

// terminate sends SIGTERM, waits up to 5s, then escalates to SIGKILL. Safe
// to call on an already-exited process.
func (d *Driver) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		syscall.Kill(-pgid, syscall.SIGTERM)
	}

	exited := make(chan struct{})
	go func() {
		cmd.Process.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		return
	case <-time.After(5 * time.Second):
	}

	pgid, err = syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		syscall.Kill(-pgid, syscall.SIGKILL)
	}
	<-exited
}

// ArgvBuilder is a small fluent helper for constructing ffmpeg/ffprobe argv:
// global options, per-input options + path, per-output options + path, with
// -hide_banner always present.
type ArgvBuilder struct {
	binary string
	global []string
	inputs []string
	output []string
}

// NewArgvBuilder starts a builder for the given binary ("ffmpeg" or
// "ffprobe"), with -hide_banner pre-seeded.
func NewArgvBuilder(binary string) *ArgvBuilder {
	return &ArgvBuilder{binary: binary, global: []string{"-hide_banner"}}
}

func (b *ArgvBuilder) Global(args ...string) *ArgvBuilder {
	b.global = append(b.global, args...)
	return b
}

func (b *ArgvBuilder) Input(path string, opts ...string) *ArgvBuilder {
	b.inputs = append(b.inputs, opts...)
	b.inputs = append(b.inputs, "-i", path)
	return b
}

func (b *ArgvBuilder) Output(path string, opts ...string) *ArgvBuilder {
	b.output = append(b.output, opts...)
	b.output = append(b.output, path)
	return b
}

func (b *ArgvBuilder) OutputOnly(opts ...string) *ArgvBuilder {
	b.output = append(b.output, opts...)
	return b
}

func (b *ArgvBuilder) Build() []string {
	argv := []string{b.binary}
	argv = append(argv, b.global...)
	argv = append(argv, b.inputs...)
	argv = append(argv, b.output...)
	return argv
}
