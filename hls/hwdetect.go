package hls

import (
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
)

// EncoderFamily is the closed set of encoder vendor families.
type EncoderFamily string

const (
	NVIDIA   EncoderFamily = "NVIDIA"
	INTEL    EncoderFamily = "INTEL"
	AMD      EncoderFamily = "AMD"
	APPLE    EncoderFamily = "APPLE"
	VAAPI    EncoderFamily = "VAAPI"
	SOFTWARE EncoderFamily = "SOFTWARE"
)

// familyPriority is the fixed fallback order the selection rule walks.
var familyPriority = []EncoderFamily{NVIDIA, APPLE, INTEL, AMD, VAAPI, SOFTWARE}

// knownEncoders is the fixed catalog cross-referenced against `ffmpeg
// -encoders` output to determine which families are available.
var knownEncoders = map[string]EncoderFamily{
	"h264_nvenc":       NVIDIA,
	"hevc_nvenc":       NVIDIA,
	"h264_qsv":         INTEL,
	"hevc_qsv":         INTEL,
	"h264_amf":         AMD,
	"hevc_amf":         AMD,
	"h264_videotoolbox": APPLE,
	"hevc_videotoolbox": APPLE,
	"h264_vaapi":       VAAPI,
	"hevc_vaapi":       VAAPI,
	"libx264":          SOFTWARE,
	"libx265":          SOFTWARE,
}

// EncoderInfo describes one encoder the detector found or knows about.
type EncoderInfo struct {
	Name        string
	Family      EncoderFamily
	DisplayName string
	Available   bool
	Tested      bool
	Error       string
}

// HardwareInfo is the result of hardware detection: the full set of
// encoder descriptors plus the resolved preferred family and the concrete
// H.264 encoder workers must use.
type HardwareInfo struct {
	Encoders       []EncoderInfo
	DetectedFamily EncoderFamily
	SelectedEncoder string
}

var videoEncoderLineRe = regexp.MustCompile(`^\s*V`)

// HardwareDetector enumerates and optionally probe-tests ffmpeg's encoders.
type HardwareDetector struct {
	driver  *Driver
	ffmpeg  string
	logger  hclog.Logger

	mu    sync.Mutex
	cache *HardwareInfo
}

// NewHardwareDetector constructs a HardwareDetector. ffmpegBin defaults to
// "ffmpeg" on PATH when empty.
func NewHardwareDetector(driver *Driver, ffmpegBin string, logger hclog.Logger) *HardwareDetector {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HardwareDetector{driver: driver, ffmpeg: ffmpegBin, logger: logger.Named("hwdetect")}
}

// ClearCache invalidates the memoized detection result.
func (d *HardwareDetector) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = nil
}

// Detect locates ffmpeg, enumerates its video encoders, optionally probe
// tests the non-software ones, and resolves the selected encoder per the
// family priority / user preference rule. Results are memoized.
func (d *HardwareDetector) Detect(prefer HardwarePreference, testEncoding bool) (*HardwareInfo, error) {
	d.mu.Lock()
	if d.cache != nil {
		info := *d.cache
		d.mu.Unlock()
		return &info, nil
	}
	d.mu.Unlock()

	if _, err := exec.LookPath(d.ffmpeg); err != nil {
		return nil, wrapError(HardwareKind, err, "ffmpeg not found on PATH")
	}

	argv := []string{d.ffmpeg, "-hide_banner", "-encoders"}
	stdout, stderr, err := d.driver.Run(argv, 0, nil)
	if err != nil {
		return nil, wrapError(HardwareKind, err, "enumerate encoders: %s", stderr)
	}

	var encoders []EncoderInfo
	for _, line := range strings.Split(stdout, "\n") {
		if !videoEncoderLineRe.MatchString(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := fields[1]
		family, known := knownEncoders[name]
		if !known {
			continue
		}
		encoders = append(encoders, EncoderInfo{Name: name, Family: family, DisplayName: name, Available: true})
	}

	if !hasFamily(encoders, SOFTWARE) {
		return nil, newError(HardwareKind, "no software encoder available — libx264 must always be present")
	}

	if testEncoding {
		for i := range encoders {
			if encoders[i].Family == SOFTWARE {
				continue
			}
			d.probe(&encoders[i])
		}
	}

	detected, selected := selectEncoder(encoders, prefer)

	info := &HardwareInfo{Encoders: encoders, DetectedFamily: detected, SelectedEncoder: selected}

	d.mu.Lock()
	cached := *info
	d.cache = &cached
	d.mu.Unlock()

	return info, nil
}

func hasFamily(encoders []EncoderInfo, family EncoderFamily) bool {
	for _, e := range encoders {
		if e.Family == family {
			return true
		}
	}
	return false
}

// selectEncoder applies the selection rule: user preference wins if
// available; otherwise walk the fixed priority list; within a family
// prefer an h264-named encoder.
func selectEncoder(encoders []EncoderInfo, prefer HardwarePreference) (EncoderFamily, string) {
	if prefer != "" && prefer != PreferAuto {
		family := EncoderFamily(strings.ToUpper(string(prefer)))
		if enc, ok := pickFromFamily(encoders, family); ok {
			return family, enc
		}
	}

	for _, family := range familyPriority {
		if enc, ok := pickFromFamily(encoders, family); ok {
			return family, enc
		}
	}

	return SOFTWARE, "libx264"
}

func pickFromFamily(encoders []EncoderInfo, family EncoderFamily) (string, bool) {
	var fallback string
	found := false
	for _, e := range encoders {
		if e.Family != family || !e.Available {
			continue
		}
		found = true
		if strings.Contains(e.Name, "h264") {
			return e.Name, true
		}
		if fallback == "" {
			fallback = e.Name
		}
	}
	if found {
		return fallback, true
	}
	return "", false
}

// probe runs a bounded 25-frame black-source test encode to confirm a
// hardware encoder actually works, per family-specific device init.
func (d *HardwareDetector) probe(enc *EncoderInfo) {
	argv := probeArgv(d.ffmpeg, enc.Name, enc.Family)

	_, stderr, err := d.driver.Run(argv, 10*time.Second, nil)
	enc.Tested = true
	if err != nil {
		enc.Available = false
		enc.Error = extractFFmpegMessage(stderr)
		if enc.Error == "" {
			enc.Error = err.Error()
		}
	}
}

func probeArgv(ffmpeg, encoderName string, family EncoderFamily) []string {
	b := NewArgvBuilder(ffmpeg).Global("-y")

	switch family {
	case NVIDIA:
		b.Global("-init_hw_device", "cuda=cu:0", "-filter_hw_device", "cu")
		b.Input("color=black:s=1280x720:d=1", "-f", "lavfi")
		b.OutputOnly("-vf", "format=nv12,hwupload_cuda")
	case INTEL:
		b.Global("-init_hw_device", "qsv=hw", "-filter_hw_device", "hw")
		b.Input("color=black:s=1280x720:d=1", "-f", "lavfi")
		b.OutputOnly("-vf", "format=nv12,hwupload=extra_hw_frames=64")
	case VAAPI:
		b.Global("-init_hw_device", "vaapi=va:"+defaultVAAPIRenderNode, "-filter_hw_device", "va")
		b.Input("color=black:s=1280x720:d=1", "-f", "lavfi")
		b.OutputOnly("-vf", "format=nv12,hwupload")
	default:
		b.Input("color=black:s=1280x720:d=1", "-f", "lavfi")
	}

	b.Output("-", "-frames:v", "25", "-c:v", encoderName, "-f", "null")
	return b.Build()
}

// logicalCPUCount returns the number of logical cores via gopsutil, used by
// the planner's software hardware limit.
func logicalCPUCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}
