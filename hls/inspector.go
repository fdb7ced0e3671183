package hls

import (
	"encoding/json"
	"os"

	"github.com/hashicorp/go-hclog"
)

// ffprobeFormat mirrors the "format" object of ffprobe's JSON output.
type ffprobeFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

type ffprobeDisposition struct {
	Default int `json:"default"`
	Forced  int `json:"forced"`
}

type ffprobeStream struct {
	Index         int                 `json:"index"`
	CodecType     string              `json:"codec_type"`
	CodecName     string              `json:"codec_name"`
	CodecTagName  string              `json:"codec_tag_string"`
	Width         int                 `json:"width"`
	Height        int                 `json:"height"`
	RFrameRate    string              `json:"r_frame_rate"`
	AvgFrameRate  string              `json:"avg_frame_rate"`
	PixFmt        string              `json:"pix_fmt"`
	ColorSpace    string              `json:"color_space"`
	ColorRange    string              `json:"color_range"`
	Channels      int                 `json:"channels"`
	ChannelLayout string              `json:"channel_layout"`
	SampleRate    string              `json:"sample_rate"`
	BitRate       string              `json:"bit_rate"`
	Duration      string              `json:"duration"`
	Disposition   ffprobeDisposition  `json:"disposition"`
	Tags          map[string]string   `json:"tags"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat    `json:"format"`
	Streams []ffprobeStream  `json:"streams"`
}

// Inspector runs ffprobe against a source file and produces a MediaInfo,
// falling back to container tag statistics when stream-level fields are
// absent (the common MKV case).
type Inspector struct {
	driver  *Driver
	ffprobe string
	logger  hclog.Logger
}

// NewInspector constructs an Inspector. ffprobeBin defaults to "ffprobe" on
// PATH when empty.
func NewInspector(driver *Driver, ffprobeBin string, logger hclog.Logger) *Inspector {
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Inspector{driver: driver, ffprobe: ffprobeBin, logger: logger.Named("inspector")}
}

// Inspect parses ffprobe's JSON description of path into a MediaInfo.
func (ins *Inspector) Inspect(path string) (*MediaInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, wrapError(InspectionKind, err, "stat %s", path)
	}
	if !st.Mode().IsRegular() {
		return nil, newError(InspectionKind, "%s is not a regular file", path)
	}

	argv := NewArgvBuilder(ins.ffprobe).
		Global("-v", "quiet", "-print_format", "json", "-show_format", "-show_streams").
		Input(path).
		Build()

	stdout, stderr, err := ins.driver.Run(argv, 0, nil)
	if err != nil {
		return nil, wrapError(InspectionKind, err, "ffprobe failed on %s: %s", path, stderr)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal([]byte(stdout), &parsed); err != nil {
		return nil, wrapError(InspectionKind, err, "parse ffprobe JSON for %s", path)
	}

	info := &MediaInfo{Path: path, Format: parsed.Format.FormatName, SizeBytes: atoi64(parsed.Format.Size)}
	info.DurationSec, _ = parseFloat(parsed.Format.Duration)
	info.BitrateBPS = atoi64(parsed.Format.BitRate)

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			info.VideoStreams = append(info.VideoStreams, parseVideoStream(s))
		case "audio":
			info.AudioStreams = append(info.AudioStreams, parseAudioStream(s))
		case "subtitle":
			info.SubtitleStreams = append(info.SubtitleStreams, parseSubtitleStream(s))
		}
	}

	return info, nil
}

func base(s ffprobeStream) StreamBase {
	lang := "und"
	if s.Tags != nil {
		if l, ok := s.Tags["language"]; ok && l != "" {
			lang = l
		}
	}
	title := ""
	if s.Tags != nil {
		title = s.Tags["title"]
	}

	isDefault := true
	if s.Disposition.Default == 0 {
		isDefault = false
	}

	b := StreamBase{
		Index:     s.Index,
		Codec:     s.CodecName,
		Language:  lang,
		Title:     title,
		IsDefault: isDefault,
	}

	if frames, ok := lookupStatisticsTag(s.Tags, "NUMBER_OF_FRAMES"); ok {
		if n, ok := parseTagInt(frames); ok {
			b.Frames = n
		}
	}
	if enc, ok := s.Tags["ENCODER"]; ok {
		b.Encoder = enc
	}
	return b
}

func resolveBitrate(streamBitRate string, tags map[string]string) int64 {
	if v := atoi64(streamBitRate); v != 0 {
		return v
	}
	if raw, ok := lookupStatisticsTag(tags, "BPS"); ok {
		if v, ok := parseTagInt(raw); ok {
			return v
		}
	}
	return 0
}

func resolveDuration(streamDuration string, tags map[string]string) float64 {
	if v, ok := parseFloat(streamDuration); ok && v != 0 {
		return v
	}
	if raw, ok := lookupStatisticsTag(tags, "DURATION"); ok {
		if v, ok := parseTagDuration(raw); ok {
			return v
		}
	}
	return 0
}

func parseVideoStream(s ffprobeStream) VideoStream {
	fps := parseFrameRateFraction(s.RFrameRate)
	if fps == 0 {
		fps = parseFrameRateFraction(s.AvgFrameRate)
	}

	v := VideoStream{
		StreamBase:  base(s),
		Width:       s.Width,
		Height:      s.Height,
		FPS:         fps,
		PixFmt:      s.PixFmt,
		ColorSpace:  s.ColorSpace,
		ColorRange:  s.ColorRange,
		DurationSec: resolveDuration(s.Duration, s.Tags),
	}
	v.Frames, _ = lookupFrames(s)
	return v
}

func lookupFrames(s ffprobeStream) (int64, bool) {
	if raw, ok := lookupStatisticsTag(s.Tags, "NUMBER_OF_FRAMES"); ok {
		return parseTagInt(raw)
	}
	return 0, false
}

func parseAudioStream(s ffprobeStream) AudioStream {
	layout := s.ChannelLayout
	if layout == "" {
		layout = DeriveChannelLayout(s.Channels)
	}

	return AudioStream{
		StreamBase:    base(s),
		Channels:      s.Channels,
		ChannelLayout: layout,
		SampleRate:    int(atoi64(s.SampleRate)),
		BitrateBPS:    resolveBitrate(s.BitRate, s.Tags),
		DurationSec:   resolveDuration(s.Duration, s.Tags),
	}
}

func parseSubtitleStream(s ffprobeStream) SubtitleStream {
	return SubtitleStream{
		StreamBase: base(s),
		Forced:     s.Disposition.Forced != 0,
	}
}

// InspectionWarning is a non-fatal observation produced after inspection;
// the caller decides whether to act on it.
type InspectionWarning string

// Warnings enumerates soft warnings about info, per the known checklist:
// no video streams, zero width/height, zero fps, limited codecs, no audio,
// zero size, zero duration.
func Warnings(info *MediaInfo) []InspectionWarning {
	var warnings []InspectionWarning

	if len(info.VideoStreams) == 0 {
		warnings = append(warnings, "no video streams")
	}
	for _, v := range info.VideoStreams {
		if v.Width == 0 || v.Height == 0 {
			warnings = append(warnings, "video stream has zero width or height")
		}
		if v.FPS == 0 {
			warnings = append(warnings, "video stream has zero fps")
		}
		if v.Codec == "av1" || v.Codec == "vp9" {
			warnings = append(warnings, InspectionWarning("video stream uses a known-limited codec: "+v.Codec))
		}
	}
	if len(info.AudioStreams) == 0 {
		warnings = append(warnings, "no audio streams")
	}
	if info.SizeBytes == 0 {
		warnings = append(warnings, "zero size")
	}
	if info.DurationSec == 0 {
		warnings = append(warnings, "zero duration")
	}

	return warnings
}
