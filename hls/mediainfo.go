package hls

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MediaInfo is the inspection result: a read-only description of one source
// container, created once by the Inspector.
type MediaInfo struct {
	Path          string
	Format        string
	DurationSec   float64
	SizeBytes     int64
	BitrateBPS    int64
	VideoStreams  []VideoStream
	AudioStreams  []AudioStream
	SubtitleStreams []SubtitleStream
}

// StreamBase holds the fields common to every stream descriptor.
type StreamBase struct {
	Index     int
	Codec     string
	Language  string
	Title     string
	IsDefault bool
	Frames    int64
	Encoder   string
}

// VideoStream describes one video stream.
type VideoStream struct {
	StreamBase
	Width       int
	Height      int
	FPS         float64
	PixFmt      string
	ColorSpace  string
	ColorRange  string
	DurationSec float64
}

// AudioStream describes one audio stream.
type AudioStream struct {
	StreamBase
	Channels      int
	ChannelLayout string
	SampleRate    int
	BitrateBPS    int64
	DurationSec   float64
}

// SubtitleStream describes one subtitle stream.
type SubtitleStream struct {
	StreamBase
	Forced bool
}

// DeriveChannelLayout maps a channel count to its conventional name,
// matching the common MKV/ffprobe vocabulary.
func DeriveChannelLayout(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	case 6:
		return "5.1"
	case 8:
		return "7.1"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}

// statisticsTagMatch reports whether k is a MKV-style _STATISTICS_TAGS
// match for name: either equal, or name followed by one of '-', '_', '.'
// (BPS-eng / BPS_HINDI / BPS.ita all carry the BPS stat).
func statisticsTagMatch(k, name string) bool {
	if k == name {
		return true
	}
	if !strings.HasPrefix(k, name) {
		return false
	}
	rest := k[len(name):]
	return len(rest) > 0 && strings.ContainsAny(rest[:1], "-_.")
}

// lookupStatisticsTag finds a _STATISTICS_TAGS-style value by exact name
// first, then by prefix. When the container's own "_STATISTICS_TAGS" tag
// lists the available tag names, that list's order is authoritative — the
// first listed match wins, exactly as the MKV convention intends. Absent
// that list, every prefix match in the map is collected and the
// lexicographically smallest key wins, so the result never depends on Go's
// randomized map iteration order.
func lookupStatisticsTag(tags map[string]string, name string) (string, bool) {
	if v, ok := tags[name]; ok {
		return v, true
	}

	if list, ok := tags["_STATISTICS_TAGS"]; ok {
		for _, k := range strings.Fields(list) {
			if statisticsTagMatch(k, name) {
				if v, ok := tags[k]; ok {
					return v, true
				}
			}
		}
		return "", false
	}

	var matches []string
	for k := range tags {
		if statisticsTagMatch(k, name) {
			matches = append(matches, k)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return tags[matches[0]], true
}

// parseTagDuration parses a tag-form duration HH:MM:SS.fractional.
func parseTagDuration(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}

// parseTagInt parses an integer-valued tag such as BPS or NUMBER_OF_FRAMES.
func parseTagInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseFrameRateFraction parses "num/den" frame-rate strings as ffprobe
// emits them for r_frame_rate/avg_frame_rate, returning 0 on a zero
// denominator.
func parseFrameRateFraction(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
