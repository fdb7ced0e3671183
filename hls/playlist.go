package hls

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// VideoVariantInfo describes one video rendition for playlist emission.
type VideoVariantInfo struct {
	Quality           QualityLabel
	Width             int
	Height            int
	BitrateKbps       int
	FPS               float64
	Codec             string
	PlaylistPath      string
	SegmentCount      int
	HasEmbeddedAudio  bool
}

// AudioTrackInfo describes one audio rendition for playlist emission.
type AudioTrackInfo struct {
	Name          string
	Language      string
	Channels      int
	ChannelLayout string
	SampleRate    int
	BitrateKbps   int
	Codec         string
	PlaylistPath  string
	IsDefault     bool
}

// SubtitleTrackInfo describes one subtitle rendition for playlist emission.
type SubtitleTrackInfo struct {
	Name      string
	Language  string
	FilePath  string
	IsDefault bool
	Forced    bool
}

// PackageManifest is everything the playlist generator needs: the resolved
// rendition lists plus the directory every path is made relative to.
type PackageManifest struct {
	OutputDir string
	Video     []VideoVariantInfo
	Audio     []AudioTrackInfo
	Subtitles []SubtitleTrackInfo
	Source    *MediaInfo
}

// PlaylistGenerator emits master.m3u8 and its metadata.json sidecar.
type PlaylistGenerator struct {
	logger hclog.Logger
}

func NewPlaylistGenerator(logger hclog.Logger) *PlaylistGenerator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PlaylistGenerator{logger: logger.Named("playlist")}
}

// videoCodecString returns the HLS CODECS token for a video encoder name:
// avc1.640028 for every H.264 variant, hvc1.1.6.L120.90 for HEVC.
func videoCodecString(encoder string) string {
	if strings.Contains(encoder, "hevc") || strings.Contains(encoder, "265") {
		return "hvc1.1.6.L120.90"
	}
	return "avc1.640028"
}

// audioCodecString returns the HLS CODECS token for an audio codec name.
func audioCodecString(codec string) string {
	switch codec {
	case "aac":
		return "mp4a.40.2"
	default:
		return "mp4a.40.2"
	}
}

// relativeTo computes path relative to base, falling back to the absolute
// path when it cannot be expressed relative to base (e.g. different
// volumes on Windows, or a path genuinely outside the tree).
func relativeTo(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			return path
		}
		return abs
	}
	return rel
}

// Generate writes master.m3u8 and metadata.json under manifest.OutputDir,
// returning their paths. Ordering follows the master-playlist rules: audio
// media entries, then subtitle media entries, then video variants, each
// internally sorted per the documented keys.
func (g *PlaylistGenerator) Generate(manifest *PackageManifest) (masterPath, metadataPath string, err error) {
	audio := append([]AudioTrackInfo(nil), manifest.Audio...)
	sort.SliceStable(audio, func(i, j int) bool {
		if audio[i].IsDefault != audio[j].IsDefault {
			return audio[i].IsDefault
		}
		if audio[i].Language != audio[j].Language {
			return audio[i].Language < audio[j].Language
		}
		return audio[i].BitrateKbps > audio[j].BitrateKbps
	})

	subtitles := append([]SubtitleTrackInfo(nil), manifest.Subtitles...)
	sort.SliceStable(subtitles, func(i, j int) bool {
		if subtitles[i].IsDefault != subtitles[j].IsDefault {
			return subtitles[i].IsDefault
		}
		if subtitles[i].Forced != subtitles[j].Forced {
			return subtitles[i].Forced
		}
		return subtitles[i].Language < subtitles[j].Language
	})

	video := append([]VideoVariantInfo(nil), manifest.Video...)
	sort.SliceStable(video, func(i, j int) bool {
		return video[i].BitrateKbps > video[j].BitrateKbps
	})

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	hasSeparateAudio := len(audio) > 0

	for i, a := range audio {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("%s (%dk)", strings.ToUpper(a.Language), a.BitrateKbps)
		}
		isDefault := i == 0
		fmt.Fprintf(&b, "#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"audio\",NAME=%q,LANGUAGE=%q,URI=%q,DEFAULT=%s,AUTOSELECT=%s\n",
			name, a.Language, relativeTo(manifest.OutputDir, a.PlaylistPath), yesNo(isDefault), yesNo(isDefault))
	}

	for _, s := range subtitles {
		name := s.Name
		if name == "" {
			name = strings.ToUpper(s.Language)
		}
		extra := ""
		if s.Forced {
			extra = ",FORCED=YES"
		}
		fmt.Fprintf(&b, "#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=\"subtitles\",NAME=%q,LANGUAGE=%q,URI=%q,DEFAULT=%s,AUTOSELECT=%s%s\n",
			name, s.Language, relativeTo(manifest.OutputDir, s.FilePath), yesNo(s.IsDefault), yesNo(s.IsDefault), extra)
	}

	for _, v := range video {
		bandwidth := v.BitrateKbps * 1000
		if hasSeparateAudio && !v.HasEmbeddedAudio {
			bandwidth += 128000
		}
		avgBandwidth := int(0.9 * float64(bandwidth))

		codecs := videoCodecString(v.Codec)
		if v.HasEmbeddedAudio {
			codecs = codecs + "," + audioCodecString("aac")
		}

		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,AVERAGE-BANDWIDTH=%d,RESOLUTION=%dx%d,FRAME-RATE=%.3f,CODECS=%q",
			bandwidth, avgBandwidth, v.Width, v.Height, v.FPS, codecs)
		if hasSeparateAudio {
			fmt.Fprintf(&b, ",AUDIO=\"audio\"")
		}
		if len(subtitles) > 0 {
			fmt.Fprintf(&b, ",SUBTITLES=\"subtitles\"")
		}
		b.WriteString("\n")
		b.WriteString(relativeTo(manifest.OutputDir, v.PlaylistPath))
		b.WriteString("\n")
	}

	masterPath = filepath.Join(manifest.OutputDir, "master.m3u8")
	if err := os.WriteFile(masterPath, []byte(b.String()), 0o644); err != nil {
		return "", "", wrapError(TranscodingKind, err, "write master playlist")
	}

	metadataPath = filepath.Join(manifest.OutputDir, "metadata.json")
	doc := buildMetadataDocument(manifest, video, audio, subtitles)
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", "", wrapError(TranscodingKind, err, "encode metadata.json")
	}
	if err := os.WriteFile(metadataPath, encoded, 0o644); err != nil {
		return "", "", wrapError(TranscodingKind, err, "write metadata.json")
	}

	return masterPath, metadataPath, nil
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

// metadataVideoVariant/metadataAudioTrack/metadataSubtitleTrack/metadataSource
// mirror the sidecar schema in spec §4.10: stable field names, relative
// paths, no requirement on key order (json.MarshalIndent preserves struct
// field order, which is good enough).
type metadataVideoVariant struct {
	Quality      string  `json:"quality"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	BitrateKbps  int     `json:"bitrate_kbps"`
	FrameRate    float64 `json:"frame_rate"`
	Codecs       string  `json:"codecs"`
	PlaylistPath string  `json:"playlist_path"`
	SegmentCount int     `json:"segment_count"`
}

type metadataAudioTrack struct {
	Name          string `json:"name"`
	Language      string `json:"language"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channel_layout"`
	SampleRate    int    `json:"sample_rate"`
	BitrateKbps   int    `json:"bitrate_kbps"`
	Codecs        string `json:"codecs"`
	PlaylistPath  string `json:"playlist_path"`
	Default       bool   `json:"default"`
}

type metadataSubtitleTrack struct {
	Name      string `json:"name"`
	Language  string `json:"language"`
	FilePath  string `json:"file_path"`
	Default   bool   `json:"default"`
	Forced    bool   `json:"forced"`
}

type metadataSource struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Format          string  `json:"format"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
}

type metadataDocument struct {
	Version        string                  `json:"version"`
	MasterPlaylist string                  `json:"master_playlist"`
	Video          struct {
		Variants []metadataVideoVariant `json:"variants"`
	} `json:"video"`
	Audio *struct {
		Tracks []metadataAudioTrack `json:"tracks"`
	} `json:"audio,omitempty"`
	Subtitles *struct {
		Tracks []metadataSubtitleTrack `json:"tracks"`
	} `json:"subtitles,omitempty"`
	Source *metadataSource `json:"source,omitempty"`
}

const metadataSchemaVersion = "1"

func buildMetadataDocument(manifest *PackageManifest, video []VideoVariantInfo, audio []AudioTrackInfo, subtitles []SubtitleTrackInfo) metadataDocument {
	doc := metadataDocument{Version: metadataSchemaVersion, MasterPlaylist: "master.m3u8"}

	for _, v := range video {
		doc.Video.Variants = append(doc.Video.Variants, metadataVideoVariant{
			Quality:      string(v.Quality),
			Width:        v.Width,
			Height:       v.Height,
			BitrateKbps:  v.BitrateKbps,
			FrameRate:    v.FPS,
			Codecs:       videoCodecString(v.Codec),
			PlaylistPath: relativeTo(manifest.OutputDir, v.PlaylistPath),
			SegmentCount: v.SegmentCount,
		})
	}

	if len(audio) > 0 {
		doc.Audio = &struct {
			Tracks []metadataAudioTrack `json:"tracks"`
		}{}
		for _, a := range audio {
			doc.Audio.Tracks = append(doc.Audio.Tracks, metadataAudioTrack{
				Name:          a.Name,
				Language:      a.Language,
				Channels:      a.Channels,
				ChannelLayout: a.ChannelLayout,
				SampleRate:    a.SampleRate,
				BitrateKbps:   a.BitrateKbps,
				Codecs:        audioCodecString(a.Codec),
				PlaylistPath:  relativeTo(manifest.OutputDir, a.PlaylistPath),
				Default:       a.IsDefault,
			})
		}
	}

	if len(subtitles) > 0 {
		doc.Subtitles = &struct {
			Tracks []metadataSubtitleTrack `json:"tracks"`
		}{}
		for _, s := range subtitles {
			doc.Subtitles.Tracks = append(doc.Subtitles.Tracks, metadataSubtitleTrack{
				Name:     s.Name,
				Language: s.Language,
				FilePath: relativeTo(manifest.OutputDir, s.FilePath),
				Default:  s.IsDefault,
				Forced:   s.Forced,
			})
		}
	}

	if manifest.Source != nil && len(manifest.Source.VideoStreams) > 0 {
		v := manifest.Source.VideoStreams[0]
		doc.Source = &metadataSource{
			DurationSeconds: manifest.Source.DurationSec,
			Format:          manifest.Source.Format,
			Width:           v.Width,
			Height:          v.Height,
		}
	}

	return doc
}
