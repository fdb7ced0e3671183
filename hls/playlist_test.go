package hls

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestGenerateS1ThreeVariantsDescendingBandwidth covers seed scenario S1:
// three video variants must appear as STREAM-INF lines sorted by bitrate
// descending, alongside one audio and one subtitle MEDIA tag.
func TestGenerateS1ThreeVariantsDescendingBandwidth(t *testing.T) {
	dir := t.TempDir()
	manifest := &PackageManifest{
		OutputDir: dir,
		Video: []VideoVariantInfo{
			{Quality: Quality480p, Width: 854, Height: 480, BitrateKbps: 1000, FPS: 30, Codec: "libx264", PlaylistPath: filepath.Join(dir, "video_480p", "480p.m3u8")},
			{Quality: Quality1080p, Width: 1920, Height: 1080, BitrateKbps: 4000, FPS: 30, Codec: "libx264", PlaylistPath: filepath.Join(dir, "video_1080p", "1080p.m3u8")},
			{Quality: Quality720p, Width: 1280, Height: 720, BitrateKbps: 2000, FPS: 30, Codec: "libx264", PlaylistPath: filepath.Join(dir, "video_720p", "720p.m3u8")},
		},
		Audio: []AudioTrackInfo{
			{Name: "English", Language: "eng", BitrateKbps: 128, Codec: "aac", IsDefault: true, PlaylistPath: filepath.Join(dir, "audio_eng", "audio_eng_128k.m3u8")},
		},
		Subtitles: []SubtitleTrackInfo{
			{Name: "English", Language: "eng", FilePath: filepath.Join(dir, "subtitles", "eng.vtt")},
		},
	}

	gen := NewPlaylistGenerator(nil)
	masterPath, metadataPath, err := gen.Generate(manifest)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	raw, err := os.ReadFile(masterPath)
	if err != nil {
		t.Fatalf("read master playlist: %v", err)
	}
	content := string(raw)

	streamInfLines := []string{}
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#EXT-X-STREAM-INF") {
			streamInfLines = append(streamInfLines, line)
		}
	}
	if len(streamInfLines) != 3 {
		t.Fatalf("expected 3 STREAM-INF lines, got %d", len(streamInfLines))
	}

	bandwidths := make([]int, 3)
	for i, line := range streamInfLines {
		idx := strings.Index(line, "BANDWIDTH=")
		rest := line[idx+len("BANDWIDTH="):]
		commaIdx := strings.Index(rest, ",")
		val, _ := parseFloat(rest[:commaIdx])
		bandwidths[i] = int(val)
	}
	for i := 1; i < len(bandwidths); i++ {
		if bandwidths[i] > bandwidths[i-1] {
			t.Fatalf("STREAM-INF lines not sorted by bandwidth descending: %v", bandwidths)
		}
	}

	if strings.Count(content, "TYPE=AUDIO") != 1 {
		t.Fatal("expected exactly one audio MEDIA tag")
	}
	if strings.Count(content, "TYPE=SUBTITLES") != 1 {
		t.Fatal("expected exactly one subtitles MEDIA tag")
	}

	if _, err := os.Stat(metadataPath); err != nil {
		t.Fatalf("expected metadata.json to exist: %v", err)
	}
}

// TestGenerateS7ExactlyOneAudioDefault covers seed scenario S7: multiple
// audio renditions in the same language must still yield exactly one
// DEFAULT=YES entry.
func TestGenerateS7ExactlyOneAudioDefault(t *testing.T) {
	dir := t.TempDir()
	manifest := &PackageManifest{
		OutputDir: dir,
		Video: []VideoVariantInfo{
			{Quality: Quality720p, Width: 1280, Height: 720, BitrateKbps: 2000, FPS: 30, Codec: "libx264", PlaylistPath: filepath.Join(dir, "video_720p", "720p.m3u8")},
		},
		Audio: []AudioTrackInfo{
			{Name: "English 5.1", Language: "eng", BitrateKbps: 256, IsDefault: true, PlaylistPath: filepath.Join(dir, "a1.m3u8")},
			{Name: "English Stereo", Language: "eng", BitrateKbps: 128, IsDefault: true, PlaylistPath: filepath.Join(dir, "a2.m3u8")},
		},
	}

	gen := NewPlaylistGenerator(nil)
	masterPath, _, err := gen.Generate(manifest)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	raw, err := os.ReadFile(masterPath)
	if err != nil {
		t.Fatalf("read master playlist: %v", err)
	}
	if got := strings.Count(string(raw), "DEFAULT=YES"); got != 1 {
		t.Fatalf("expected exactly one DEFAULT=YES, got %d", got)
	}

	// The higher-bitrate rendition must be the one marked default, since
	// both are is_default and ties break on descending bitrate.
	lines := strings.Split(string(raw), "\n")
	for _, line := range lines {
		if strings.Contains(line, "DEFAULT=YES") && !strings.Contains(line, "English 5.1") {
			t.Fatalf("expected the higher-bitrate English 5.1 track to be default, got: %s", line)
		}
	}
}

func TestGenerateIdempotent(t *testing.T) {
	dir := t.TempDir()
	manifest := &PackageManifest{
		OutputDir: dir,
		Video: []VideoVariantInfo{
			{Quality: Quality720p, Width: 1280, Height: 720, BitrateKbps: 2000, FPS: 30, Codec: "libx264", PlaylistPath: filepath.Join(dir, "720p.m3u8")},
		},
	}

	gen := NewPlaylistGenerator(nil)
	p1, _, err := gen.Generate(manifest)
	if err != nil {
		t.Fatalf("Generate first pass: %v", err)
	}
	first, _ := os.ReadFile(p1)

	p2, _, err := gen.Generate(manifest)
	if err != nil {
		t.Fatalf("Generate second pass: %v", err)
	}
	second, _ := os.ReadFile(p2)

	if string(first) != string(second) {
		t.Fatal("Generate is not idempotent for the same manifest")
	}
}

func TestVideoCodecString(t *testing.T) {
	if got := videoCodecString("libx264"); got != "avc1.640028" {
		t.Fatalf("videoCodecString(libx264) = %q, want avc1.640028", got)
	}
	if got := videoCodecString("hevc_nvenc"); got != "hvc1.1.6.L120.90" {
		t.Fatalf("videoCodecString(hevc_nvenc) = %q, want hvc1.1.6.L120.90", got)
	}
}

func TestRelativeToFallsBackOutsideTree(t *testing.T) {
	got := relativeTo("/a/b", "/c/d/file.ts")
	if !filepath.IsAbs(got) {
		t.Fatalf("expected an absolute fallback path, got %q", got)
	}
}

func TestRelativeToWithinTree(t *testing.T) {
	got := relativeTo("/a/b", "/a/b/video_720p/720p.m3u8")
	if got != filepath.Join("video_720p", "720p.m3u8") {
		t.Fatalf("relativeTo = %q, want video_720p/720p.m3u8", got)
	}
}

func TestBuildMetadataDocumentValidJSON(t *testing.T) {
	dir := t.TempDir()
	manifest := &PackageManifest{
		OutputDir: dir,
		Video: []VideoVariantInfo{
			{Quality: Quality480p, Width: 854, Height: 480, BitrateKbps: 1000, FPS: 30, Codec: "libx264", PlaylistPath: filepath.Join(dir, "480p.m3u8")},
		},
	}
	doc := buildMetadataDocument(manifest, manifest.Video, nil, nil)
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["version"] != metadataSchemaVersion {
		t.Fatalf("version = %v, want %v", decoded["version"], metadataSchemaVersion)
	}
}
