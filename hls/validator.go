package hls

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// ValidationResult is the structured outcome of a re-read of an output
// tree. The validator never fails the pipeline; it only ever returns a
// result, leaving the fatal/non-fatal decision to the caller.
type ValidationResult struct {
	IsValid             bool
	Errors              []string
	Warnings            []string
	MasterPlaylistValid bool
	VariantsValid       bool
	SubtitlesValid      bool
	SpritesValid        bool
}

// Validator re-reads a package on disk and checks the structural
// invariants in the playlist/metadata contract, independent of whatever
// process produced it.
type Validator struct {
	logger hclog.Logger
}

func NewValidator(logger hclog.Logger) *Validator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Validator{logger: logger.Named("validator")}
}

// Validate runs all six structural checks against outputDir and the
// manifest describing what should be there, then derives IsValid from
// whether any check contributed an error.
func (v *Validator) Validate(outputDir string, manifest *PackageManifest) ValidationResult {
	var result ValidationResult
	addErr := func(format string, args ...interface{}) { result.Errors = append(result.Errors, sprintfOne(format, args...)) }
	addWarn := func(format string, args ...interface{}) { result.Warnings = append(result.Warnings, sprintfOne(format, args...)) }

	result.MasterPlaylistValid = v.checkMasterPlaylist(outputDir, manifest, addErr, addWarn)
	result.VariantsValid = v.checkVideoVariants(outputDir, manifest, addErr, addWarn)
	audioValid := v.checkAudioTracks(outputDir, manifest, addErr, addWarn)
	result.SubtitlesValid = v.checkSubtitles(outputDir, manifest, addErr, addWarn)
	result.SpritesValid = v.checkSprites(outputDir, manifest, addErr, addWarn)
	v.checkMetadata(outputDir, addErr, addWarn)

	result.VariantsValid = result.VariantsValid && audioValid
	result.IsValid = len(result.Errors) == 0
	return result
}

func sprintfOne(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// checkMasterPlaylist implements check 1: presence, non-empty, #EXTM3U
// first line, #EXT-X-VERSION warning, stream-inf presence, and expected
// audio/subtitle tracks appearing in the master.
func (v *Validator) checkMasterPlaylist(outputDir string, manifest *PackageManifest, addErr, addWarn func(string, ...interface{})) bool {
	path := filepath.Join(outputDir, "master.m3u8")
	data, err := os.ReadFile(path)
	if err != nil {
		addErr("master playlist missing or unreadable: %v", err)
		return false
	}
	if len(data) == 0 {
		addErr("master playlist is empty")
		return false
	}

	lines := strings.Split(string(data), "\n")
	if lines[0] != "#EXTM3U" {
		addErr("master playlist does not start with #EXTM3U")
		return false
	}

	content := string(data)
	if !strings.Contains(content, "#EXT-X-VERSION:") {
		addWarn("master playlist has no #EXT-X-VERSION tag")
	}

	hasStreamInf := strings.Contains(content, "#EXT-X-STREAM-INF:")
	if len(manifest.Video) > 0 && !hasStreamInf {
		addErr("video variants exist but master playlist has no #EXT-X-STREAM-INF entries")
	}

	if len(manifest.Audio) > 0 && !strings.Contains(content, "TYPE=AUDIO") {
		addWarn("audio tracks expected but missing from master playlist")
	}
	if len(manifest.Subtitles) > 0 && !strings.Contains(content, "TYPE=SUBTITLES") {
		addWarn("subtitle tracks expected but missing from master playlist")
	}

	return true
}

// mediaSegmentExtensions are the extensions a non-comment m3u8 line may
// reference as a media segment.
var mediaSegmentExtensions = []string{".ts", ".m4s", ".mp4", ".aac"}

// checkMediaPlaylist implements the shared logic of checks 2 and 3: the
// playlist exists, starts with #EXTM3U, has at least one #EXTINF, and every
// referenced segment exists on disk.
func checkMediaPlaylist(playlistPath string, addErr, addWarn func(string, ...interface{}), kind string) bool {
	data, err := os.ReadFile(playlistPath)
	if err != nil {
		addErr("%s playlist %s missing or unreadable: %v", kind, playlistPath, err)
		return false
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "#EXTM3U" {
		addErr("%s playlist %s does not start with #EXTM3U", kind, playlistPath)
		return false
	}

	extinfCount := 0
	var segmentCount int
	var missing int
	dir := filepath.Dir(playlistPath)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#EXTINF") {
			extinfCount++
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !hasAnySuffix(line, mediaSegmentExtensions) {
			continue
		}
		segmentCount++
		segPath := line
		if !filepath.IsAbs(segPath) {
			segPath = filepath.Join(dir, segPath)
		}
		if _, err := os.Stat(segPath); err != nil {
			missing++
		}
	}

	if extinfCount == 0 {
		addErr("%s playlist %s has no #EXTINF entries", kind, playlistPath)
		return false
	}
	if missing > 0 {
		addErr("%s playlist %s references %d missing segment(s)", kind, playlistPath, missing)
		return false
	}
	if segmentCount != extinfCount {
		addWarn("%s playlist %s segment count (%d) does not match #EXTINF count (%d)", kind, playlistPath, segmentCount, extinfCount)
	}

	return true
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func (v *Validator) checkVideoVariants(outputDir string, manifest *PackageManifest, addErr, addWarn func(string, ...interface{})) bool {
	ok := true
	for _, variant := range manifest.Video {
		path := variant.PlaylistPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(outputDir, path)
		}
		if !checkMediaPlaylist(path, addErr, addWarn, "video") {
			ok = false
		}
	}
	return ok
}

func (v *Validator) checkAudioTracks(outputDir string, manifest *PackageManifest, addErr, addWarn func(string, ...interface{})) bool {
	ok := true
	for _, track := range manifest.Audio {
		path := track.PlaylistPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(outputDir, path)
		}
		if !checkMediaPlaylist(path, addErr, addWarn, "audio") {
			ok = false
		}
	}
	return ok
}

// checkSubtitles implements check 4: every subtitle file exists, is
// non-empty, and (for WebVTT) starts with WEBVTT.
func (v *Validator) checkSubtitles(outputDir string, manifest *PackageManifest, addErr, addWarn func(string, ...interface{})) bool {
	ok := true
	for _, sub := range manifest.Subtitles {
		path := sub.FilePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(outputDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			addErr("subtitle file %s missing or unreadable: %v", path, err)
			ok = false
			continue
		}
		if len(data) == 0 {
			addErr("subtitle file %s is empty", path)
			ok = false
			continue
		}
		if strings.HasSuffix(path, ".vtt") && !strings.HasPrefix(string(data), "WEBVTT") {
			addErr("subtitle file %s does not start with WEBVTT", path)
			ok = false
		}
	}
	return ok
}

// checkSprites implements check 5 for a package that has sprites/sprite.vtt:
// the VTT must start with WEBVTT and at least one sprite*.png or sprite*.jpg
// image must exist in sprites/. It warns only when the VTT has no cues; the
// cue count is not compared with the number of thumbnails or sheets, and
// sheets named by the cues are not checked one by one.
func (v *Validator) checkSprites(outputDir string, manifest *PackageManifest, addErr, addWarn func(string, ...interface{})) bool {
	spriteDir := filepath.Join(outputDir, "sprites")
	vttPath := filepath.Join(spriteDir, "sprite.vtt")

	if _, err := os.Stat(vttPath); err != nil {
		return true // no sprites expected in this package
	}

	data, err := os.ReadFile(vttPath)
	if err != nil {
		addErr("sprite vtt unreadable: %v", err)
		return false
	}
	if !strings.HasPrefix(string(data), "WEBVTT") {
		addErr("sprite vtt does not start with WEBVTT")
		return false
	}

	cueCount := strings.Count(string(data), "-->")

	entries, err := os.ReadDir(spriteDir)
	if err != nil {
		addErr("sprite directory unreadable: %v", err)
		return false
	}

	var sheetCount int
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "sprite") && (strings.HasSuffix(name, ".png") || strings.HasSuffix(name, ".jpg")) {
			sheetCount++
		}
	}
	if sheetCount == 0 {
		addErr("no sprite sheet images found in %s", spriteDir)
		return false
	}

	if cueCount == 0 {
		addWarn("sprite vtt has no cues")
	}

	return true
}

// checkMetadata implements check 6: metadata.json, if present, must be
// valid JSON and should carry the expected top-level keys.
func (v *Validator) checkMetadata(outputDir string, addErr, addWarn func(string, ...interface{})) {
	path := filepath.Join(outputDir, "metadata.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return // metadata.json is optional
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		addErr("metadata.json is not valid JSON: %v", err)
		return
	}

	if _, ok := doc["version"]; !ok {
		addWarn("metadata.json missing expected key \"version\"")
	}
	if _, ok := doc["master_playlist"]; !ok {
		addWarn("metadata.json missing expected key \"master_playlist\"")
	}
}
