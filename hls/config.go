package hls

import (
	"github.com/creasty/defaults"
	"gopkg.in/dealancer/validate.v2"
)

// HardwarePreference names a preferred encoder family, or "auto" to let the
// hardware detector pick by priority.
type HardwarePreference string

const (
	PreferAuto   HardwarePreference = "auto"
	PreferNVIDIA HardwarePreference = "nvidia"
	PreferIntel  HardwarePreference = "intel"
	PreferAMD    HardwarePreference = "amd"
	PreferApple  HardwarePreference = "apple"
	PreferVAAPI  HardwarePreference = "vaapi"
	PreferSoftware HardwarePreference = "software"
)

// AudioSettings configures the audio worker's codec, bitrate, and stream
// copy fast path.
type AudioSettings struct {
	Codec        string `yaml:"codec" default:"aac"`
	BitrateKbps  int    `yaml:"bitrate_kbps" default:"128"`
	Channels     int    `yaml:"channels" default:"0"`
	SampleRate   int    `yaml:"sample_rate" default:"0"`
	AllowCopy    bool   `yaml:"allow_copy" default:"true"`
	SegmentSize  float64 `yaml:"segment_size" default:"10"`
}

func (a *AudioSettings) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(a); err != nil {
		return wrapError(ConfigKind, err, "set AudioSettings defaults")
	}
	type plain AudioSettings
	if err := unmarshal((*plain)(a)); err != nil {
		return err
	}
	if err := validate.Validate(a); err != nil {
		return wrapError(ConfigKind, err, "validate AudioSettings")
	}
	return nil
}

// SpriteSettings configures thumbnail sprite generation.
type SpriteSettings struct {
	Enable     bool    `yaml:"enable" default:"false"`
	IntervalS  float64 `yaml:"interval_s" default:"10"`
	TileWidth  int     `yaml:"tile_width" default:"160"`
	TileHeight int     `yaml:"tile_height" default:"90"`
	Columns    int     `yaml:"columns" default:"10"`
	Rows       int     `yaml:"rows" default:"10"`
	Quality    int     `yaml:"quality" default:"4"`
}

func (s *SpriteSettings) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(s); err != nil {
		return wrapError(ConfigKind, err, "set SpriteSettings defaults")
	}
	type plain SpriteSettings
	if err := unmarshal((*plain)(s)); err != nil {
		return err
	}
	if err := validate.Validate(s); err != nil {
		return wrapError(ConfigKind, err, "validate SpriteSettings")
	}
	return nil
}

// HLSSettings configures segmenting and keyframe behavior shared by all
// HLS-producing workers.
type HLSSettings struct {
	SegmentSeconds          float64 `yaml:"segment_seconds" default:"6"`
	KeyframeIntervalSeconds float64 `yaml:"keyframe_interval_seconds" default:"2"`
	EncoderPreset           string  `yaml:"encoder_preset" default:"medium"`
	CRF                     int     `yaml:"crf" default:"23"`
}

func (h *HLSSettings) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(h); err != nil {
		return wrapError(ConfigKind, err, "set HLSSettings defaults")
	}
	type plain HLSSettings
	if err := unmarshal((*plain)(h)); err != nil {
		return err
	}
	if err := validate.Validate(h); err != nil {
		return wrapError(ConfigKind, err, "validate HLSSettings")
	}
	return nil
}

// PerformanceLimits bounds concurrency and hardware instance counts.
type PerformanceLimits struct {
	MaxParallelTasks int `yaml:"max_parallel_tasks" default:"4"`
	MaxHWInstances   int `yaml:"max_hw_instances" default:"2"`
}

func (p *PerformanceLimits) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(p); err != nil {
		return wrapError(ConfigKind, err, "set PerformanceLimits defaults")
	}
	type plain PerformanceLimits
	if err := unmarshal((*plain)(p)); err != nil {
		return err
	}
	if err := validate.Validate(p); err != nil {
		return wrapError(ConfigKind, err, "validate PerformanceLimits")
	}
	return nil
}

// Config is the top-level document: active profile, audio/sprite/HLS
// settings, hardware preference, and performance limits, following the
// teacher's defaults.Set -> unmarshal -> validate.Validate config pipeline.
type Config struct {
	Profile            string             `yaml:"profile" default:"medium"`
	IncludeAudio       bool               `yaml:"include_audio" default:"true"`
	IncludeSubtitles   bool               `yaml:"include_subtitles" default:"true"`
	IncludeSprites     bool               `yaml:"include_sprites" default:"false"`
	OriginalOnly       bool               `yaml:"original_only" default:"false"`
	Audio              AudioSettings      `yaml:"audio"`
	Sprite             SpriteSettings     `yaml:"sprite"`
	HLS                HLSSettings        `yaml:"hls"`
	Hardware           HardwarePreference `yaml:"hardware" default:"auto"`
	Performance        PerformanceLimits  `yaml:"performance"`
	FFmpegBinary       string             `yaml:"ffmpeg_binary" default:"ffmpeg"`
	FFprobeBinary      string             `yaml:"ffprobe_binary" default:"ffprobe"`
}

func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(c); err != nil {
		return wrapError(ConfigKind, err, "set Config defaults")
	}

	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}

	if err := validate.Validate(c); err != nil {
		return wrapError(ConfigKind, err, "validate config")
	}

	if _, ok := DefaultProfiles[c.Profile]; !ok {
		return newError(ConfigKind, "unknown profile %q", c.Profile)
	}

	return nil
}

// SetDefaults resolves dynamic defaults (hardware preference per platform,
// nested settings) the way PipelineConfig.SetDefaults resolves HWAccelAPI.
func (c *Config) SetDefaults() {
	if defaults.CanUpdate(c.Hardware) {
		c.Hardware = PreferAuto
	}
	if defaults.CanUpdate(c.Audio) {
		c.Audio = AudioSettings{}
		defaults.Set(&c.Audio)
	}
	if defaults.CanUpdate(c.Sprite) {
		c.Sprite = SpriteSettings{}
		defaults.Set(&c.Sprite)
	}
	if defaults.CanUpdate(c.HLS) {
		c.HLS = HLSSettings{}
		defaults.Set(&c.HLS)
	}
	if defaults.CanUpdate(c.Performance) {
		c.Performance = PerformanceLimits{}
		defaults.Set(&c.Performance)
	}
}

// DefaultConfig returns a Config with every field at its zero/default
// value, suitable as the CLI's "emit a default config document" output.
func DefaultConfig() *Config {
	c := &Config{}
	defaults.Set(c)
	c.SetDefaults()
	return c
}

// ActiveProfile resolves the configured profile name to its Profile.
func (c *Config) ActiveProfile() (*Profile, error) {
	p, ok := DefaultProfiles[c.Profile]
	if !ok {
		return nil, wrapError(ConfigKind, errUnknownProfile, "unknown profile %q", c.Profile)
	}
	return p, nil
}

// defaultVAAPIRenderNode is the device path most Linux VAAPI setups expose.
const defaultVAAPIRenderNode = "/dev/dri/renderD128"
