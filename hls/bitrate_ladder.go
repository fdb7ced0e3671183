package hls

import (
	"errors"

	"github.com/creasty/defaults"
	"gopkg.in/dealancer/validate.v2"
)

// QualityLabel is the closed set of quality ladder labels.
type QualityLabel string

const (
	Quality2160p   QualityLabel = "2160p"
	Quality1440p   QualityLabel = "1440p"
	Quality1080p   QualityLabel = "1080p"
	Quality720p    QualityLabel = "720p"
	Quality480p    QualityLabel = "480p"
	Quality360p    QualityLabel = "360p"
	Quality240p    QualityLabel = "240p"
	QualityOriginal QualityLabel = "original"
)

var validQualityLabels = map[QualityLabel]bool{
	Quality2160p: true, Quality1440p: true, Quality1080p: true, Quality720p: true,
	Quality480p: true, Quality360p: true, Quality240p: true, QualityOriginal: true,
}

// IsValidQualityLabel reports whether label belongs to the closed set of
// quality ladder labels.
func IsValidQualityLabel(label QualityLabel) bool {
	return validQualityLabels[label]
}

// QualityVariant is one rung of a quality ladder: a label plus the bitrate
// envelope a worker should target. Width/Height are 0 unless the variant
// pins an explicit resolution (as "original" does).
type QualityVariant struct {
	Label        QualityLabel `yaml:"label" validate:"empty=false"`
	Height       int          `yaml:"height"`
	BitrateKbps  int          `yaml:"bitrate_kbps" validate:"gt=0"`
	MaxrateKbps  int          `yaml:"maxrate_kbps"`
	BufsizeKbps  int          `yaml:"bufsize_kbps"`
	CRF          int          `yaml:"crf"`
	Width        int          `yaml:"width"`
}

// UnmarshalYAML applies defaults, decodes, then validates — the same
// defaults.Set -> unmarshal -> validate.Validate pipeline used throughout
// the config layer.
func (qv *QualityVariant) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(qv); err != nil {
		return wrapError(ConfigKind, err, "set QualityVariant defaults")
	}

	type plain QualityVariant
	if err := unmarshal((*plain)(qv)); err != nil {
		return err
	}

	if !IsValidQualityLabel(qv.Label) {
		return newError(ConfigKind, "invalid quality label %q", qv.Label)
	}

	if err := validate.Validate(qv); err != nil {
		return wrapError(ConfigKind, err, "validate QualityVariant %q", qv.Label)
	}

	return nil
}

// SetDefaults fills in maxrate/bufsize from bitrate when unset, following
// the 1.5x/2x convention used throughout the planner.
func (qv *QualityVariant) SetDefaults() {
	if defaults.CanUpdate(qv.MaxrateKbps) && qv.BitrateKbps > 0 {
		qv.MaxrateKbps = qv.BitrateKbps * 3 / 2
	}
	if defaults.CanUpdate(qv.BufsizeKbps) && qv.BitrateKbps > 0 {
		qv.BufsizeKbps = qv.BitrateKbps * 2
	}
}

// Profile is a named ordered list of QualityVariants, supplied by config.
type Profile struct {
	Name     string            `yaml:"name" validate:"empty=false"`
	Variants []QualityVariant  `yaml:"variants" validate:"empty=false"`
}

func (p *Profile) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Profile
	if err := unmarshal((*plain)(p)); err != nil {
		return err
	}
	if err := validate.Validate(p); err != nil {
		return wrapError(ConfigKind, err, "validate profile %q", p.Name)
	}
	return nil
}

func newVariant(label QualityLabel, height, bitrate, maxrate, bufsize int) QualityVariant {
	return QualityVariant{Label: label, Height: height, BitrateKbps: bitrate, MaxrateKbps: maxrate, BufsizeKbps: bufsize}
}

// DefaultProfiles mirrors the teacher's map-literal-of-named-configurations
// style: a package-level catalog the config layer falls back to when no
// override file is supplied.
var DefaultProfiles = map[string]*Profile{
	"fast": {
		Name: "fast",
		Variants: []QualityVariant{
			newVariant(Quality720p, 720, 2000, 3000, 4000),
			newVariant(Quality480p, 480, 1000, 1500, 2000),
		},
	},
	"medium": {
		Name: "medium",
		Variants: []QualityVariant{
			newVariant(Quality1080p, 1080, 4000, 6000, 8000),
			newVariant(Quality720p, 720, 2000, 3000, 4000),
			newVariant(Quality480p, 480, 1000, 1500, 2000),
		},
	},
	"high": {
		Name: "high",
		Variants: []QualityVariant{
			newVariant(Quality2160p, 2160, 17000, 25500, 34000),
			newVariant(Quality1440p, 1440, 9000, 13500, 18000),
			newVariant(Quality1080p, 1080, 4000, 6000, 8000),
			newVariant(Quality720p, 720, 2000, 3000, 4000),
			newVariant(Quality480p, 480, 1000, 1500, 2000),
			newVariant(Quality360p, 360, 600, 900, 1200),
		},
	},
}

// heightPresets maps a known preset height to its bitrate envelope, used by
// the planner's original_only path to copy a matching preset's rate control
// when the source height happens to line up with a known rung.
var heightPresets = map[int]QualityVariant{
	2160: newVariant(Quality2160p, 2160, 17000, 25500, 34000),
	1440: newVariant(Quality1440p, 1440, 9000, 13500, 18000),
	1080: newVariant(Quality1080p, 1080, 4000, 6000, 8000),
	720:  newVariant(Quality720p, 720, 2000, 3000, 4000),
	480:  newVariant(Quality480p, 480, 1000, 1500, 2000),
	360:  newVariant(Quality360p, 360, 600, 900, 1200),
	240:  newVariant(Quality240p, 240, 400, 600, 800),
}

var errUnknownProfile = errors.New("unknown profile")
