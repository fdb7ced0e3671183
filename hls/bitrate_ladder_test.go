package hls

import "testing"

func TestIsValidQualityLabel(t *testing.T) {
	if !IsValidQualityLabel(Quality1080p) {
		t.Fatal("expected 1080p to be a valid quality label")
	}
	if !IsValidQualityLabel(QualityOriginal) {
		t.Fatal("expected \"original\" to be a valid quality label")
	}
	if IsValidQualityLabel(QualityLabel("4320p")) {
		t.Fatal("8K is outside the closed label set")
	}
}

// TestDefaultProfilesMonotonicHeight is testable property 4: the ladder is
// sorted by height strictly descending in every default profile.
func TestDefaultProfilesMonotonicHeight(t *testing.T) {
	for name, profile := range DefaultProfiles {
		for i := 1; i < len(profile.Variants); i++ {
			if profile.Variants[i].Height >= profile.Variants[i-1].Height {
				t.Errorf("profile %q: variant %d (%s, h=%d) is not strictly shorter than variant %d (%s, h=%d)",
					name, i, profile.Variants[i].Label, profile.Variants[i].Height,
					i-1, profile.Variants[i-1].Label, profile.Variants[i-1].Height)
			}
		}
	}
}

func TestDefaultProfilesKnownNames(t *testing.T) {
	for _, name := range []string{"fast", "medium", "high"} {
		if _, ok := DefaultProfiles[name]; !ok {
			t.Errorf("expected default profile %q to exist", name)
		}
	}
}

func TestHeightPresetsCoverLadderHeights(t *testing.T) {
	for name, profile := range DefaultProfiles {
		for _, v := range profile.Variants {
			if _, ok := heightPresets[v.Height]; !ok {
				t.Errorf("profile %q variant %s height %d has no heightPresets entry", name, v.Label, v.Height)
			}
		}
	}
}

func TestQualityVariantSetDefaults(t *testing.T) {
	qv := QualityVariant{Label: Quality720p, BitrateKbps: 2000}
	qv.SetDefaults()
	if qv.MaxrateKbps != 3000 {
		t.Fatalf("MaxrateKbps = %d, want 3000", qv.MaxrateKbps)
	}
	if qv.BufsizeKbps != 4000 {
		t.Fatalf("BufsizeKbps = %d, want 4000", qv.BufsizeKbps)
	}
}
