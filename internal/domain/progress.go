package domain

import "fmt"

// AssetKind names a sub-progress entry.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
)

// MaxRunningPercent caps asset-derived progress so only the terminal
// snapshot reports 100.
const MaxRunningPercent = 95

// AssetProgress tracks one asset kind.
type AssetProgress struct {
	Percent int    `json:"percent"`
	Step    string `json:"step"`
}

// Progress is the nested progress structure reported to polling clients.
type Progress struct {
	OverallPercent int            `json:"overallPercent"`
	Step           string         `json:"step,omitempty"`
	Image          *AssetProgress `json:"image,omitempty"`
	Video          *AssetProgress `json:"video,omitempty"`
}

// Merge folds next into p. The overall percent never decreases, an empty step
// keeps the stored one and nil sub-progress entries are preserved.
func (p Progress) Merge(next Progress) Progress {
	out := p
	out.OverallPercent = max(p.OverallPercent, clampPercent(next.OverallPercent))
	if next.Step != "" {
		out.Step = next.Step
	}
	if next.Image != nil {
		v := *next.Image
		out.Image = &v
	}
	if next.Video != nil {
		v := *next.Video
		out.Video = &v
	}
	return out
}

// WithAsset replaces one sub-progress entry and recomputes the overall percent
// as the weighted mean of the kinds active for mode.
func (p Progress) WithAsset(mode Mode, kind AssetKind, percent int, step string) (Progress, error) {
	entry := &AssetProgress{Percent: clampPercent(percent), Step: step}
	out := p
	switch kind {
	case AssetImage:
		out.Image = entry
	case AssetVideo:
		out.Video = entry
	default:
		return p, fmt.Errorf("%w: unknown asset kind %q", ErrValidation, kind)
	}
	if step != "" {
		out.Step = step
	}
	computed := min(out.weighted(mode), MaxRunningPercent)
	out.OverallPercent = max(p.OverallPercent, computed)
	return out, nil
}

func (p Progress) weighted(mode Mode) int {
	var total, active int
	if mode.WantsImages() {
		active++
		if p.Image != nil {
			total += p.Image.Percent
		}
	}
	if mode.WantsVideo() {
		active++
		if p.Video != nil {
			total += p.Video.Percent
		}
	}
	if active == 0 {
		return 0
	}
	return total / active
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
