package opus

import (
	"fmt"
	"strings"
)

// Tier is a user-selectable quality tier mapping to a nominal Opus bitrate.
type Tier string

const (
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

var tierBitrates = map[Tier]int{
	TierLow:  16,
	TierMid:  24,
	TierHigh: 32,
}

var allTiers = []Tier{TierLow, TierMid, TierHigh}

// Application selects the libopus application mode.
type Application string

const (
	// ApplicationVoIP optimizes for speech.
	ApplicationVoIP Application = "voip"
	// ApplicationAudio is the general-purpose mode for music and mixed content.
	ApplicationAudio Application = "audio"
)

// Opus 1.6 quality ceiling. These are not user-tunable.
const (
	FrameDurationMs  = 20
	CompressionLevel = 10
	Complexity       = 10
)

const speechPacketLossPercent = 3

// EncodeParameters is the concrete encoder parameter set derived from a
// (tier, speechOptimized) pair. It is immutable and never persisted.
type EncodeParameters struct {
	BitrateKbps        int
	Application        Application
	Channels           int // 0 preserves the source channel layout
	PacketLossPercent  int
	FrameDurationMs    int
	CompressionLevel   int
	BandwidthExtension bool
	Complexity         int
}

// Resolve maps a quality tier and speech-optimization flag to the encoder
// parameter set. It is total and deterministic: every pair in the domain maps
// to exactly one parameter set, with no other input consulted.
func Resolve(tier Tier, speechOptimized bool) EncodeParameters {
	params := EncodeParameters{
		BitrateKbps:        tier.BitrateKbps(),
		Application:        ApplicationAudio,
		FrameDurationMs:    FrameDurationMs,
		CompressionLevel:   CompressionLevel,
		BandwidthExtension: true,
		Complexity:         Complexity,
	}
	if speechOptimized {
		params.Application = ApplicationVoIP
		params.Channels = 1
		params.PacketLossPercent = speechPacketLossPercent
	}
	return params
}

// BitrateKbps returns the tier's nominal bitrate, defaulting unknown tiers to mid.
func (t Tier) BitrateKbps() int {
	if kbps, ok := tierBitrates[t]; ok {
		return kbps
	}
	return tierBitrates[TierMid]
}

// Bitrate renders the tier's bitrate in ffmpeg notation, e.g. "24k".
func (t Tier) Bitrate() string {
	return fmt.Sprintf("%dk", t.BitrateKbps())
}

// Bitrate renders the resolved bitrate in ffmpeg notation, e.g. "24k".
func (p EncodeParameters) Bitrate() string {
	return fmt.Sprintf("%dk", p.BitrateKbps)
}

// SpeechOptimized reports whether the parameter set carries the voice profile.
func (p EncodeParameters) SpeechOptimized() bool {
	return p.Application == ApplicationVoIP
}

// ModeLabel returns the short human-facing description used in captions, e.g.
// "voip, mono" or "audio, stereo".
func (p EncodeParameters) ModeLabel() string {
	if p.SpeechOptimized() {
		return "voip, mono"
	}
	return "audio, stereo"
}

// ParseTier converts a string into a known Tier. Bare bitrates such as "16"
// and "16k" are accepted alongside tier names.
func ParseTier(value string) (Tier, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case string(TierLow), "16", "16k":
		return TierLow, true
	case string(TierMid), "24", "24k":
		return TierMid, true
	case string(TierHigh), "32", "32k":
		return TierHigh, true
	default:
		return "", false
	}
}

// TierForBitrate returns the tier carrying the given nominal bitrate.
func TierForBitrate(kbps int) (Tier, bool) {
	for _, tier := range allTiers {
		if tierBitrates[tier] == kbps {
			return tier, true
		}
	}
	return "", false
}

// AllTiers returns the ordered list of known tiers.
func AllTiers() []Tier {
	cp := make([]Tier, len(allTiers))
	copy(cp, allTiers)
	return cp
}

// BitrateChoices returns the selectable bitrates in ascending order.
func BitrateChoices() []int {
	choices := make([]int, 0, len(allTiers))
	for _, tier := range allTiers {
		choices = append(choices, tierBitrates[tier])
	}
	return choices
}
