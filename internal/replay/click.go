package replay

import (
	"math/rand/v2"
)

// ClickType is the click category derived from the time between two
// consecutive actions of the same player.
type ClickType int

const (
	HardClick ClickType = iota
	HardRelease
	Click
	Release
	SoftClick
	SoftRelease
	MicroClick
	MicroRelease
	NoClick
)

var clickTypeNames = [...]string{
	"hardclick", "hardrelease", "click", "release",
	"softclick", "softrelease", "microclick", "microrelease", "none",
}

func (t ClickType) String() string {
	if int(t) < len(clickTypeNames) {
		return clickTypeNames[t]
	}
	return "unknown"
}

// IsRelease reports whether the type is one of the release categories.
func (t ClickType) IsRelease() bool {
	switch t {
	case HardRelease, Release, SoftRelease, MicroRelease:
		return true
	}
	return false
}

// IsClick reports whether the type is one of the press categories.
func (t ClickType) IsClick() bool {
	return !t.IsRelease()
}

// Timings are the classification ceilings, in seconds. Inter-action
// gaps above hard are hard clicks, above regular are regular clicks,
// above soft are soft clicks, and anything at or below soft is a
// microclick.
type Timings struct {
	Hard    float64
	Regular float64
	Soft    float64
}

// DefaultTimings matches the classification thresholds the renderer
// was tuned with.
var DefaultTimings = Timings{Hard: 2.0, Regular: 0.15, Soft: 0.025}

// VolumeSettings control the spam-click volume rolloff and the random
// per-click volume variation.
type VolumeSettings struct {
	Enabled              bool
	SpamTime             float64
	SpamVolOffsetFactor  float32
	MaxSpamVolOffset     float32
	ChangeReleasesVolume bool
	GlobalVolume         float32
	VolumeVar            float32
}

// DefaultVolumeSettings enables spam rolloff with a ±0.2 variation.
var DefaultVolumeSettings = VolumeSettings{
	Enabled:             true,
	SpamTime:            0.3,
	SpamVolOffsetFactor: 0.9,
	MaxSpamVolOffset:    0.3,
	GlobalVolume:        1.0,
	VolumeVar:           0.2,
}

// f32Range returns a uniform random float in [min, max].
func f32Range(rng *rand.Rand, min, max float32) float32 {
	return rng.Float32()*(max-min) + min
}

// Classify maps the time since the previous action of the same player
// to a click type and a volume offset. Spam sequences (gaps shorter
// than SpamTime) get a volume offset that grows as the gap shrinks,
// clamped to MaxSpamVolOffset; every click also gets a random
// variation of ±VolumeVar.
func Classify(dt float64, timings Timings, isClick bool, vol VolumeSettings, rng *rand.Rand) (ClickType, float32) {
	randVar := f32Range(rng, -vol.VolumeVar, vol.VolumeVar)
	var volOffset float32
	if vol.Enabled && dt < vol.SpamTime && (isClick || vol.ChangeReleasesVolume) {
		offset := float32(vol.SpamTime-dt) * vol.SpamVolOffsetFactor
		if offset < 0 {
			offset = 0
		} else if offset > vol.MaxSpamVolOffset {
			offset = vol.MaxSpamVolOffset
		}
		volOffset = (offset + randVar) * vol.GlobalVolume
	} else {
		volOffset = randVar * vol.GlobalVolume
	}

	var typ ClickType
	switch {
	case dt > timings.Hard:
		typ = pick(isClick, HardClick, HardRelease)
	case dt > timings.Regular:
		typ = pick(isClick, Click, Release)
	case dt > timings.Soft:
		typ = pick(isClick, SoftClick, SoftRelease)
	default:
		typ = pick(isClick, MicroClick, MicroRelease)
	}
	return typ, volOffset
}

func pick(isClick bool, click, release ClickType) ClickType {
	if isClick {
		return click
	}
	return release
}

// Preferred returns the fixed fallback order to try when the clickpack
// has no sample for the requested type: same-direction categories from
// nearest to farthest, then the opposite direction in the same order.
// Sample selection determinism depends on this table being exact.
func (t ClickType) Preferred() [8]ClickType {
	switch t {
	case HardClick:
		return [8]ClickType{HardClick, Click, SoftClick, MicroClick, HardRelease, Release, SoftRelease, MicroRelease}
	case HardRelease:
		return [8]ClickType{HardRelease, Release, SoftRelease, MicroRelease, HardClick, Click, SoftClick, MicroClick}
	case Click:
		return [8]ClickType{Click, HardClick, SoftClick, MicroClick, Release, HardRelease, SoftRelease, MicroRelease}
	case Release:
		return [8]ClickType{Release, HardRelease, SoftRelease, MicroRelease, Click, HardClick, SoftClick, MicroClick}
	case SoftClick:
		return [8]ClickType{SoftClick, MicroClick, Click, HardClick, SoftRelease, MicroRelease, Release, HardRelease}
	case SoftRelease:
		return [8]ClickType{SoftRelease, MicroRelease, Release, HardRelease, SoftClick, MicroClick, Click, HardClick}
	case MicroClick:
		return [8]ClickType{MicroClick, SoftClick, Click, HardClick, MicroRelease, SoftRelease, Release, HardRelease}
	case MicroRelease:
		return [8]ClickType{MicroRelease, SoftRelease, Release, HardRelease, MicroClick, SoftClick, Click, HardClick}
	default:
		return [8]ClickType{NoClick, NoClick, NoClick, NoClick, NoClick, NoClick, NoClick, NoClick}
	}
}

// ClickDir distinguishes the regular jump button from the platformer
// directional buttons.
type ClickDir int

const (
	DirRegular ClickDir = iota
	DirLeft
	DirRight
)

// PlayerClick is a classified click: a direction plus a timing
// category.
type PlayerClick struct {
	Dir  ClickDir
	Type ClickType
}

// IsClick reports whether the click is a press.
func (c PlayerClick) IsClick() bool { return c.Type.IsClick() }

// IsRelease reports whether the click is a release.
func (c PlayerClick) IsRelease() bool { return c.Type.IsRelease() }

// Button is a raw wire-level input: which button, and whether it went
// down or up. Parsers translate their per-format encodings into this.
type Button int

const (
	ButtonPush Button = iota
	ButtonRelease
	ButtonLeftPush
	ButtonLeftRelease
	ButtonRightPush
	ButtonRightRelease
)

// buttonFromDown maps a press flag to the jump button.
func buttonFromDown(down bool) Button {
	if down {
		return ButtonPush
	}
	return ButtonRelease
}

func buttonFromLeftDown(down bool) Button {
	if down {
		return ButtonLeftPush
	}
	return ButtonLeftRelease
}

func buttonFromRightDown(down bool) Button {
	if down {
		return ButtonRightPush
	}
	return ButtonRightRelease
}

// buttonFromIndex maps the shared 1=jump/2=left/3=right encoding used
// by the platformer-aware formats.
func buttonFromIndex(idx int32, down bool) Button {
	switch idx {
	case 3:
		return buttonFromRightDown(down)
	case 2:
		return buttonFromLeftDown(down)
	default:
		return buttonFromDown(down)
	}
}

// IsDown reports whether the button is a press.
func (b Button) IsDown() bool {
	switch b {
	case ButtonPush, ButtonLeftPush, ButtonRightPush:
		return true
	}
	return false
}

func (b Button) dir() ClickDir {
	switch b {
	case ButtonLeftPush, ButtonLeftRelease:
		return DirLeft
	case ButtonRightPush, ButtonRightRelease:
		return DirRight
	default:
		return DirRegular
	}
}
