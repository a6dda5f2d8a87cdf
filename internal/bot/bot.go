// Package bot composites a parsed replay and a loaded clickpack into a
// rendered audio track: per-action sample selection with deterministic
// fallback chains, optional pitch variation and expression-driven
// volume or timing tweaks, overlay mixing and an optional noise bed.
package bot

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/kyv0/clickbot/internal/audio"
	"github.com/kyv0/clickbot/internal/clickpack"
	"github.com/kyv0/clickbot/internal/expr"
	"github.com/kyv0/clickbot/internal/replay"
)

// ExprVariable selects what the compiled expression's value drives.
type ExprVariable int

const (
	// ExprNone disables the expression.
	ExprNone ExprVariable = iota
	// ExprValue adds the expression result directly to the volume.
	ExprValue
	// ExprVariation adds a random volume variation within the
	// expression result.
	ExprVariation
	// ExprTimeOffset shifts the overlay start time by the result.
	ExprTimeOffset
)

func (v ExprVariable) String() string {
	switch v {
	case ExprValue:
		return "value"
	case ExprVariation:
		return "variation"
	case ExprTimeOffset:
		return "time-offset"
	default:
		return "none"
	}
}

// RenderOptions configure a render pass.
type RenderOptions struct {
	// Noise overlays the clickpack's noise bed under the clicks.
	Noise bool
	// NoiseVolume scales the noise bed.
	NoiseVolume float32
	// Normalize scales the output so the peak is 1 per channel.
	Normalize bool
	// ExprVar selects what the compiled expression drives.
	ExprVar ExprVariable
	// ExprNegative extends the variation range to negative numbers
	// (variation mode only).
	ExprNegative bool
	// EnablePitch picks a random pitch-table entry per click.
	EnablePitch bool
	// CutSounds truncates each sample at the next press of the same
	// player.
	CutSounds bool
}

// Bot owns the clickpack and the expression state for rendering.
type Bot struct {
	// Clickpack holds the loaded sample library.
	Clickpack *clickpack.Clickpack
	// LongestClick is the longest sample duration in seconds, used to
	// pad the output buffer.
	LongestClick float64
	// Noise is the optional noise bed, resampled to SampleRate.
	Noise *audio.Segment
	// SampleRate is the output rate; every sample is resampled to it
	// on load.
	SampleRate uint32

	rng      *rand.Rand
	ns       expr.Namespace
	compiled *expr.Program
}

// New creates a bot rendering at the given sample rate.
func New(sampleRate uint32) *Bot {
	return &Bot{
		Clickpack:  clickpack.NewClickpack(),
		SampleRate: sampleRate,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		ns:         expr.Namespace{},
	}
}

// SetRand replaces the RNG used for sample selection, pitch choice and
// the rand expression variable. Tests pass a seeded generator for
// bit-stable output.
func (b *Bot) SetRand(rng *rand.Rand) { b.rng = rng }

// HasNoise reports whether a noise bed was found.
func (b *Bot) HasNoise() bool { return b.Noise != nil }

// HasClicks reports whether the loaded clickpack is usable.
func (b *Bot) HasClicks() bool { return b.Clickpack.HasClicks() }

// LoadClickpack loads the sample library from dir. Samples are
// resampled to the bot's sample rate and get pitch tables for the
// given range. Fails when no usable sample is found anywhere.
func (b *Bot) LoadClickpack(dir string, pitch audio.Pitch) error {
	if b.SampleRate == 0 {
		return fmt.Errorf("bot: sample rate is not set")
	}
	start := time.Now()

	for _, name := range clickpack.GroupNames {
		path := filepath.Join(dir, name)
		b.Clickpack.SetGroup(name, clickpack.FromPath(path, pitch, b.SampleRate))

		// noise files may live inside the player-group directories
		if !b.HasNoise() {
			b.loadNoise(path)
		}
	}

	if !b.HasClicks() {
		slog.Warn("no player-group directories in clickpack, assuming a single player", "dirs", clickpack.GroupNames)
		b.Clickpack.Player1 = clickpack.FromPath(dir, pitch, b.SampleRate)
	}

	// the longest click pads the render so the end is never cut off
	b.LongestClick = b.Clickpack.LongestClick()
	slog.Debug("longest click", "seconds", b.LongestClick)

	if !b.HasNoise() {
		b.loadNoise(dir)
	}

	if !b.HasClicks() {
		return fmt.Errorf("bot: no clicks found in clickpack, did you select the correct folder?")
	}
	slog.Info("clickpack loaded", "sounds", b.Clickpack.NumSounds(), "took", time.Since(start))
	return nil
}

func (b *Bot) loadNoise(dir string) {
	path := clickpack.FindNoiseFile(dir)
	if path == "" {
		return
	}
	noise, err := audio.DecodeFile(path)
	if err != nil {
		slog.Warn("failed to decode noise file", "file", path, "error", err)
		return
	}
	noise.Resample(b.SampleRate)
	b.Noise = noise
}

// getRandomClick picks a sample for an action. For each direction and
// player, six player groups are tried in a fixed priority order; the
// first group that yields a sample along the click type's preference
// chain wins. At least one group is non-empty, so selection cannot
// fail on a loaded clickpack.
func (b *Bot) getRandomClick(player replay.Player, click replay.PlayerClick) *audio.Segment {
	cp := b.Clickpack
	var chain [6]*clickpack.PlayerClicks
	switch click.Dir {
	case replay.DirLeft:
		if player == replay.PlayerOne {
			chain = [6]*clickpack.PlayerClicks{cp.Left1, cp.Right1, cp.Player1, cp.Left2, cp.Right2, cp.Player2}
		} else {
			chain = [6]*clickpack.PlayerClicks{cp.Left2, cp.Right2, cp.Player2, cp.Left1, cp.Right1, cp.Player1}
		}
	case replay.DirRight:
		if player == replay.PlayerOne {
			chain = [6]*clickpack.PlayerClicks{cp.Right1, cp.Left1, cp.Player1, cp.Right2, cp.Left2, cp.Player2}
		} else {
			chain = [6]*clickpack.PlayerClicks{cp.Right2, cp.Left2, cp.Player2, cp.Right1, cp.Left1, cp.Player1}
		}
	default:
		if player == replay.PlayerOne {
			chain = [6]*clickpack.PlayerClicks{cp.Player1, cp.Player2, cp.Left1, cp.Right1, cp.Left2, cp.Right2}
		} else {
			chain = [6]*clickpack.PlayerClicks{cp.Player2, cp.Player1, cp.Left2, cp.Right2, cp.Left1, cp.Right1}
		}
	}

	for _, group := range chain {
		if segment := group.RandomClick(click.Type, b.rng); segment != nil {
			return segment
		}
	}
	return nil
}

// ── Expression evaluation ───────────────────────────────

// CompileExpression compiles the volume/time-offset expression and
// resets the namespace.
func (b *Bot) CompileExpression(src string) error {
	program, err := expr.Compile(src)
	if err != nil {
		return err
	}
	b.compiled = program
	b.ns = expr.Namespace{}
	return nil
}

// UpdateNamespace loads an extended action into the expression
// namespace.
func (b *Bot) UpdateNamespace(a *replay.ExtendedAction, prevFrame, totalFrames uint32, fps float64) {
	b.ns["frame"] = float64(a.Frame)
	b.ns["fps"] = fps
	b.ns["time"] = float64(a.Frame) / fps
	b.ns["x"] = float64(a.X)
	b.ns["y"] = float64(a.Y)
	b.ns["p"] = float64(a.Frame) / float64(totalFrames)
	b.ns["player2"] = boolToF64(a.Player2)
	b.ns["rot"] = float64(a.Rot)
	b.ns["accel"] = float64(a.YAccel)
	b.ns["down"] = boolToF64(a.Down)
	b.ns["frames"] = float64(totalFrames)
	b.ns["level_time"] = float64(totalFrames) / fps
	b.ns["rand"] = b.rng.Float64()
	b.ns["delta"] = float64(a.Frame - prevFrame)
}

func boolToF64(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// EvalExpression evaluates the compiled expression against the current
// namespace.
func (b *Bot) EvalExpression() (float64, error) {
	if b.compiled == nil {
		return 0, fmt.Errorf("bot: no expression compiled")
	}
	return b.compiled.Eval(b.ns)
}

// ExprRange evaluates the expression over the whole extended stream
// and returns the minimum and maximum values. Used to pre-size the
// output buffer in time-offset mode.
func (b *Bot) ExprRange(r *replay.Replay) (float64, float64) {
	min, max := math.MaxFloat64, -math.MaxFloat64
	var prevFrame uint32
	for i := range r.Extended {
		a := &r.Extended[i]
		b.UpdateNamespace(a, prevFrame, r.LastFrame(), r.FPS)
		prevFrame = a.Frame

		val, err := b.EvalExpression()
		if err != nil {
			val = 0
		}
		min = math.Min(min, val)
		max = math.Max(max, val)
	}
	return min, max
}

// ── Rendering ───────────────────────────────────────────

// Render composites the replay into a stereo buffer: a silent segment
// covering the replay plus padding, with one sample overlaid per
// action, then the optional noise bed and normalization.
func (b *Bot) Render(r *replay.Replay, opts RenderOptions) *audio.Segment {
	slog.Info("starting render", "actions", len(r.Actions), "noise", opts.Noise)
	start := time.Now()

	longestTimeOffset := 0.0
	if opts.ExprVar == ExprTimeOffset {
		_, longestTimeOffset = b.ExprRange(r)
	}

	segment := audio.Silent(b.SampleRate, r.Duration+b.LongestClick+longestTimeOffset)
	var prevFrame uint32

	for i := range r.Actions {
		action := &r.Actions[i]

		// expression-driven volume delta or overlay shift
		var exprVol float32
		var timeOffset float64
		if opts.ExprVar != ExprNone {
			extended := b.findExtended(r, action.Frame)
			b.UpdateNamespace(extended, prevFrame, r.LastFrame(), r.FPS)
			prevFrame = extended.Frame

			// eval failures degrade to 0 to keep rendering robust
			value, err := b.EvalExpression()
			if err != nil {
				value = 0
			}
			switch opts.ExprVar {
			case ExprValue:
				exprVol = float32(value)
			case ExprVariation:
				v := float32(value)
				if v != 0 {
					if opts.ExprNegative {
						exprVol = f32Range(b.rng, min32(-v, v), max32(v, -v))
					} else {
						exprVol = f32Range(b.rng, min32(v, 0), max32(v, 0))
					}
				}
			case ExprTimeOffset:
				timeOffset = value
			}
		}

		sample := b.getRandomClick(action.Player, action.Click)
		if sample == nil {
			continue // unusable clickpack is rejected at load time
		}
		if opts.EnablePitch {
			sample = sample.RandomPitch(b.rng)
		}

		untilNext := math.Inf(1)
		if opts.CutSounds {
			// cut this sound at the next press of the same player
			for _, next := range r.Actions[i+1:] {
				if next.Player == action.Player && next.Click.IsClick() {
					untilNext = next.Time - action.Time
					break
				}
			}
		}

		segment.OverlayAtVol(action.Time+timeOffset, sample,
			1.0+action.VolOffset+exprVol, untilNext)
	}

	if opts.Noise && b.HasNoise() {
		// tile the noise bed across the whole render
		total := segment.Duration().Seconds()
		step := b.Noise.Duration().Seconds()
		for at := 0.0; at < total && step > 0; at += step {
			segment.OverlayAtVol(at, b.Noise, opts.NoiseVolume, math.Inf(1))
		}
	}

	if opts.Normalize {
		segment.Normalize()
	}

	slog.Info("rendered", "took", time.Since(start))
	return segment
}

// findExtended binary-searches the extended stream for an action's
// frame; a zero-value action stands in when the frame is absent.
func (b *Bot) findExtended(r *replay.Replay, frame uint32) *replay.ExtendedAction {
	lo, hi := 0, len(r.Extended)
	for lo < hi {
		mid := (lo + hi) / 2
		if r.Extended[mid].Frame < frame {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(r.Extended) && r.Extended[lo].Frame == frame {
		return &r.Extended[lo]
	}
	return &replay.ExtendedAction{}
}

func f32Range(rng *rand.Rand, min, max float32) float32 {
	return rng.Float32()*(max-min) + min
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
