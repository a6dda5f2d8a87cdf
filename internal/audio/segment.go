// Package audio provides the PCM engine behind click rendering: decoded
// stereo sample buffers, Hermite resampling, time-addressed overlay
// mixing, pitch tables, normalization and WAV export.
//
// All buffers are stereo float32 at an explicit sample rate. Segments
// that are mixed together must share the same rate; callers resample on
// load to enforce this.
package audio

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Segment is a decoded PCM buffer with a sample rate. The optional
// pitch table holds resampled copies of the segment at slightly
// different rates, used to vary playback pitch per overlay without
// retuning on the fly.
type Segment struct {
	SampleRate uint32
	Frames     []Frame
	PitchTable []*Segment
}

// Silent creates a segment of zero frames covering the given duration.
func Silent(rate uint32, seconds float64) *Segment {
	return &Segment{
		SampleRate: rate,
		Frames:     make([]Frame, timeToFrame(rate, seconds)),
	}
}

func timeToFrame(rate uint32, seconds float64) int {
	if seconds < 0 {
		return 0
	}
	return int(seconds * float64(rate))
}

// Duration returns the length of the segment in seconds.
func (s *Segment) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(s.Frames)) / float64(s.SampleRate) * float64(time.Second))
}

// frameAt converts a time to a frame index, clamped to the buffer.
func (s *Segment) frameAt(seconds float64) int {
	idx := timeToFrame(s.SampleRate, seconds)
	if max := len(s.Frames) - 1; idx > max {
		if max < 0 {
			return 0
		}
		return max
	}
	return idx
}

// Clone returns a deep copy of the segment's frames. The pitch table is
// not copied.
func (s *Segment) Clone() *Segment {
	frames := make([]Frame, len(s.Frames))
	copy(frames, s.Frames)
	return &Segment{SampleRate: s.SampleRate, Frames: frames}
}

// ── Overlay mixing ──────────────────────────────────────

// OverlayAt mixes other into s starting at the given time. Both
// segments must share the same sample rate.
func (s *Segment) OverlayAt(seconds float64, other *Segment) {
	s.OverlayAtVol(seconds, other, 1.0, math.Inf(1))
}

// OverlayAtVol mixes other into s starting at the given time, scaling
// every sample by volume. The overlay is truncated after untilNext
// seconds (pass +Inf to mix the whole segment). Concurrent calls on
// the same destination are not safe: overlapping actions write to
// overlapping frame ranges.
func (s *Segment) OverlayAtVol(seconds float64, other *Segment, volume float32, untilNext float64) {
	if s.SampleRate != other.SampleRate {
		panic("audio: overlay sample rate mismatch")
	}
	start := s.frameAt(seconds)
	end := start + len(other.Frames)
	if cut := timeToFrame(s.SampleRate, untilNext); !math.IsInf(untilNext, 1) && start+cut < end {
		end = start + cut
	}
	if max := len(s.Frames) - 1; end > max {
		end = max
		if end < 0 {
			return
		}
	}
	for i := start; i < end; i++ {
		o := other.Frames[i-start]
		s.Frames[i].Left += o.Left * volume
		s.Frames[i].Right += o.Right * volume
	}
}

// ── Resampling ──────────────────────────────────────────

// Resample converts the segment to a new sample rate in place using
// 4-point Hermite interpolation over a sliding window. No-op when the
// rate already matches.
func (s *Segment) Resample(rate uint32) *Segment {
	if rate == s.SampleRate || len(s.Frames) == 0 {
		s.SampleRate = rate
		return s
	}

	var window [4]Frame // prev, cur, next, next next
	pos := 0
	push := func(f Frame) {
		window[0], window[1], window[2] = window[1], window[2], window[3]
		window[3] = f
	}
	next := func() (Frame, bool) {
		if pos >= len(s.Frames) {
			return Frame{}, false
		}
		f := s.Frames[pos]
		pos++
		return f, true
	}

	// prime the window with the first 3 frames
	for range 3 {
		f, _ := next()
		push(f)
	}

	resampled := make([]Frame, 0, len(s.Frames))
	dt := float64(rate) / float64(s.SampleRate)
	fractional := 0.0

outer:
	for {
		resampled = append(resampled, interpolateFrame(
			window[0], window[1], window[2], window[3], float32(fractional)))

		fractional += dt
		for fractional >= 1.0 {
			fractional -= 1.0
			f, ok := next()
			if !ok {
				break outer
			}
			push(f)
		}
	}

	s.SampleRate = rate
	s.Frames = resampled
	return s
}

// ── Pitch tables ────────────────────────────────────────

// Pitch describes a pitch-variation range for a sample: resampled
// copies from from to to in increments of step.
type Pitch struct {
	From float32
	To   float32
	Step float32
}

// NoPitch is the sentinel range that generates an empty pitch table.
var NoPitch = Pitch{From: 1.0, To: 1.0, Step: 0.0}

// DefaultPitch is a subtle ±2% variation.
var DefaultPitch = Pitch{From: 0.98, To: 1.02, Step: 0.0005}

// MakePitchTable fills the pitch table with resampled clones of the
// segment. Clone i is resampled to rate·(from+i·step) and then
// relabeled with the original rate, so playing it back shifts the
// pitch. Entries are generated in parallel; each clone is private to
// its goroutine.
func (s *Segment) MakePitchTable(pitch Pitch) {
	n := 0
	if pitch.Step > 0 {
		// drop float32 rounding noise so 0.2/0.1 yields 2 entries, not 3
		n = int(math.Ceil(float64(pitch.To-pitch.From)/float64(pitch.Step) - 1e-4))
	}
	if n < 0 {
		n = 0
	}
	s.PitchTable = make([]*Segment, n)
	if n == 0 {
		return
	}
	slog.Debug("generating pitch table", "from", pitch.From, "to", pitch.To, "step", pitch.Step, "entries", n)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range s.PitchTable {
		g.Go(func() error {
			clone := s.Clone()
			cur := pitch.From + float32(i)*pitch.Step
			clone.Resample(uint32(float64(s.SampleRate) * float64(cur)))
			clone.SampleRate = s.SampleRate // keep the original rate
			s.PitchTable[i] = clone
			return nil
		})
	}
	_ = g.Wait() // entries never fail
}

// RandomPitch picks a random pitch-table entry, or the segment itself
// when no table was generated.
func (s *Segment) RandomPitch(rng *rand.Rand) *Segment {
	if len(s.PitchTable) == 0 {
		return s
	}
	return s.PitchTable[rng.IntN(len(s.PitchTable))]
}

// ── Amplitude transforms ────────────────────────────────

// Normalize scales each channel so its peak absolute sample is 1.
// Channels that are entirely silent are left untouched.
func (s *Segment) Normalize() {
	var peakL, peakR float32
	for _, f := range s.Frames {
		if a := abs32(f.Left); a > peakL {
			peakL = a
		}
		if a := abs32(f.Right); a > peakR {
			peakR = a
		}
	}
	if peakL == 0 && peakR == 0 {
		return
	}
	for i := range s.Frames {
		if peakL > 0 {
			s.Frames[i].Left /= peakL
		}
		if peakR > 0 {
			s.Frames[i].Right /= peakR
		}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// SetVolume multiplies every sample by the given factor.
func (s *Segment) SetVolume(volume float32) *Segment {
	for i := range s.Frames {
		s.Frames[i] = s.Frames[i].Scale(volume)
	}
	return s
}

// Reverse flips the frame order in place.
func (s *Segment) Reverse() *Segment {
	for i, j := 0, len(s.Frames)-1; i < j; i, j = i+1, j-1 {
		s.Frames[i], s.Frames[j] = s.Frames[j], s.Frames[i]
	}
	return s
}

// RemoveSilenceFromStart drops leading frames whose mean channel
// amplitude is at or below threshold.
func (s *Segment) RemoveSilenceFromStart(threshold float32) {
	idx := 0
	for i, f := range s.Frames {
		if abs32((f.Left+f.Right)/2) > threshold {
			idx = i
			break
		}
	}
	s.Frames = s.Frames[idx:]
}

// RemoveSilenceFromEnd drops trailing frames whose mean channel
// amplitude is at or below threshold.
func (s *Segment) RemoveSilenceFromEnd(threshold float32) {
	idx := 0
	for i := len(s.Frames) - 1; i >= 0; i-- {
		f := s.Frames[i]
		if abs32((f.Left+f.Right)/2) > threshold {
			break
		}
		idx++
	}
	s.Frames = s.Frames[:len(s.Frames)-idx]
}
