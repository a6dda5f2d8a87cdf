// Package replay normalizes the ~25 supported recorder formats into a
// single canonical action stream: a list of timestamped, classified
// clicks per player, plus an optional extended stream carrying physics
// state for conversion and expression evaluation.
package replay

import (
	"log/slog"
	"math/rand/v2"
	"sort"
)

// Player identifies which of the two players performed an action.
type Player int

const (
	PlayerOne Player = iota
	PlayerTwo
)

// Action is a single render-time event.
type Action struct {
	// Time since the replay was started, in seconds.
	Time float64
	// Player that performed the action.
	Player Player
	// Click classification for the action.
	Click PlayerClick
	// Volume offset applied on top of the base volume.
	VolOffset float32
	// Frame the action was recorded on.
	Frame uint32
}

// ExtendedAction is a single convert-time event carrying physics state.
type ExtendedAction struct {
	Player2   bool
	Down      bool
	Frame     uint32
	X         float32
	Y         float32
	YAccel    float32
	Rot       float32
	FPSChange *float64
}

// Replay is the canonical decoded replay.
type Replay struct {
	// FPS is the replay's tick rate; some formats change it mid-stream.
	FPS float64
	// Duration is the time of the last action, in seconds.
	Duration float64
	// Actions used for generating clicks, ordered by time after parse.
	Actions []Action
	// Extended holds conversion data; populated only when extended
	// capture is enabled.
	Extended []ExtendedAction

	// carry state for click classification, per player
	prevAction [2]*ClickType
	prevTime   [2]float64

	timings     Timings
	volSettings VolumeSettings
	rng         *rand.Rand

	extendedData  bool
	sortActions   bool
	overrideFPS   *float64
	discardDeaths bool
	swapPlayers   bool
}

// Option configures a Replay before parsing.
type Option func(*Replay)

// WithTimings sets the click-classification ceilings.
func WithTimings(t Timings) Option { return func(r *Replay) { r.timings = t } }

// WithVolSettings sets the spam-volume configuration.
func WithVolSettings(v VolumeSettings) Option { return func(r *Replay) { r.volSettings = v } }

// WithExtended enables capture of the extended action stream.
func WithExtended(enabled bool) Option { return func(r *Replay) { r.extendedData = enabled } }

// WithSortActions enables stable-sorting actions by time (and extended
// actions by frame) after parsing.
func WithSortActions(enabled bool) Option { return func(r *Replay) { r.sortActions = enabled } }

// WithOverrideFPS forces the replay FPS, ignoring whatever the file
// declares (including mid-stream changes).
func WithOverrideFPS(fps float64) Option { return func(r *Replay) { r.overrideFPS = &fps } }

// WithDiscardDeaths drops inputs recorded before the final death, for
// formats that record death frames.
func WithDiscardDeaths(enabled bool) Option { return func(r *Replay) { r.discardDeaths = enabled } }

// WithSwapPlayers swaps the player tag on every action.
func WithSwapPlayers(enabled bool) Option { return func(r *Replay) { r.swapPlayers = enabled } }

// WithRand sets the RNG used for per-click volume variation. Defaults
// to a time-seeded generator; tests pass a seeded one.
func WithRand(rng *rand.Rand) Option { return func(r *Replay) { r.rng = rng } }

// New creates an empty replay with the given configuration.
func New(opts ...Option) *Replay {
	r := &Replay{
		timings:     DefaultTimings,
		volSettings: DefaultVolumeSettings,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = defaultRand()
	}
	return r
}

func defaultRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// HasActions reports whether parsing produced any actions.
func (r *Replay) HasActions() bool { return len(r.Actions) > 0 }

// LastFrame returns the frame of the last extended action, or 0 when
// extended capture is disabled or empty.
func (r *Replay) LastFrame() uint32 {
	if len(r.Extended) == 0 {
		return 0
	}
	return r.Extended[len(r.Extended)-1].Frame
}

// SortActions stable-sorts actions by time and extended actions by
// frame.
func (r *Replay) SortActions() {
	sort.SliceStable(r.Actions, func(i, j int) bool {
		return r.Actions[i].Time < r.Actions[j].Time
	})
	sort.SliceStable(r.Extended, func(i, j int) bool {
		return r.Extended[i].Frame < r.Extended[j].Frame
	})
}

// finish applies post-parse canonicalization shared by all formats.
func (r *Replay) finish() {
	if r.sortActions {
		r.SortActions()
	}
	if len(r.Actions) > 0 {
		r.Duration = r.Actions[len(r.Actions)-1].Time
	}
	slog.Debug("replay parsed", "fps", r.FPS, "duration", r.Duration, "actions", len(r.Actions))
}

// getFPS returns the override FPS when set, the actual value otherwise.
func (r *Replay) getFPS(actual float64) float64 {
	if r.overrideFPS != nil {
		return *r.overrideFPS
	}
	return actual
}

// fpsChange stamps the most recent extended action with a mid-stream
// FPS change.
func (r *Replay) fpsChange(fps float64) {
	if len(r.Extended) > 0 {
		r.Extended[len(r.Extended)-1].FPSChange = &fps
	}
}

// processAction appends a classified action for the given player,
// filtering duplicate same-direction transitions and releases that
// precede any press.
func (r *Replay) processAction(p Player, time float64, button Button, frame uint32) {
	down := button.IsDown()
	if !down && len(r.Actions) == 0 {
		return
	}
	// if the action repeats the previous direction, skip it
	if prev := r.prevAction[p]; prev != nil && down == prev.IsClick() {
		return
	}

	delta := time - r.prevTime[p]
	typ, volOffset := Classify(delta, r.timings, down, r.volSettings, r.rng)

	r.prevTime[p] = time
	r.prevAction[p] = &typ

	player := p
	if r.swapPlayers {
		player = PlayerOne + PlayerTwo - p
	}
	r.Actions = append(r.Actions, Action{
		Time:      time,
		Player:    player,
		Click:     PlayerClick{Dir: button.dir(), Type: typ},
		VolOffset: volOffset,
		Frame:     frame,
	})
}

func (r *Replay) processActionP1(time float64, button Button, frame uint32) {
	r.processAction(PlayerOne, time, button, frame)
}

func (r *Replay) processActionP2(time float64, button Button, frame uint32) {
	r.processAction(PlayerTwo, time, button, frame)
}

func (r *Replay) extendedP1(down bool, frame uint32, x, y, yAccel, rot float32) {
	if !r.extendedData {
		return
	}
	r.Extended = append(r.Extended, ExtendedAction{
		Down: down, Frame: frame, X: x, Y: y, YAccel: yAccel, Rot: rot,
	})
}

func (r *Replay) extendedP2(down bool, frame uint32, x, y, yAccel, rot float32) {
	if !r.extendedData {
		return
	}
	// some formats omit the x position for player 2; carry it forward
	// from player 1 to stabilize position readouts
	if x == 0 {
		if last := r.lastExtended(PlayerOne); last != nil {
			x = last.X
		}
	}
	r.Extended = append(r.Extended, ExtendedAction{
		Player2: true, Down: down, Frame: frame, X: x, Y: y, YAccel: yAccel, Rot: rot,
	})
}

// lastExtended returns the most recent extended action. For PlayerOne
// the scan skips player-2 entries.
func (r *Replay) lastExtended(player Player) *ExtendedAction {
	for i := len(r.Extended) - 1; i >= 0; i-- {
		if player != PlayerTwo && r.Extended[i].Player2 {
			continue
		}
		return &r.Extended[i]
	}
	return nil
}
