// Package gdr2 implements the GDReplayFormat v2 container: a compact
// binary replay layout with varint-packed, frame-delta-coded inputs
// split per player, preceded by replay metadata and death frames.
package gdr2

import (
	"errors"
	"fmt"
	"os"
	"sort"
)

var magic = []byte("GDR")

// Version is the only container version this package reads and writes.
const Version = 2

// Decode errors.
var (
	ErrInvalidMagic  = errors.New("gdr2: invalid magic")
	ErrUnexpectedEOF = errors.New("gdr2: unexpected end of data")
)

// UnsupportedVersionError reports a container version other than 2.
type UnsupportedVersionError struct {
	Version int32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("gdr2: unsupported version %d", e.Version)
}

// InvalidDataError reports structurally valid but semantically
// impossible data.
type InvalidDataError struct {
	Msg string
}

func (e *InvalidDataError) Error() string {
	return "gdr2: invalid data: " + e.Msg
}

func invalidData(format string, a ...any) error {
	return &InvalidDataError{Msg: fmt.Sprintf(format, a...)}
}

// Bot identifies the bot that recorded the replay.
type Bot struct {
	Name    string
	Version int32
}

// Level identifies the level the replay was recorded on.
type Level struct {
	ID   uint32
	Name string
}

// Physics is the optional per-input physics payload.
type Physics struct {
	XPosition float32
	YPosition float32
	Rotation  float32
	XVelocity float64
	YVelocity float64
}

// Input is a single recorded input.
type Input struct {
	// Frame the input was recorded on.
	Frame uint64
	// Button: 1 = jump, 2 = left, 3 = right. Non-platformer replays
	// only store the down bit, so every decoded button reads as 1.
	Button uint8
	// Player2 marks inputs of the second player.
	Player2 bool
	// Down is true for presses, false for releases.
	Down bool
	// Physics holds optional physics-correction data. Export does not
	// encode it and Import does not decode it.
	Physics *Physics
}

// NewInput creates an input without physics data.
func NewInput(frame uint64, button uint8, player2, down bool) Input {
	return Input{Frame: frame, Button: button, Player2: player2, Down: down}
}

// Replay is a GD replay: metadata plus inputs and death frames.
type Replay struct {
	Author      string
	Description string
	Duration    float32
	GameVersion int32
	Framerate   float64
	Seed        int32
	Coins       int32
	LDM         bool
	Platformer  bool
	BotInfo     Bot
	LevelInfo   Level
	Inputs      []Input
	Deaths      []uint64
}

// New creates an empty replay at the default 240 framerate.
func New() *Replay {
	return &Replay{Framerate: 240.0, BotInfo: Bot{Version: 1}}
}

// SortInputs orders the inputs by frame number.
func (r *Replay) SortInputs() {
	sort.SliceStable(r.Inputs, func(i, j int) bool {
		return r.Inputs[i].Frame < r.Inputs[j].Frame
	})
}

// packInput packs an input's frame delta, button and down bit. In
// platformer mode the button occupies bits 1-2; otherwise only the
// down bit is stored and the button identity is lost by design.
func packInput(in Input, delta uint64, platformer bool) int32 {
	var packed uint64
	if platformer {
		packed = delta<<3 | uint64(in.Button)<<1 | boolBit(in.Down)
	} else {
		packed = delta<<1 | boolBit(in.Down)
	}
	return int32(packed)
}

func boolBit(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// Export encodes the replay.
func (r *Replay) Export() ([]byte, error) {
	w := NewWriter()

	// header
	w.Bytes(magic)
	w.Varint(Version)
	w.String("") // input tag (no extensions)

	// metadata
	w.String(r.Author)
	w.String(r.Description)
	w.F32(r.Duration)
	w.Varint(r.GameVersion)
	w.F64(r.Framerate)
	w.Varint(r.Seed)
	w.Varint(r.Coins)
	w.Bool(r.LDM)
	w.Bool(r.Platformer)
	w.String(r.BotInfo.Name)
	w.Varint(r.BotInfo.Version)
	w.Varint(int32(r.LevelInfo.ID))
	w.String(r.LevelInfo.Name)

	// empty extension section
	w.Varint(0)

	// deaths, delta-coded
	w.Varint(int32(len(r.Deaths)))
	var prev uint64
	for _, death := range r.Deaths {
		w.Varint(int32(death - prev))
		prev = death
	}

	p1Inputs := 0
	for _, in := range r.Inputs {
		if !in.Player2 {
			p1Inputs++
		}
	}
	w.Varint(int32(len(r.Inputs)))
	w.Varint(int32(p1Inputs))

	// player 1 inputs, then player 2 inputs, each delta-coded
	prev = 0
	for _, in := range r.Inputs {
		if in.Player2 {
			continue
		}
		w.Varint(packInput(in, in.Frame-prev, r.Platformer))
		prev = in.Frame
	}
	prev = 0
	for _, in := range r.Inputs {
		if !in.Player2 {
			continue
		}
		w.Varint(packInput(in, in.Frame-prev, r.Platformer))
		prev = in.Frame
	}

	return w.Data(), nil
}

// ExportToFile encodes the replay and writes it to a file.
func (r *Replay) ExportToFile(path string) error {
	data, err := r.Export()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Import decodes a replay from bytes.
func Import(data []byte) (*Replay, error) {
	rd := NewReader(data)
	replay := New()

	m, err := rd.Bytes(3)
	if err != nil {
		return nil, err
	}
	if string(m) != string(magic) {
		return nil, ErrInvalidMagic
	}

	version, err := rd.Varint()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, &UnsupportedVersionError{Version: version}
	}
	if _, err := rd.String(); err != nil { // input tag, unused
		return nil, err
	}

	if replay.Author, err = rd.String(); err != nil {
		return nil, err
	}
	if replay.Description, err = rd.String(); err != nil {
		return nil, err
	}
	if replay.Duration, err = rd.F32(); err != nil {
		return nil, err
	}
	if replay.GameVersion, err = rd.Varint(); err != nil {
		return nil, err
	}
	if replay.Framerate, err = rd.F64(); err != nil {
		return nil, err
	}
	if replay.Seed, err = rd.Varint(); err != nil {
		return nil, err
	}
	if replay.Coins, err = rd.Varint(); err != nil {
		return nil, err
	}
	if replay.LDM, err = rd.Bool(); err != nil {
		return nil, err
	}
	if replay.Platformer, err = rd.Bool(); err != nil {
		return nil, err
	}
	if replay.BotInfo.Name, err = rd.String(); err != nil {
		return nil, err
	}
	if replay.BotInfo.Version, err = rd.Varint(); err != nil {
		return nil, err
	}
	levelID, err := rd.Varint()
	if err != nil {
		return nil, err
	}
	replay.LevelInfo.ID = uint32(levelID)
	if replay.LevelInfo.Name, err = rd.String(); err != nil {
		return nil, err
	}

	// skip the opaque extension payload
	extSize, err := rd.Varint()
	if err != nil {
		return nil, err
	}
	if err := rd.Skip(int(extSize)); err != nil {
		return nil, err
	}

	// deaths, prefix-sum decoded
	deathCount, err := rd.Varint()
	if err != nil {
		return nil, err
	}
	var prev uint64
	for i := int32(0); i < deathCount; i++ {
		delta, err := rd.Varint()
		if err != nil {
			return nil, err
		}
		prev += uint64(delta)
		replay.Deaths = append(replay.Deaths, prev)
	}

	totalInputs, err := rd.Varint()
	if err != nil {
		return nil, err
	}
	p1Inputs, err := rd.Varint()
	if err != nil {
		return nil, err
	}
	if p1Inputs > totalInputs || totalInputs < 0 || p1Inputs < 0 {
		return nil, invalidData("input counts %d/%d", p1Inputs, totalInputs)
	}

	readInputs := func(count int32, player2 bool) error {
		var prev uint64
		for i := int32(0); i < count; i++ {
			v, err := rd.Varint()
			if err != nil {
				return err
			}
			packed := uint64(uint32(v))
			var frame uint64
			var button uint8
			var down bool
			if replay.Platformer {
				frame = prev + packed>>3
				button = uint8(packed >> 1 & 3)
				down = packed&1 != 0
			} else {
				frame = prev + packed>>1
				button = 1 // the jump button; identity is lost at encode time
				down = packed&1 != 0
			}
			replay.Inputs = append(replay.Inputs, NewInput(frame, button, player2, down))
			prev = frame
		}
		return nil
	}
	if err := readInputs(p1Inputs, false); err != nil {
		return nil, err
	}
	if err := readInputs(totalInputs-p1Inputs, true); err != nil {
		return nil, err
	}

	replay.SortInputs()
	return replay, nil
}

// ImportFromFile reads and decodes a replay file.
func ImportFromFile(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Import(data)
}
