package replay

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/klauspost/compress/gzip"
)

// Flat length-prefixed binary formats: a short magic or header with the
// FPS and an action count, followed by a fixed-size action table.
// Formats written by C++ bots dump padded structs, so record layouts
// below include the compiler padding.

func (r *Replay) parseYbotf(data []byte) error {
	br := newByteReader(data)
	fps, err := br.f32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))
	numActions, err := br.i32()
	if err != nil {
		return err
	}

	for i := int32(0); i < numActions; i++ {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		state, err := br.u32()
		if err != nil {
			return err
		}
		down := state&0b10 != 0
		p2 := state&0b01 != 0
		time := float64(frame) / r.FPS

		if p2 {
			r.processActionP2(time, buttonFromDown(down), frame)
			r.extendedP2(down, frame, 0, 0, 0, 0)
		} else {
			r.processActionP1(time, buttonFromDown(down), frame)
			r.extendedP1(down, frame, 0, 0, 0, 0)
		}
	}
	return nil
}

func (r *Replay) parseZbf(data []byte) error {
	br := newByteReader(data)
	delta, err := br.f32()
	if err != nil {
		return err
	}
	speedhack, err := br.f32()
	if err != nil {
		return err
	}
	if speedhack == 0 {
		slog.Error("zbf speedhack is 0.0, defaulting to 1.0")
		speedhack = 1.0 // avoid an infinite fps
	}
	r.FPS = r.getFPS(1.0 / float64(delta) / float64(speedhack))

	for br.remaining() >= 6 {
		frame, err := br.i32()
		if err != nil {
			return err
		}
		downB, err := br.u8()
		if err != nil {
			return err
		}
		p1B, err := br.u8()
		if err != nil {
			return err
		}
		down := downB == 0x31
		p1 := p1B == 0x31
		time := float64(frame) / r.FPS

		if p1 {
			r.processActionP1(time, buttonFromDown(down), uint32(frame))
			r.extendedP1(down, uint32(frame), 0, 0, 0, 0)
		} else {
			r.processActionP2(time, buttonFromDown(down), uint32(frame))
			r.extendedP2(down, uint32(frame), 0, 0, 0, 0)
		}
	}
	return nil
}

const mhrBinMagic = 0x4841434B // "HACK", big-endian

func (r *Replay) parseMhrBin(data []byte) error {
	// someone may have renamed a .mhr.json to .mhr; probe for JSON
	if v, err := parseJSONValue(data); err == nil {
		return r.parseMhrValue(v)
	}

	br := newByteReader(data)
	magic, err := br.u32be()
	if err != nil {
		return err
	}
	if magic != mhrBinMagic {
		return fmt.Errorf("%w: mhr binary magic %#x", ErrInvalidMagic, magic)
	}

	br.seek(12)
	fps, err := br.u32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))
	br.seek(28)
	numActions, err := br.u32()
	if err != nil {
		return err
	}

	for i := uint32(0); i < numActions; i++ {
		if err := br.skip(2); err != nil {
			return err
		}
		downB, err := br.u8()
		if err != nil {
			return err
		}
		p1B, err := br.u8()
		if err != nil {
			return err
		}
		frame, err := br.u32()
		if err != nil {
			return err
		}
		if err := br.skip(24); err != nil {
			return err
		}
		down := downB == 1
		p1 := p1B == 0
		time := float64(frame) / r.FPS

		if p1 {
			r.processActionP1(time, buttonFromDown(down), frame)
			r.extendedP1(down, frame, 0, 0, 0, 0)
		} else {
			r.processActionP2(time, buttonFromDown(down), frame)
			r.extendedP2(down, frame, 0, 0, 0, 0)
		}
	}
	return nil
}

const (
	echoBinMagic   = 0x4D455441 // "META", big-endian
	echoBinDbgType = 0x44424700 // debug-mode replays carry physics per action
)

// parseEchoBin parses the new Echo binary format.
func (r *Replay) parseEchoBin(data []byte) error {
	br := newByteReader(data)
	magic, err := br.u32be()
	if err != nil {
		return err
	}
	if magic != echoBinMagic {
		return fmt.Errorf("%w: echo binary magic %#x", ErrInvalidMagic, magic)
	}
	replayType, err := br.u32be()
	if err != nil {
		return err
	}
	actionSize := 6
	dbg := replayType == echoBinDbgType
	if dbg {
		actionSize = 24
	}

	br.seek(24)
	fps, err := br.f32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))
	br.seek(48)

	numActions := (len(data) - 48) / actionSize
	for i := 0; i < numActions; i++ {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		downB, err := br.u8()
		if err != nil {
			return err
		}
		p1B, err := br.u8()
		if err != nil {
			return err
		}
		down := downB == 1
		p1 := p1B == 0
		time := float64(frame) / r.FPS

		// extra physics vars are only saved in debug mode
		var x, y, rot float32
		var yAccel float64
		if dbg {
			if x, err = br.f32(); err != nil {
				return err
			}
			if yAccel, err = br.f64(); err != nil {
				return err
			}
			if _, err = br.f64(); err != nil { // x acceleration, unused
				return err
			}
			if y, err = br.f32(); err != nil {
				return err
			}
			if rot, err = br.f32(); err != nil {
				return err
			}
		}

		if p1 {
			r.processActionP1(time, buttonFromDown(down), frame)
			r.extendedP1(down, frame, x, y, float32(yAccel), rot)
		} else {
			r.processActionP2(time, buttonFromDown(down), frame)
			r.extendedP2(down, frame, x, y, float32(yAccel), rot)
		}
	}
	return nil
}

func (r *Replay) parseRush(data []byte) error {
	br := newByteReader(data)
	fps, err := br.i16()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))

	for br.remaining() >= 5 {
		frame, err := br.i32()
		if err != nil {
			return err
		}
		state, err := br.u8()
		if err != nil {
			return err
		}
		down := state&1 != 0
		p2 := state>>1 != 0
		time := float64(frame) / r.FPS

		if p2 {
			r.processActionP2(time, buttonFromDown(down), uint32(frame))
			r.extendedP2(down, uint32(frame), 0, 0, 0, 0)
		} else {
			r.processActionP1(time, buttonFromDown(down), uint32(frame))
			r.extendedP1(down, uint32(frame), 0, 0, 0, 0)
		}
	}
	return nil
}

func (r *Replay) parseKdbot(data []byte) error {
	br := newByteReader(data)
	fps, err := br.f32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))

	for br.remaining() >= 6 {
		frame, err := br.i32()
		if err != nil {
			return err
		}
		downB, err := br.u8()
		if err != nil {
			return err
		}
		p2B, err := br.u8()
		if err != nil {
			return err
		}
		down := downB == 1
		p2 := p2B == 1
		time := float64(frame) / r.FPS

		if p2 {
			r.processActionP2(time, buttonFromDown(down), uint32(frame))
			r.extendedP2(down, uint32(frame), 0, 0, 0, 0)
		} else {
			r.processActionP1(time, buttonFromDown(down), uint32(frame))
			r.extendedP1(down, uint32(frame), 0, 0, 0, 0)
		}
	}
	return nil
}

var replayBotMagic = []byte("RPLY")

func (r *Replay) parseReplayBot(data []byte) error {
	if !bytes.HasPrefix(data, replayBotMagic) {
		return fmt.Errorf("%w: old replaybot format does not store frames", ErrInvalidMagic)
	}
	br := newByteReader(data)
	br.seek(4)

	version, err := br.u8()
	if err != nil {
		return err
	}
	if version != 2 {
		return &UnsupportedVersionError{Format: "replaybot", Version: int(version)}
	}
	frameMode, err := br.u8()
	if err != nil {
		return err
	}
	if frameMode != 1 {
		return invalidData("replaybot: only frame replays are supported")
	}

	fps, err := br.f32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))

	for br.remaining() >= 5 {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		state, err := br.u8()
		if err != nil {
			return err
		}
		down := state&0x1 != 0
		p2 := state>>1 != 0
		time := float64(frame) / r.FPS

		if p2 {
			r.processActionP2(time, buttonFromDown(down), frame)
			r.extendedP2(down, frame, 0, 0, 0, 0)
		} else {
			r.processActionP1(time, buttonFromDown(down), frame)
			r.extendedP1(down, frame, 0, 0, 0, 0)
		}
	}
	return nil
}

var ddhorMagic = []byte("DDHR")

func (r *Replay) parseDdhor(data []byte) error {
	if !bytes.HasPrefix(data, ddhorMagic) {
		return fmt.Errorf("%w: ddhor json does not store frames, use an older ddhor version with frame mode", ErrInvalidMagic)
	}
	br := newByteReader(data)
	br.seek(4)

	fps, err := br.i16()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))
	numP1, err := br.i32()
	if err != nil {
		return err
	}
	if _, err := br.i32(); err != nil { // p2 action count, implied by length
		return err
	}

	for i := 0; br.remaining() >= 5; i++ {
		frame, err := br.f32()
		if err != nil {
			return err
		}
		state, err := br.u8()
		if err != nil {
			return err
		}
		down := state == 0
		p2 := i >= int(numP1)
		time := float64(frame) / r.FPS

		if p2 {
			r.processActionP2(time, buttonFromDown(down), uint32(frame))
			r.extendedP2(down, uint32(frame), 0, 0, 0, 0)
		} else {
			r.processActionP1(time, buttonFromDown(down), uint32(frame))
			r.extendedP1(down, uint32(frame), 0, 0, 0, 0)
		}
	}
	return nil
}

const gzipMagic = 0x8B1F

func (r *Replay) parseRbot(data []byte) error {
	br := newByteReader(data)
	if magic, err := br.u16(); err == nil && magic == gzipMagic {
		return r.parseRbotGz(data)
	}
	br.seek(0)

	fps, err := br.u32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))
	numActions, err := br.u32()
	if err != nil {
		return err
	}

	for i := uint32(0); i < numActions; i++ {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		push, err := br.bool()
		if err != nil {
			return err
		}
		p1, err := br.bool()
		if err != nil {
			return err
		}
		time := float64(frame) / r.FPS

		if p1 {
			r.processActionP1(time, buttonFromDown(push), frame)
			r.extendedP1(push, frame, 0, 0, 0, 0)
		} else {
			r.processActionP2(time, buttonFromDown(push), frame)
			r.extendedP2(push, frame, 0, 0, 0, 0)
		}
	}
	return nil
}

func (r *Replay) parseRbotGz(data []byte) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("replay: rbot gzip: %w", err)
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return fmt.Errorf("replay: rbot gzip: %w", err)
	}
	br := newByteReader(raw)

	fps, err := br.u32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))

	numActions, err := br.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < numActions; i++ {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		hold, err := br.bool()
		if err != nil {
			return err
		}
		p2, err := br.bool()
		if err != nil {
			return err
		}
		time := float64(frame) / r.FPS

		if p2 {
			r.processActionP2(time, buttonFromDown(hold), frame)
		} else {
			r.processActionP1(time, buttonFromDown(hold), frame)
		}
	}

	// trailing position table; hold state comes from the action list
	numPositions, err := br.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < numPositions; i++ {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		p2, err := br.bool()
		if err != nil {
			return err
		}
		x, err := br.f32()
		if err != nil {
			return err
		}
		y, err := br.f32()
		if err != nil {
			return err
		}
		rot, err := br.f32()
		if err != nil {
			return err
		}

		hold := false
		if idx, ok := r.findActionByFrame(frame); ok {
			hold = r.Actions[idx].Click.IsClick()
		}

		if p2 {
			r.extendedP2(hold, frame, x, y, 0, rot)
		} else {
			r.extendedP1(hold, frame, x, y, 0, rot)
		}
	}
	return nil
}

// findActionByFrame binary-searches the action list for a frame.
func (r *Replay) findActionByFrame(frame uint32) (int, bool) {
	idx := sort.Search(len(r.Actions), func(i int) bool {
		return r.Actions[i].Frame >= frame
	})
	if idx < len(r.Actions) && r.Actions[idx].Frame == frame {
		return idx, true
	}
	return 0, false
}

const zephyrusMagic = 0x525A

func (r *Replay) parseZephyrus(data []byte) error {
	br := newByteReader(data)
	magic, err := br.u16()
	if err != nil {
		return err
	}
	if magic != zephyrusMagic {
		return fmt.Errorf("%w: zephyrus magic %#x", ErrInvalidMagic, magic)
	}
	version, err := br.u8()
	if err != nil {
		return err
	}
	if version != 2 {
		return &UnsupportedVersionError{Format: "zephyrus", Version: int(version)}
	}
	fps, err := br.u32()
	if err != nil {
		return err
	}
	numActions, err := br.u32()
	if err != nil {
		return err
	}
	numFrameFixes, err := br.u32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))

	for i := uint32(0); i < numActions; i++ {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		flags, err := br.u8()
		if err != nil {
			return err
		}
		player2 := flags&0b10000000 != 0
		push := flags&0b01000000 != 0
		button := buttonFromIndex(int32((flags&0b00110000)>>4), push)
		time := float64(frame) / r.FPS
		if player2 {
			r.processActionP2(time, button, frame)
		} else {
			r.processActionP1(time, button, frame)
		}
	}

	readPlayerData := func() (x, y float32, ySpeed float64, rot float32, err error) {
		if x, err = br.f32(); err != nil {
			return
		}
		if y, err = br.f32(); err != nil {
			return
		}
		if ySpeed, err = br.f64(); err != nil {
			return
		}
		rot, err = br.f32()
		return
	}

	for i := uint32(0); i < numFrameFixes; i++ {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		x1, y1, ySpeed1, rot1, err := readPlayerData()
		if err != nil {
			return err
		}
		p2Exists, err := br.bool()
		if err != nil {
			return err
		}
		var x2, y2, rot2 float32
		var ySpeed2 float64
		if p2Exists {
			if x2, y2, ySpeed2, rot2, err = readPlayerData(); err != nil {
				return err
			}
		}

		push := false
		if idx, ok := r.findActionByFrame(frame); ok {
			push = r.Actions[idx].Click.IsClick()
		}

		r.extendedP1(push, frame, x1, y1, float32(ySpeed1), rot1)
		if p2Exists {
			r.extendedP2(push, frame, x2, y2, float32(ySpeed2), rot2)
		}
	}
	return nil
}

var slc2Magic = []byte("SILL")

func (r *Replay) parseSlc(data []byte) error {
	// a Silicate v2 replay may arrive with a .slc extension
	if bytes.HasPrefix(data, slc2Magic) {
		return r.parseSlc2(data)
	}

	br := newByteReader(data)
	fps, err := br.f64()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(fps)
	numActions, err := br.u32()
	if err != nil {
		return err
	}

	for i := uint32(0); i < numActions; i++ {
		action, err := br.u32()
		if err != nil {
			return err
		}
		// upper 28 bits: frame; bit 3: player 2; bits 1-2: button
		// (1 = click, 2 = left, 3 = right); bit 0: down
		frame := action >> 4
		player2 := action&0b1000 != 0
		down := action&0b0001 != 0
		button := buttonFromIndex(int32((action&0b0110)>>1), down)
		time := float64(frame) / r.FPS
		if player2 {
			r.processActionP2(time, button, frame)
			r.extendedP2(down, frame, 0, 0, 0, 0)
		} else {
			r.processActionP1(time, button, frame)
			r.extendedP1(down, frame, 0, 0, 0, 0)
		}
	}

	if seed, err := br.u64(); err == nil {
		slog.Info("silicate seed", "seed", seed)
	} else {
		slog.Info("silicate: no seed stored in replay")
	}
	return nil
}

// ── ReplayEngine v1/v2/v3 ───────────────────────────────

// ReplayEngine dumps padded C structs: the physics record is 32 bytes
// (frame u32, x/y/rot f32, y-accel f64, player2 byte, 7 pad) and the
// action record is either the old 8-byte layout (frame u32, hold byte,
// player2 byte, 2 pad) or the new 16-byte one with a button field
// (frame u32, hold byte, 3 pad, button i32, player2 byte, 3 pad).

type reFrameData struct {
	frame   uint32
	x       float32
	y       float32
	rot     float32
	yAccel  float64
	player2 bool
}

func (b *byteReader) reFrameData() (reFrameData, error) {
	var fd reFrameData
	var err error
	if fd.frame, err = b.u32(); err != nil {
		return fd, err
	}
	if fd.x, err = b.f32(); err != nil {
		return fd, err
	}
	if fd.y, err = b.f32(); err != nil {
		return fd, err
	}
	if fd.rot, err = b.f32(); err != nil {
		return fd, err
	}
	if fd.yAccel, err = b.f64(); err != nil {
		return fd, err
	}
	if fd.player2, err = b.bool(); err != nil {
		return fd, err
	}
	err = b.skip(7) // struct padding
	return fd, err
}

const (
	reActionSizeOld = 8
	reActionSizeNew = 16
)

func (r *Replay) parseRe(data []byte) error {
	br := newByteReader(data)
	fps, err := br.f32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))
	numFrameDatas, err := br.u32()
	if err != nil {
		return err
	}
	numActions, err := br.u32()
	if err != nil {
		return err
	}

	frameDatas := make([]reFrameData, 0, numFrameDatas)
	for i := uint32(0); i < numFrameDatas; i++ {
		fd, err := br.reFrameData()
		if err != nil {
			return err
		}
		frameDatas = append(frameDatas, fd)
	}

	// two sub-variants of v1 exist; tell them apart by the computed
	// per-action record size
	if numActions == 0 {
		return invalidData("replay-engine: no actions")
	}
	actionSize := br.remaining() / int(numActions)
	slog.Debug("replay-engine action record size", "size", actionSize)
	if actionSize != reActionSizeOld && actionSize != reActionSizeNew {
		return invalidData("replay-engine: unknown action record size %d", actionSize)
	}
	isNew := actionSize == reActionSizeNew

	type reAction struct {
		hold    bool
		button  int32
		player2 bool
	}
	actions := make(map[uint32]reAction, numActions)
	for i := uint32(0); i < numActions; i++ {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		hold, err := br.bool()
		if err != nil {
			return err
		}
		var button int32 = 1
		var player2 bool
		if isNew {
			if err := br.skip(3); err != nil {
				return err
			}
			if button, err = br.i32(); err != nil {
				return err
			}
			if player2, err = br.bool(); err != nil {
				return err
			}
			if err := br.skip(3); err != nil {
				return err
			}
		} else {
			if player2, err = br.bool(); err != nil {
				return err
			}
			if err := br.skip(2); err != nil {
				return err
			}
		}
		actions[frame] = reAction{hold: hold, button: button, player2: player2}
	}

	for _, fd := range frameDatas {
		action := actions[fd.frame] // zero value when no action on this frame
		time := float64(fd.frame) / r.FPS
		button := buttonFromIndex(action.button, action.hold)
		if action.player2 {
			r.processActionP2(time, button, fd.frame)
			r.extendedP2(action.hold, fd.frame, fd.x, fd.y, float32(fd.yAccel), fd.rot)
		} else {
			r.processActionP1(time, button, fd.frame)
			r.extendedP1(action.hold, fd.frame, fd.x, fd.y, float32(fd.yAccel), fd.rot)
		}
	}
	return nil
}

var re2Magic = []byte("RE2")

func (r *Replay) parseRe2(data []byte) error {
	if !bytes.HasPrefix(data, re2Magic) {
		return fmt.Errorf("%w: re2 magic", ErrInvalidMagic)
	}
	br := newByteReader(data)
	br.seek(3)

	// all re2 replays are 240 fps
	r.FPS = r.getFPS(240.0)

	numActions, err := br.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < numActions; i++ {
		frame, err := br.u32()
		if err != nil {
			return err
		}
		hold, err := br.bool()
		if err != nil {
			return err
		}
		if err := br.skip(3); err != nil {
			return err
		}
		button, err := br.i32()
		if err != nil {
			return err
		}
		player2, err := br.bool()
		if err != nil {
			return err
		}
		if err := br.skip(3); err != nil {
			return err
		}

		time := float64(frame) / r.FPS
		b := buttonFromIndex(button, hold)
		if player2 {
			r.processActionP2(time, b, frame)
			r.extendedP2(hold, frame, 0, 0, 0, 0)
		} else {
			r.processActionP1(time, b, frame)
			r.extendedP1(hold, frame, 0, 0, 0, 0)
		}
	}
	return nil
}

func (r *Replay) parseRe3(data []byte) error {
	// like v1, but p1 and p2 physics/action tables are stored
	// separately and have to be merged by frame
	br := newByteReader(data)
	fps, err := br.f32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))

	p1Size, err := br.u32()
	if err != nil {
		return err
	}
	p2Size, err := br.u32()
	if err != nil {
		return err
	}
	p1InputSize, err := br.u32()
	if err != nil {
		return err
	}
	p2InputSize, err := br.u32()
	if err != nil {
		return err
	}

	type reAction struct {
		down   bool
		button int32
	}
	type merged struct {
		p1Frame  *reFrameData
		p2Frame  *reFrameData
		p1Action *reAction
		p2Action *reAction
	}
	var order []uint32
	byFrame := make(map[uint32]*merged)
	at := func(frame uint32) *merged {
		if m, ok := byFrame[frame]; ok {
			return m
		}
		m := &merged{}
		byFrame[frame] = m
		order = append(order, frame)
		return m
	}

	for i := uint32(0); i < p1Size; i++ {
		fd, err := br.reFrameData()
		if err != nil {
			return err
		}
		at(fd.frame).p1Frame = &fd
	}
	for i := uint32(0); i < p2Size; i++ {
		fd, err := br.reFrameData()
		if err != nil {
			return err
		}
		at(fd.frame).p2Frame = &fd
	}

	readAction := func() (uint32, reAction, bool, error) {
		frame, err := br.u32()
		if err != nil {
			return 0, reAction{}, false, err
		}
		down, err := br.bool()
		if err != nil {
			return 0, reAction{}, false, err
		}
		if err := br.skip(3); err != nil {
			return 0, reAction{}, false, err
		}
		button, err := br.i32()
		if err != nil {
			return 0, reAction{}, false, err
		}
		player1, err := br.bool()
		if err != nil {
			return 0, reAction{}, false, err
		}
		if err := br.skip(3); err != nil {
			return 0, reAction{}, false, err
		}
		return frame, reAction{down: down, button: button}, player1, nil
	}

	for i := uint32(0); i < p1InputSize; i++ {
		frame, action, _, err := readAction()
		if err != nil {
			return err
		}
		at(frame).p1Action = &action
	}
	for i := uint32(0); i < p2InputSize; i++ {
		frame, action, _, err := readAction()
		if err != nil {
			return err
		}
		at(frame).p2Action = &action
	}

	// the four chunks are separate; order by frame before processing
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, frame := range order {
		m := byFrame[frame]
		time := float64(frame) / r.FPS

		down := false
		if m.p1Action != nil {
			r.processActionP1(time, buttonFromIndex(m.p1Action.button, m.p1Action.down), frame)
			down = m.p1Action.down
		} else if m.p2Action != nil {
			r.processActionP2(time, buttonFromIndex(m.p2Action.button, m.p2Action.down), frame)
			down = m.p2Action.down
		}

		if m.p1Frame != nil {
			r.extendedP1(down, frame, m.p1Frame.x, m.p1Frame.y, float32(m.p1Frame.yAccel), m.p1Frame.rot)
		}
		if m.p2Frame != nil {
			r.extendedP2(down, frame, m.p2Frame.x, m.p2Frame.y, float32(m.p2Frame.yAccel), m.p2Frame.rot)
		}
	}
	return nil
}

// ── GDMegaOverlay ───────────────────────────────────────

const (
	gdmo22CorrectionFull  = 0x23A8 // includes the full property dump
	gdmo22CorrectionShort = 56
)

// parseGdmo22 parses the 2.2 GDMegaOverlay layout: a count of 16-byte
// action records (time f64, key i32, press byte, player1 byte, 2 pad),
// then a count of correction blocks.
func (r *Replay) parseGdmo22(data []byte) error {
	br := newByteReader(data)
	numActions, err := br.u32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(240.0)

	for i := uint32(0); i < numActions; i++ {
		time, err := br.f64()
		if err != nil {
			return err
		}
		if _, err := br.i32(); err != nil { // key code, unused
			return err
		}
		press, err := br.bool()
		if err != nil {
			return err
		}
		player1, err := br.bool()
		if err != nil {
			return err
		}
		if err := br.skip(2); err != nil {
			return err
		}

		frame := uint32(time * r.FPS)
		if player1 {
			r.processActionP1(time, buttonFromDown(press), frame)
		} else {
			r.processActionP2(time, buttonFromDown(press), frame)
		}
	}

	numCorrections, err := br.u32()
	if err != nil {
		return err
	}
	if numCorrections == 0 {
		return nil
	}
	// both the short and the full correction block start with the same
	// checkpoint header; any other size is rejected
	correctionSize := br.remaining() / int(numCorrections)
	slog.Debug("gdmo correction block size", "size", correctionSize)
	if correctionSize != gdmo22CorrectionFull && correctionSize != gdmo22CorrectionShort {
		return invalidData("gdmo: correction size %d, expected %d or %d",
			correctionSize, gdmo22CorrectionFull, gdmo22CorrectionShort)
	}

	for i := uint32(0); i < numCorrections; i++ {
		start := br.pos
		time, err := br.f64()
		if err != nil {
			return err
		}
		player1, err := br.bool()
		if err != nil {
			return err
		}
		if err := br.skip(7); err != nil { // align to the checkpoint
			return err
		}
		yVel, err := br.f64()
		if err != nil {
			return err
		}
		if _, err := br.f64(); err != nil { // x velocity, unused
			return err
		}
		xPos, err := br.f32()
		if err != nil {
			return err
		}
		yPos, err := br.f32()
		if err != nil {
			return err
		}
		if err := br.skip(8); err != nil { // node positions, unused
			return err
		}
		rotation, err := br.f32()
		if err != nil {
			return err
		}
		if err := br.skip(correctionSize - (br.pos - start)); err != nil {
			return err
		}

		frame := uint32(time * r.FPS)
		push := false
		if idx, ok := r.findActionByFrame(frame); ok {
			push = r.Actions[idx].Click.IsClick()
		}
		if player1 {
			r.extendedP1(push, frame, xPos, yPos, float32(yVel), rotation)
		} else {
			r.extendedP2(push, frame, xPos, yPos, float32(yVel), rotation)
		}
	}

	if br.remaining() != 0 {
		return invalidData("gdmo: %d leftover bytes", br.remaining())
	}
	return nil
}

func (r *Replay) parseGdmo(data []byte) error {
	// try the 2.2 layout first; fall back to the original one
	if err := r.parseGdmo22(data); err == nil {
		return nil
	}
	r.Actions = r.Actions[:0]
	r.Extended = r.Extended[:0]
	r.prevAction = [2]*ClickType{}
	r.prevTime = [2]float64{}

	br := newByteReader(data)
	fps, err := br.f32()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))

	numActions, err := br.u32()
	if err != nil {
		return err
	}
	if _, err := br.u32(); err != nil { // frame capture count, unused
		return err
	}

	// 24-byte action record: press byte, player2 byte, 2 pad,
	// frame u32, y-accel f64, x f32, y f32
	for i := uint32(0); i < numActions; i++ {
		press, err := br.bool()
		if err != nil {
			return err
		}
		player2, err := br.bool()
		if err != nil {
			return err
		}
		if err := br.skip(2); err != nil {
			return err
		}
		frame, err := br.u32()
		if err != nil {
			return err
		}
		yAccel, err := br.f64()
		if err != nil {
			return err
		}
		px, err := br.f32()
		if err != nil {
			return err
		}
		py, err := br.f32()
		if err != nil {
			return err
		}

		time := float64(frame) / r.FPS
		if player2 {
			r.processActionP2(time, buttonFromDown(press), frame)
			r.extendedP2(press, frame, px, py, float32(yAccel), 0)
		} else {
			r.processActionP1(time, buttonFromDown(press), frame)
			r.extendedP1(press, frame, px, py, float32(yAccel), 0)
		}
	}
	return nil
}

// ── uvBot ───────────────────────────────────────────────

var (
	uvBotMagic    = []byte("UVBOT")
	uvBotTrailing = []byte("TOBVU")
)

func (r *Replay) parseUvBot(data []byte) error {
	br := newByteReader(data)
	magic, err := br.bytes(5)
	if err != nil {
		return err
	}
	if !bytes.Equal(magic, uvBotMagic) {
		return fmt.Errorf("%w: uvbot magic", ErrInvalidMagic)
	}
	version, err := br.u8()
	if err != nil {
		return err
	}
	if version != 1 && version != 2 {
		return &UnsupportedVersionError{Format: "uvbot", Version: int(version)}
	}
	if version == 1 {
		r.FPS = r.getFPS(240.0)
	} else {
		tps, err := br.f32()
		if err != nil {
			return err
		}
		r.FPS = r.getFPS(float64(tps))
	}

	type uvInput struct {
		player2 bool
		button  Button
	}
	type uvPhysics struct {
		x, y, rot float32
		yVelocity float64
	}
	type uvAction struct {
		input     *uvInput
		p1Physics *uvPhysics
		p2Physics *uvPhysics
	}
	var order []uint64
	byFrame := make(map[uint64]*uvAction)
	at := func(frame uint64) *uvAction {
		if a, ok := byFrame[frame]; ok {
			return a
		}
		a := &uvAction{}
		byFrame[frame] = a
		order = append(order, frame)
		return a
	}

	numInputs, err := br.i32()
	if err != nil {
		return err
	}
	numP1Physics, err := br.i32()
	if err != nil {
		return err
	}
	numP2Physics, err := br.i32()
	if err != nil {
		return err
	}

	for i := int32(0); i < numInputs; i++ {
		frame, err := br.u64()
		if err != nil {
			return err
		}
		flags, err := br.u8()
		if err != nil {
			return err
		}
		hold := flags&1 != 0
		button := (flags >> 1) % 3
		player2 := flags>>1 > 2

		var b Button
		switch button {
		case 1:
			b = buttonFromLeftDown(hold)
		case 2:
			b = buttonFromRightDown(hold)
		default:
			b = buttonFromDown(hold)
		}
		at(frame).input = &uvInput{player2: player2, button: b}
	}

	readPhysics := func() (uint64, uvPhysics, error) {
		var p uvPhysics
		frame, err := br.u64()
		if err != nil {
			return 0, p, err
		}
		if p.x, err = br.f32(); err != nil {
			return 0, p, err
		}
		if p.y, err = br.f32(); err != nil {
			return 0, p, err
		}
		if p.rot, err = br.f32(); err != nil {
			return 0, p, err
		}
		if p.yVelocity, err = br.f64(); err != nil {
			return 0, p, err
		}
		return frame, p, nil
	}

	for i := int32(0); i < numP1Physics; i++ {
		frame, p, err := readPhysics()
		if err != nil {
			return err
		}
		at(frame).p1Physics = &p
	}
	for i := int32(0); i < numP2Physics; i++ {
		frame, p, err := readPhysics()
		if err != nil {
			return err
		}
		at(frame).p2Physics = &p
	}

	trailing, err := br.bytes(5)
	if err != nil {
		return err
	}
	if !bytes.Equal(trailing, uvBotTrailing) {
		return fmt.Errorf("%w: uvbot trailing magic", ErrInvalidMagic)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, frame := range order {
		a := byFrame[frame]
		time := float64(frame) / r.FPS

		down := a.input != nil && a.input.button.IsDown()
		if a.input != nil {
			if a.input.player2 {
				r.processActionP2(time, a.input.button, uint32(frame))
			} else {
				r.processActionP1(time, a.input.button, uint32(frame))
			}
		}
		if a.p1Physics != nil {
			r.extendedP1(down, uint32(frame), a.p1Physics.x, a.p1Physics.y, float32(a.p1Physics.yVelocity), a.p1Physics.rot)
		}
		if a.p2Physics != nil {
			r.extendedP2(down, uint32(frame), a.p2Physics.x, a.p2Physics.y, float32(a.p2Physics.yVelocity), a.p2Physics.rot)
		}
	}
	return nil
}
