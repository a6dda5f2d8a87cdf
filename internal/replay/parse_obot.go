package replay

import (
	"bytes"
	"fmt"
	"log/slog"
)

// OmegaBot and qBot replays are serialized structs rather than flat
// action tables. OmegaBot 2 uses a fixed-width layout (little-endian
// scalars, u32 enum tags, u64 sequence lengths); OmegaBot 3 and qBot
// share a compact layout (LEB128 varints for integers, tags and
// lengths, little-endian floats, single-byte bools and option tags).
// The .replay extension is polymorphic: ReplayBot, OmegaBot 2 and
// OmegaBot 3 all use it, so parsing probes each schema in turn.

// obot2 click_type tags
const (
	obot2None = iota
	obot2FpsChange
	obot2Player1Down
	obot2Player1Up
	obot2Player2Down
	obot2Player2Up
)

// parseObot handles .replay files: ReplayBot (by magic), then
// OmegaBot 2, then OmegaBot 3.
func (r *Replay) parseObot(data []byte) error {
	if bytes.HasPrefix(data, replayBotMagic) {
		return r.parseReplayBot(data)
	}
	if err := r.parseObot2(data); err == nil {
		return nil
	} else {
		slog.Debug("obot2 schema probe failed", "error", err)
	}
	return r.parseObot3(data)
}

func (r *Replay) parseObot2(data []byte) error {
	br := newByteReader(data)

	initialFPS, err := br.f32()
	if err != nil {
		return fmt.Errorf("%w: obot2: %w", ErrSchemaMismatch, err)
	}
	if _, err := br.f32(); err != nil { // current fps
		return fmt.Errorf("%w: obot2: %w", ErrSchemaMismatch, err)
	}
	replayType, err := br.u32()
	if err != nil || replayType > 1 {
		return fmt.Errorf("%w: obot2: bad replay type tag", ErrSchemaMismatch)
	}
	if _, err := br.u64(); err != nil { // current click index
		return fmt.Errorf("%w: obot2: %w", ErrSchemaMismatch, err)
	}
	numClicks, err := br.u64()
	if err != nil || numClicks > uint64(br.remaining()) {
		return fmt.Errorf("%w: obot2: implausible click count", ErrSchemaMismatch)
	}

	// replay type 0 is x-position mode, which stores no frames
	if replayType == 0 {
		return invalidData("obot2: xpos replays are not supported, they don't store frames")
	}

	type obot2Click struct {
		hasFrame  bool
		frame     uint32
		clickType uint32
		fps       float32
	}
	clicks := make([]obot2Click, 0, numClicks)
	for i := uint64(0); i < numClicks; i++ {
		var c obot2Click
		locTag, err := br.u32()
		if err != nil || locTag > 1 {
			return fmt.Errorf("%w: obot2: bad location tag", ErrSchemaMismatch)
		}
		if locTag == 1 {
			c.hasFrame = true
			if c.frame, err = br.u32(); err != nil {
				return fmt.Errorf("%w: obot2: %w", ErrSchemaMismatch, err)
			}
		}
		if c.clickType, err = br.u32(); err != nil || c.clickType > obot2Player2Up {
			return fmt.Errorf("%w: obot2: bad click type tag", ErrSchemaMismatch)
		}
		if c.clickType == obot2FpsChange {
			if c.fps, err = br.f32(); err != nil {
				return fmt.Errorf("%w: obot2: %w", ErrSchemaMismatch, err)
			}
		}
		clicks = append(clicks, c)
	}
	if br.remaining() != 0 {
		return fmt.Errorf("%w: obot2: trailing data", ErrSchemaMismatch)
	}

	r.FPS = r.getFPS(float64(initialFPS))

	for _, c := range clicks {
		if c.clickType == obot2FpsChange {
			r.FPS = r.getFPS(float64(c.fps))
			r.fpsChange(float64(c.fps))
			continue
		}
		if !c.hasFrame {
			slog.Warn("obot2: xpos action in frame replay, skipping")
			continue
		}
		time := float64(c.frame) / r.FPS
		switch c.clickType {
		case obot2Player1Down:
			r.processActionP1(time, buttonFromDown(true), c.frame)
			r.extendedP1(true, c.frame, 0, 0, 0, 0)
		case obot2Player1Up:
			r.processActionP1(time, buttonFromDown(false), c.frame)
			r.extendedP1(false, c.frame, 0, 0, 0, 0)
		case obot2Player2Down:
			r.processActionP2(time, buttonFromDown(true), c.frame)
			r.extendedP2(true, c.frame, 0, 0, 0, 0)
		case obot2Player2Up:
			r.processActionP2(time, buttonFromDown(false), c.frame)
			r.extendedP2(false, c.frame, 0, 0, 0, 0)
		}
	}
	return nil
}

// obot3 click_type tags
const (
	obot3None = iota
	obot3Player1Down
	obot3Player1Up
	obot3Player2Down
	obot3Player2Up
	obot3FpsChange
)

func (r *Replay) parseObot3(data []byte) error {
	br := newByteReader(data)

	initialFPS, err := br.f32()
	if err != nil {
		return fmt.Errorf("%w: obot3: %w", ErrSchemaMismatch, err)
	}
	if _, err := br.f32(); err != nil { // current fps
		return fmt.Errorf("%w: obot3: %w", ErrSchemaMismatch, err)
	}
	numClicks, err := br.uvarint()
	if err != nil || numClicks > uint64(br.remaining()) {
		return fmt.Errorf("%w: obot3: implausible click count", ErrSchemaMismatch)
	}

	r.FPS = r.getFPS(float64(initialFPS))

	for i := uint64(0); i < numClicks; i++ {
		frame64, err := br.uvarint()
		if err != nil {
			return fmt.Errorf("%w: obot3: %w", ErrSchemaMismatch, err)
		}
		frame := uint32(frame64)
		tag, err := br.uvarint()
		if err != nil || tag > obot3FpsChange {
			return fmt.Errorf("%w: obot3: bad click type tag", ErrSchemaMismatch)
		}

		time := float64(frame) / r.FPS
		switch tag {
		case obot3Player1Down:
			r.processActionP1(time, buttonFromDown(true), frame)
			r.extendedP1(true, frame, 0, 0, 0, 0)
		case obot3Player1Up:
			r.processActionP1(time, buttonFromDown(false), frame)
			r.extendedP1(false, frame, 0, 0, 0, 0)
		case obot3Player2Down:
			r.processActionP2(time, buttonFromDown(true), frame)
			r.extendedP2(true, frame, 0, 0, 0, 0)
		case obot3Player2Up:
			r.processActionP2(time, buttonFromDown(false), frame)
			r.extendedP2(false, frame, 0, 0, 0, 0)
		case obot3FpsChange:
			fps, err := br.f32()
			if err != nil {
				return fmt.Errorf("%w: obot3: %w", ErrSchemaMismatch, err)
			}
			r.FPS = r.getFPS(float64(fps))
			r.fpsChange(float64(fps))
		}
	}
	return nil
}

// qbot action tags
const (
	qbotActionButton = iota
	qbotActionFPS
)

// parseQbot parses qBot .qb replays, which use the same compact layout
// as OmegaBot 3 but carry physics per click.
func (r *Replay) parseQbot(data []byte) error {
	br := newByteReader(data)

	initialFPS, err := br.f32()
	if err != nil {
		return err
	}
	if _, err := br.f32(); err != nil { // current fps
		return err
	}
	if _, err := br.uvarint(); err != nil { // click index
		return err
	}
	numClicks, err := br.uvarint()
	if err != nil {
		return err
	}
	if numClicks > uint64(br.remaining()) {
		return invalidData("qbot: implausible click count %d", numClicks)
	}

	r.FPS = r.getFPS(float64(initialFPS))

	for i := uint64(0); i < numClicks; i++ {
		frame64, err := br.uvarint()
		if err != nil {
			return err
		}
		frame := uint32(frame64)
		clickTime, err := br.f64()
		if err != nil {
			return err
		}

		actionTag, err := br.uvarint()
		if err != nil {
			return err
		}
		var isP2, push bool
		var buttonIdx int32
		var newFPS float32
		switch actionTag {
		case qbotActionButton:
			if isP2, err = br.bool(); err != nil {
				return err
			}
			if push, err = br.bool(); err != nil {
				return err
			}
			buttonTag, err := br.uvarint()
			if err != nil || buttonTag > 2 {
				return invalidData("qbot: bad button tag")
			}
			buttonIdx = int32(buttonTag) + 1 // 1 = jump, 2 = left, 3 = right
		case qbotActionFPS:
			if newFPS, err = br.f32(); err != nil {
				return err
			}
		default:
			return invalidData("qbot: bad action tag %d", actionTag)
		}

		if _, err := br.f64(); err != nil { // x velocity, unused
			return err
		}
		yVel, err := br.f64()
		if err != nil {
			return err
		}

		var x, y, rotate float32
		hasPosition, err := br.bool()
		if err != nil {
			return err
		}
		if hasPosition {
			if x, err = br.f32(); err != nil {
				return err
			}
			if y, err = br.f32(); err != nil {
				return err
			}
			if rotate, err = br.f32(); err != nil {
				return err
			}
		}

		if actionTag == qbotActionFPS {
			r.FPS = r.getFPS(float64(newFPS))
			r.fpsChange(float64(newFPS))
			continue
		}

		time := clickTime
		if time == 0 {
			time = float64(frame) / r.FPS
		}
		b := buttonFromIndex(buttonIdx, push)
		if isP2 {
			r.processActionP2(time, b, frame)
			r.extendedP2(push, frame, x, y, float32(yVel), rotate)
		} else {
			r.processActionP1(time, b, frame)
			r.extendedP1(push, frame, x, y, float32(yVel), rotate)
		}
	}
	return nil
}
