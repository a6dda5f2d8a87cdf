package replay

import (
	"bytes"
	"fmt"
	"log/slog"
)

// Silicate v2 .slc2 files: "SILL" magic, tick rate, a fixed 64-byte
// metadata block (seed + reserved bytes), then a count-prefixed input
// stream. Inputs are either player events (hold/player/button packed
// in a flag byte), mid-stream tick-rate changes, or restart/death
// markers used by discard-deaths mode.

const slc2MetaSize = 64

// slc2 input kinds
const (
	slc2InputPlayer = iota
	slc2InputTPS
	slc2InputRestart
	slc2InputRestartFull
	slc2InputDeath
)

func (r *Replay) parseSlc2(data []byte) error {
	if !bytes.HasPrefix(data, slc2Magic) {
		return fmt.Errorf("%w: slc2 magic", ErrInvalidMagic)
	}
	br := newByteReader(data)
	br.seek(len(slc2Magic))

	tps, err := br.f64()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(tps)

	seed, err := br.u64()
	if err != nil {
		return err
	}
	slog.Info("slc2 replay", "tps", tps, "seed", seed)
	if err := br.skip(slc2MetaSize - 8); err != nil { // reserved
		return err
	}

	numInputs, err := br.u64()
	if err != nil {
		return err
	}
	if numInputs > uint64(br.remaining()) {
		return invalidData("slc2: implausible input count %d", numInputs)
	}

	type slc2Input struct {
		frame uint64
		kind  uint8
		flags uint8
		tps   float64
	}
	inputs := make([]slc2Input, 0, numInputs)
	for i := uint64(0); i < numInputs; i++ {
		var in slc2Input
		if in.frame, err = br.u64(); err != nil {
			return err
		}
		if in.kind, err = br.u8(); err != nil {
			return err
		}
		switch in.kind {
		case slc2InputPlayer:
			if in.flags, err = br.u8(); err != nil {
				return err
			}
		case slc2InputTPS:
			if in.tps, err = br.f64(); err != nil {
				return err
			}
		case slc2InputRestart, slc2InputRestartFull, slc2InputDeath:
		default:
			return invalidData("slc2: unknown input kind %d", in.kind)
		}
		inputs = append(inputs, in)
	}

	// discard everything before the last restart/death marker
	start := 0
	if r.discardDeaths {
		for i := len(inputs) - 1; i >= 0; i-- {
			switch inputs[i].kind {
			case slc2InputRestart, slc2InputRestartFull, slc2InputDeath:
				start = i
			}
			if start != 0 {
				break
			}
		}
	}

	for _, in := range inputs[start:] {
		time := float64(in.frame) / r.FPS
		switch in.kind {
		case slc2InputTPS:
			r.FPS = r.getFPS(in.tps)
			r.fpsChange(in.tps)
		case slc2InputPlayer:
			hold := in.flags&1 != 0
			player2 := in.flags&2 != 0
			button := buttonFromIndex(int32(in.flags>>2), hold)
			if player2 {
				r.processActionP2(time, button, uint32(in.frame))
				r.extendedP2(hold, uint32(in.frame), 0, 0, 0, 0)
			} else {
				r.processActionP1(time, button, uint32(in.frame))
				r.extendedP1(hold, uint32(in.frame), 0, 0, 0, 0)
			}
		}
	}
	return nil
}
