package replay

import (
	"bytes"
	"fmt"
)

// TCBot .tcm files: "TCM" magic, a varint version, the tick rate, then
// a varint-counted input stream. Each input carries a varint frame and
// a tagged payload: a vanilla player event (push/player/button packed
// in a flag byte), a mid-stream tick-rate change, or a restart marker.

var tcmMagic = []byte("TCM")

const (
	tcmInputVanilla = iota
	tcmInputTPS
	tcmInputRestart
)

func (r *Replay) parseTcm(data []byte) error {
	if !bytes.HasPrefix(data, tcmMagic) {
		return fmt.Errorf("%w: tcm magic", ErrInvalidMagic)
	}
	br := newByteReader(data)
	br.seek(len(tcmMagic))

	version, err := br.uvarint()
	if err != nil {
		return err
	}
	if version != 1 {
		return &UnsupportedVersionError{Format: "tcm", Version: int(version)}
	}

	tps, err := br.f64()
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(tps)

	numInputs, err := br.uvarint()
	if err != nil {
		return err
	}
	if numInputs > uint64(br.remaining()) {
		return invalidData("tcm: implausible input count %d", numInputs)
	}

	for i := uint64(0); i < numInputs; i++ {
		frame, err := br.uvarint()
		if err != nil {
			return err
		}
		tag, err := br.uvarint()
		if err != nil {
			return err
		}
		time := float64(frame) / r.FPS

		switch tag {
		case tcmInputVanilla:
			flags, err := br.u8()
			if err != nil {
				return err
			}
			push := flags&1 != 0
			player2 := flags&2 != 0
			button := buttonFromIndex(int32(flags>>2), push)
			if player2 {
				r.processActionP2(time, button, uint32(frame))
				r.extendedP2(push, uint32(frame), 0, 0, 0, 0)
			} else {
				r.processActionP1(time, button, uint32(frame))
				r.extendedP1(push, uint32(frame), 0, 0, 0, 0)
			}
		case tcmInputTPS:
			newTPS, err := br.f64()
			if err != nil {
				return err
			}
			r.FPS = r.getFPS(newTPS)
			r.fpsChange(newTPS)
		case tcmInputRestart:
			if r.discardDeaths {
				r.Actions = r.Actions[:0]
				r.Extended = r.Extended[:0]
			}
		default:
			return invalidData("tcm: unknown input tag %d", tag)
		}
	}
	return nil
}
