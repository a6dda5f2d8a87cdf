package replay

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// yBot 2 .ybot files: a small container with a fixed-offset metadata
// block and optional blobs, followed by a varint-packed action stream.
// Each action packs (frameDelta << 4) | flags, where flags are
// p1 (bit 0), push (bit 1) and button (bits 2-3, 1 = jump, 2 = left,
// 3 = right); the all-ones flag value marks an FPS change whose new
// value follows as a little-endian f32.

var ybot2Magic = []byte("ybot")

const ybot2HeaderLen = 16 // magic, version, meta length, blob count

// metadata field offsets within the meta block
const (
	ybot2MetaDate         = 0  // i64: unix timestamp of recording
	ybot2MetaPresses      = 8  // u64: presses in the level
	ybot2MetaFrames       = 16 // u64: frames in the level
	ybot2MetaFPS          = 24 // f32
	ybot2MetaTotalPresses = 28 // u64: total presses while botting
)

const ybot2FlagFPS = 0b1111

func (r *Replay) parseYbot2(data []byte) error {
	if !bytes.HasPrefix(data, ybot2Magic) {
		return fmt.Errorf("%w: ybot2 magic", ErrInvalidMagic)
	}
	br := newByteReader(data)
	br.seek(4)

	version, err := br.u32()
	if err != nil {
		return err
	}
	metaLength, err := br.u32()
	if err != nil {
		return err
	}
	numBlobs, err := br.u32()
	if err != nil {
		return err
	}

	meta := newByteReader(data)
	readMetaF32 := func(offset uint32) (float32, error) {
		if offset+4 > metaLength {
			return float32(math.NaN()), nil // absent fields read as unset
		}
		meta.seek(ybot2HeaderLen + int(offset))
		return meta.f32()
	}
	readMetaU64 := func(offset uint32) (uint64, error) {
		if offset+8 > metaLength {
			return 0, nil
		}
		meta.seek(ybot2HeaderLen + int(offset))
		return meta.u64()
	}

	fps, err := readMetaF32(ybot2MetaFPS)
	if err != nil {
		return err
	}
	r.FPS = r.getFPS(float64(fps))

	presses, _ := readMetaU64(ybot2MetaPresses)
	frames, _ := readMetaU64(ybot2MetaFrames)
	date, _ := readMetaU64(ybot2MetaDate)
	slog.Info("ybot2 replay",
		"version", version, "presses", presses, "frames", frames,
		"fps", r.FPS, "created", time.Unix(int64(date), 0).UTC())

	// skip metadata and blobs to find the action stream
	if err := br.skip(int(metaLength)); err != nil {
		return err
	}
	for i := uint32(0); i < numBlobs; i++ {
		blobLen, err := br.u32()
		if err != nil {
			return err
		}
		if err := br.skip(int(blobLen)); err != nil {
			return err
		}
	}

	var frame uint64
	for br.remaining() > 0 {
		val, err := br.uvarint()
		if err != nil {
			return err
		}
		flags := val & 0b1111
		frame += val >> 4

		if flags == ybot2FlagFPS {
			newFPS, err := br.f32()
			if err != nil {
				return err
			}
			r.FPS = r.getFPS(float64(newFPS))
			r.fpsChange(float64(newFPS))
			continue
		}

		p1 := flags&1 != 0
		push := flags&2 != 0
		buttonIdx := int32(flags >> 2)
		if buttonIdx < 1 || buttonIdx > 3 {
			return invalidData("ybot2: bad button %d", buttonIdx)
		}

		time := float64(frame) / r.FPS
		b := buttonFromIndex(buttonIdx, push)
		if p1 {
			r.processActionP1(time, b, uint32(frame))
			r.extendedP1(push, uint32(frame), 0, 0, 0, 0)
		} else {
			r.processActionP2(time, b, uint32(frame))
			r.extendedP2(push, uint32(frame), 0, 0, 0, 0)
		}
	}
	return nil
}
