package replay

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz/lzma"
)

// osu! .osr replays: a header of LEB128-length-prefixed strings, a mods
// bitfield that rescales time, and an LZMA-compressed body of
// "delta|x|y|keybits" entries.
// https://osu.ppy.sh/wiki/en/Client/File_formats/osr_%28file_format%29

const (
	osrStringTag = 0x0B
	osrModDT     = 1 << 6 // double time: 1.5x speed
	osrModHT     = 1 << 8 // half time: 0.75x speed
	osrRNGSeed   = -12345 // delta value reserved for the replay seed
)

func (r *Replay) parseOsr(data []byte) error {
	br := newByteReader(data)
	r.FPS = r.getFPS(1000.0)

	// game mode (1) + version (4), then three optional strings:
	// beatmap hash, player name, replay hash
	br.seek(5)
	for i := 0; i < 3; i++ {
		if err := br.skipOsrString(); err != nil {
			return err
		}
	}

	if err := br.skip(19); err != nil { // 300/100/50/geki/katu/miss/score/combo/FC
		return err
	}
	mods, err := br.i32()
	if err != nil {
		return err
	}
	speed := 1.0
	if mods&osrModDT != 0 {
		speed = 1.5
	} else if mods&osrModHT != 0 {
		speed = 0.75
	}

	if err := br.skipOsrString(); err != nil { // life graph
		return err
	}
	if err := br.skip(8); err != nil { // timestamp
		return err
	}

	dataLen, err := br.u32()
	if err != nil {
		return err
	}
	body, err := br.bytes(int(dataLen))
	if err != nil {
		return err
	}

	decompressed, err := decompressLZMA(body)
	if err != nil {
		return fmt.Errorf("replay: osr body: %w", err)
	}

	var currentTime int64
	for _, entry := range strings.Split(string(decompressed), ",") {
		params := strings.Split(entry, "|")
		if len(params) != 4 {
			continue // usually the trailing empty entry
		}
		delta, err := strconv.ParseInt(params[0], 10, 64)
		if err != nil {
			return invalidData("osr: bad time delta: %v", err)
		}
		if delta == osrRNGSeed {
			continue
		}
		currentTime += delta
		time := float64(currentTime) / r.FPS / speed

		keys, err := strconv.ParseInt(params[3], 10, 32)
		if err != nil {
			return invalidData("osr: bad key bits: %v", err)
		}

		// bit 0 = M1, bit 1 = M2; treat M1 as player 1 and M2 as
		// player 2
		p1Down := keys&(1<<0) != 0
		p2Down := keys&(1<<1) != 0
		frame := uint32(time * r.FPS)
		r.processActionP1(time, buttonFromDown(p1Down), frame)
		r.processActionP2(time, buttonFromDown(p2Down), frame)
		r.extendedP1(p1Down, frame, 0, 0, 0, 0)
		r.extendedP2(p2Down, frame, 0, 0, 0, 0)
	}
	return nil
}

// skipOsrString skips one optional .osr string: a presence tag byte,
// then a LEB128 length and that many bytes.
func (b *byteReader) skipOsrString() error {
	tag, err := b.u8()
	if err != nil {
		return err
	}
	if tag != osrStringTag {
		return nil
	}
	n, err := b.uvarint()
	if err != nil {
		return err
	}
	return b.skip(int(n))
}

// decompressLZMA inflates the replay body, which is LZMA-compressed
// (older clients) or LZMA2-compressed.
func decompressLZMA(body []byte) ([]byte, error) {
	if lr, err := lzma.NewReader(bytes.NewReader(body)); err == nil {
		if out, err := io.ReadAll(lr); err == nil {
			return out, nil
		}
	}
	lr2, err := lzma.NewReader2(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(lr2)
}
