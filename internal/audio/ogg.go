package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	concentus "github.com/lostromb/concentus/go/opus"
)

// Minimal Ogg page walker for Opus-in-Ogg files. Only the packet
// framing is implemented: pages are read sequentially, segment lacing
// values are joined into packets, and the two header packets (OpusHead,
// OpusTags) are consumed before handing audio packets to Concentus.

var oggCapture = [4]byte{'O', 'g', 'g', 'S'}

// oggPackets reads every complete packet from an Ogg stream in order.
// Packets spanning page boundaries are reassembled.
func oggPackets(r io.Reader) ([][]byte, error) {
	var packets [][]byte
	var partial []byte

	var header [27]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				return packets, nil
			}
			return nil, fmt.Errorf("ogg: page header: %w", err)
		}
		if *(*[4]byte)(header[0:4]) != oggCapture {
			return nil, fmt.Errorf("ogg: bad capture pattern")
		}
		numSegments := int(header[26])
		lacing := make([]byte, numSegments)
		if _, err := io.ReadFull(r, lacing); err != nil {
			return nil, fmt.Errorf("ogg: lacing values: %w", err)
		}

		for _, l := range lacing {
			data := make([]byte, l)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("ogg: segment data: %w", err)
			}
			partial = append(partial, data...)
			// a lacing value < 255 terminates the packet
			if l < 255 {
				packets = append(packets, partial)
				partial = nil
			}
		}
	}
}

// decodeOggOpus decodes an Ogg-encapsulated Opus stream to stereo
// float32 PCM at 48 kHz.
func decodeOggOpus(r io.Reader) (*Segment, error) {
	packets, err := oggPackets(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedCodec, err)
	}
	if len(packets) < 2 || !bytes.HasPrefix(packets[0], []byte("OpusHead")) {
		return nil, fmt.Errorf("%w: missing OpusHead", ErrUnsupportedCodec)
	}

	head := packets[0]
	if len(head) < 10 {
		return nil, fmt.Errorf("%w: short OpusHead", ErrUnsupportedCodec)
	}
	channels := int(head[9])
	if channels < 1 || channels > 2 {
		return nil, ErrUnsupportedChannels
	}
	preSkip := int(binary.LittleEndian.Uint16(head[10:12]))

	// Opus always decodes at 48 kHz regardless of the original input
	// rate recorded in the header.
	const rate = 48000
	dec, err := concentus.NewOpusDecoder(rate, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: create opus decoder: %w", ErrUnsupportedCodec, err)
	}

	seg := &Segment{SampleRate: rate}
	pcm16 := make([]int16, 5760*2)
	for _, packet := range packets[2:] { // skip OpusHead + OpusTags
		if len(packet) == 0 {
			continue
		}
		n, err := dec.Decode(packet, 0, len(packet), pcm16, 0, 5760, false)
		if err != nil {
			continue
		}
		appendOpusFrames(seg, pcm16, n)
	}

	if preSkip > 0 && preSkip < len(seg.Frames) {
		seg.Frames = seg.Frames[preSkip:]
	}
	return seg, nil
}
