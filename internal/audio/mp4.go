package audio

import (
	"fmt"
	"io"
	"log/slog"

	gomp4 "github.com/abema/go-mp4"
	concentus "github.com/lostromb/concentus/go/opus"
	aacdecoder "github.com/skrashevich/go-aac/pkg/decoder"
)

// MP4 audio extraction:
//  1. Parse the MP4 container (abema/go-mp4)
//  2. Detect the audio codec (AAC or Opus) from the stsd box entries
//  3. Decode every audio sample → stereo float32 PCM
//     - AAC:  skrashevich/go-aac
//     - Opus: lostromb/concentus (pure Go, SILK + CELT)
//
// All dependencies are pure Go — no CGo, no ffmpeg.

// mp4Codec identifies the audio coding format inside the MP4.
type mp4Codec int

const (
	mp4CodecUnknown mp4Codec = iota
	mp4CodecAAC
	mp4CodecOpus
)

// detectMP4Codec walks the MP4 box tree to see whether the audio sample
// description uses mp4a (AAC) or Opus. go-mp4's Probe only tags mp4a as
// CodecMP4A and leaves Opus/AC-3/etc. as CodecUnknown, so we look at
// the actual stsd children ourselves.
func detectMP4Codec(rs io.ReadSeeker) mp4Codec {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return mp4CodecUnknown
	}

	codec := mp4CodecUnknown
	_, _ = gomp4.ReadBoxStructure(rs, func(h *gomp4.ReadHandle) (interface{}, error) {
		if codec != mp4CodecUnknown {
			return nil, nil // already found
		}
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeMp4a():
			codec = mp4CodecAAC
			return nil, nil
		case gomp4.BoxTypeOpus():
			codec = mp4CodecOpus
			return nil, nil
		case gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(),
			gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd():
			// Only expand known container boxes — never mdat (raw media data).
			_, _ = h.Expand()
		}
		return nil, nil
	})
	return codec
}

// decodeMP4 parses an MP4/M4A file, detects the audio codec, decodes
// the whole audio track, and returns stereo float32 PCM.
func decodeMP4(rs io.ReadSeeker) (*Segment, error) {
	info, err := gomp4.Probe(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: mp4 probe: %w", ErrUnsupportedCodec, err)
	}

	codec := detectMP4Codec(rs)

	track, err := findMP4AudioTrack(info, codec)
	if err != nil {
		return nil, err
	}

	sampleRate := uint32(track.Timescale)

	switch codec {
	case mp4CodecAAC:
		return decodeMP4AAC(rs, track, sampleRate)
	case mp4CodecOpus:
		return decodeMP4Opus(rs, track, sampleRate)
	default:
		return nil, fmt.Errorf("%w: mp4 audio codec not recognized", ErrUnsupportedCodec)
	}
}

// findMP4AudioTrack picks the best audio track from the probe results.
func findMP4AudioTrack(info *gomp4.ProbeInfo, codec mp4Codec) (*gomp4.Track, error) {
	if codec == mp4CodecAAC {
		for _, t := range info.Tracks {
			if t.Codec == gomp4.CodecMP4A {
				return t, nil
			}
		}
	}

	// Fallback: any non-video track with samples and an audio-looking
	// timescale. Video tracks use timescales like 600 or 24000.
	for _, t := range info.Tracks {
		if t.Codec == gomp4.CodecAVC1 {
			continue
		}
		if len(t.Samples) == 0 || len(t.Chunks) == 0 {
			continue
		}
		if isAudioTimescale(t.Timescale) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: no audio track in mp4 (%d tracks)", ErrUnsupportedCodec, len(info.Tracks))
}

// isAudioTimescale returns true if the timescale matches a standard
// audio sample rate (8 kHz – 96 kHz).
func isAudioTimescale(ts uint32) bool {
	switch ts {
	case 8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000:
		return true
	}
	return false
}

// ── AAC decoding ────────────────────────────────────────

func decodeMP4AAC(rs io.ReadSeeker, track *gomp4.Track, sampleRate uint32) (*Segment, error) {
	asc, err := audioSpecificConfig(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedCodec, err)
	}

	dec := aacdecoder.New()
	if err := dec.SetASC(asc); err != nil {
		return nil, fmt.Errorf("%w: set ASC: %w", ErrUnsupportedCodec, err)
	}

	if dec.Config.SampleRate > 0 {
		sampleRate = uint32(dec.Config.SampleRate)
	}
	channels := dec.Config.ChanConfig
	if channels < 1 {
		channels = 1
	}
	if channels > 2 {
		return nil, ErrUnsupportedChannels
	}

	locs := mp4SampleLocations(track)

	seg := &Segment{SampleRate: sampleRate}
	var maxRawSize uint32
	for _, loc := range locs {
		if loc.size > maxRawSize {
			maxRawSize = loc.size
		}
	}
	rawBuf := make([]byte, maxRawSize)

	for _, loc := range locs {
		if _, err := rs.Seek(int64(loc.offset), io.SeekStart); err != nil {
			continue
		}
		raw := rawBuf[:loc.size]
		if _, err := io.ReadFull(rs, raw); err != nil {
			continue
		}
		pcm, err := dec.DecodeFrame(raw)
		if err != nil {
			slog.Debug("skipping undecodable AAC frame", "error", err)
			continue
		}
		frameLen := len(pcm) / channels
		for i := 0; i < frameLen; i++ {
			if channels == 1 {
				seg.Frames = append(seg.Frames, Mono(pcm[i]))
			} else {
				seg.Frames = append(seg.Frames, Frame{Left: pcm[i*2], Right: pcm[i*2+1]})
			}
		}
	}

	return seg, nil
}

// audioSpecificConfig searches the MP4 for an esds descriptor containing
// the AudioSpecificConfig bytes needed by the AAC decoder.
func audioSpecificConfig(rs io.ReadSeeker) ([]byte, error) {
	paths := []gomp4.BoxPath{
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeEsds()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeWave(), gomp4.BoxTypeEsds()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeEnca(), gomp4.BoxTypeEsds()},
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	bips, err := gomp4.ExtractBoxesWithPayload(rs, nil, paths)
	if err != nil {
		return nil, fmt.Errorf("extract esds: %w", err)
	}

	for _, bip := range bips {
		if bip.Info.Type != gomp4.BoxTypeEsds() {
			continue
		}
		esds, ok := bip.Payload.(*gomp4.Esds)
		if !ok {
			continue
		}
		for _, desc := range esds.Descriptors {
			if desc.Tag == gomp4.DecSpecificInfoTag && len(desc.Data) >= 2 {
				return desc.Data, nil
			}
		}
	}

	return nil, fmt.Errorf("AudioSpecificConfig not found in esds")
}

// ── Opus decoding (Concentus — full SILK + CELT) ────────

func decodeMP4Opus(rs io.ReadSeeker, track *gomp4.Track, sampleRate uint32) (*Segment, error) {
	// Concentus requires one of: 8000, 12000, 16000, 24000, 48000
	decoderRate := int(sampleRate)
	switch decoderRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		decoderRate = 48000 // safe default for Opus
	}

	dec, err := concentus.NewOpusDecoder(decoderRate, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: create opus decoder: %w", ErrUnsupportedCodec, err)
	}

	locs := mp4SampleLocations(track)

	seg := &Segment{SampleRate: uint32(decoderRate)}
	var maxRawSize uint32
	for _, loc := range locs {
		if loc.size > maxRawSize {
			maxRawSize = loc.size
		}
	}
	rawBuf := make([]byte, maxRawSize)

	// Max Opus frame: 120 ms at 48 kHz = 5760 samples per channel × 2 channels
	pcm16 := make([]int16, 5760*2)
	skipped := 0

	for _, loc := range locs {
		// Packets of ≤3 bytes are padding/silence frames the decoder
		// can't process.
		if loc.size <= 3 {
			continue
		}
		if _, err := rs.Seek(int64(loc.offset), io.SeekStart); err != nil {
			continue
		}
		raw := rawBuf[:loc.size]
		if _, err := io.ReadFull(rs, raw); err != nil {
			continue
		}

		n, err := dec.Decode(raw, 0, len(raw), pcm16, 0, 5760, false)
		if err != nil {
			skipped++
			continue
		}
		appendOpusFrames(seg, pcm16, n)
	}

	if skipped > 0 {
		slog.Debug("skipped undecoded Opus frames", "count", skipped, "total", len(locs))
	}
	return seg, nil
}

// appendOpusFrames converts interleaved stereo S16 PCM to frames.
func appendOpusFrames(seg *Segment, pcm16 []int16, n int) {
	for i := 0; i < n; i++ {
		seg.Frames = append(seg.Frames, Frame{
			Left:  float32(pcm16[i*2]) / 32768.0,
			Right: float32(pcm16[i*2+1]) / 32768.0,
		})
	}
}

// ── Shared helpers ──────────────────────────────────────

// mp4SampleLoc describes a single audio sample's position in the file.
type mp4SampleLoc struct {
	offset uint64
	size   uint32
}

// mp4SampleLocations creates a flat list of (file-offset, size) for the
// track's audio samples.
func mp4SampleLocations(track *gomp4.Track) []mp4SampleLoc {
	result := make([]mp4SampleLoc, 0, len(track.Samples))
	sampleIdx := 0

	for _, chunk := range track.Chunks {
		off := chunk.DataOffset
		for j := uint32(0); j < chunk.SamplesPerChunk; j++ {
			if sampleIdx >= len(track.Samples) {
				return result
			}
			sz := track.Samples[sampleIdx].Size
			result = append(result, mp4SampleLoc{offset: off, size: sz})
			off += uint64(sz)
			sampleIdx++
		}
	}

	return result
}
