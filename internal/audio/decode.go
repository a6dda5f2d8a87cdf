package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// Decode errors. Unsupported codecs and channel layouts are reported
// so the clickpack loader can skip the offending file with a warning.
var (
	ErrUnsupportedCodec    = errors.New("audio: unsupported codec")
	ErrUnsupportedChannels = errors.New("audio: unsupported channel count, expected 1 or 2")
)

// DecodeFile opens and decodes an audio file into a stereo float32
// segment. The codec is chosen by file extension: WAV, MP3, FLAC and
// Ogg Vorbis decode through pure-Go streamers; MP4/M4A (AAC or Opus
// tracks) and raw Ogg Opus have dedicated paths. Mono sources are
// duplicated to both channels.
func DecodeFile(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return decodeStreamer(wav.Decode(f))
	case ".mp3":
		return decodeStreamer(mp3.Decode(f))
	case ".flac":
		return decodeStreamer(flac.Decode(f))
	case ".ogg", ".oga":
		return decodeStreamer(vorbis.Decode(f))
	case ".opus":
		return decodeOggOpus(f)
	case ".m4a", ".mp4":
		return decodeMP4(f)
	default:
		// Unknown extension: probe the common containers before
		// giving up. Clickpacks in the wild carry mislabeled files.
		return decodeProbe(f, path)
	}
}

// decodeProbe retries the known decoders in sequence on a seekable
// source. Used for files whose extension does not identify the codec.
func decodeProbe(f *os.File, path string) (*Segment, error) {
	type attempt struct {
		name string
		fn   func() (*Segment, error)
	}
	attempts := []attempt{
		{"wav", func() (*Segment, error) { return decodeStreamer(wav.Decode(f)) }},
		{"flac", func() (*Segment, error) { return decodeStreamer(flac.Decode(f)) }},
		{"vorbis", func() (*Segment, error) { return decodeStreamer(vorbis.Decode(f)) }},
		{"opus", func() (*Segment, error) { return decodeOggOpus(f) }},
		{"mp4", func() (*Segment, error) { return decodeMP4(f) }},
		{"mp3", func() (*Segment, error) { return decodeStreamer(mp3.Decode(f)) }},
	}
	for _, a := range attempts {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		seg, err := a.fn()
		if err == nil {
			return seg, nil
		}
		slog.Debug("audio probe failed", "codec", a.name, "file", filepath.Base(path), "error", err)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, filepath.Base(path))
}

// decodeStreamer drains a beep streamer into a segment. beep decoders
// normalize output to two channels with mono copied to both, so the
// frames can be taken as-is.
func decodeStreamer(streamer beep.StreamSeekCloser, format beep.Format, err error) (*Segment, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedCodec, err)
	}
	defer streamer.Close()
	if format.NumChannels > 2 {
		return nil, ErrUnsupportedChannels
	}

	seg := &Segment{SampleRate: uint32(format.SampleRate)}
	if n := streamer.Len(); n > 0 {
		seg.Frames = make([]Frame, 0, n)
	}
	buf := make([][2]float64, 2048)
	for {
		n, ok := streamer.Stream(buf)
		for _, sample := range buf[:n] {
			seg.Frames = append(seg.Frames, Frame{
				Left:  float32(sample[0]),
				Right: float32(sample[1]),
			})
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("audio: decode: %w", err)
	}
	return seg, nil
}
