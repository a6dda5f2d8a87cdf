package audio

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-audio/wav"
)

// wavFormatIEEEFloat is the WAVE format tag for 32-bit float PCM.
const wavFormatIEEEFloat = 3

// ExportWAV writes the segment as a 2-channel, 32-bit IEEE float,
// little-endian WAV file at the segment's sample rate.
func (s *Segment) ExportWAV(w io.WriteSeeker) error {
	slog.Info("writing wav file", "frames", len(s.Frames), "rate", s.SampleRate)
	start := time.Now()

	enc := wav.NewEncoder(w, int(s.SampleRate), 32, 2, wavFormatIEEEFloat)
	for _, f := range s.Frames {
		if err := enc.WriteFrame(f.Left); err != nil {
			return fmt.Errorf("audio: write wav frame: %w", err)
		}
		if err := enc.WriteFrame(f.Right); err != nil {
			return fmt.Errorf("audio: write wav frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}

	slog.Info("finished writing wav file", "took", time.Since(start))
	return nil
}
