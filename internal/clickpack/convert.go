package clickpack

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ChangeVolumeFor selects which buckets a conversion volume change
// applies to.
type ChangeVolumeFor int

const (
	ChangeVolumeAll ChangeVolumeFor = iota
	ChangeVolumeClicks
	ChangeVolumeReleases
)

// RemoveSilenceFrom selects which end of each sample silence trimming
// applies to.
type RemoveSilenceFrom int

const (
	RemoveSilenceNone RemoveSilenceFrom = iota
	RemoveSilenceStart
	RemoveSilenceEnd
)

// ConversionSettings control how a loaded clickpack is re-exported.
type ConversionSettings struct {
	// Volume multiplier applied per sample.
	Volume float32
	// ChangeVolumeFor limits the volume change to clicks or releases.
	ChangeVolumeFor ChangeVolumeFor
	// Reverse flips every sample.
	Reverse bool
	// RemoveSilence trims leading or trailing silence.
	RemoveSilence RemoveSilenceFrom
	// SilenceThreshold is the mean-amplitude cutoff for trimming.
	SilenceThreshold float32
	// RenameFiles numbers output files '1.wav', '2.wav', … instead of
	// keeping the source stems.
	RenameFiles bool
}

// DefaultConversionSettings keep samples unchanged apart from the WAV
// re-encode.
var DefaultConversionSettings = ConversionSettings{
	Volume:           1.0,
	SilenceThreshold: 0.05,
}

// bucket export names paired with whether the bucket holds presses
var bucketExportOrder = []struct {
	dir      string
	isClicks bool
	bucket   func(*PlayerClicks) []AudioFile
}{
	{"hardclicks", true, func(p *PlayerClicks) []AudioFile { return p.HardClicks }},
	{"hardreleases", false, func(p *PlayerClicks) []AudioFile { return p.HardReleases }},
	{"clicks", true, func(p *PlayerClicks) []AudioFile { return p.Clicks }},
	{"releases", false, func(p *PlayerClicks) []AudioFile { return p.Releases }},
	{"softclicks", true, func(p *PlayerClicks) []AudioFile { return p.SoftClicks }},
	{"softreleases", false, func(p *PlayerClicks) []AudioFile { return p.SoftReleases }},
	{"microclicks", true, func(p *PlayerClicks) []AudioFile { return p.MicroClicks }},
	{"microreleases", false, func(p *PlayerClicks) []AudioFile { return p.MicroReleases }},
}

// Convert re-exports the clickpack under outputPath with the given
// transforms, preserving the player-group/bucket directory layout.
// Every output file is a 32-bit float WAV.
func (c *Clickpack) Convert(outputPath string, settings ConversionSettings) error {
	if !c.HasClicks() {
		return fmt.Errorf("clickpack: no clickpack is loaded")
	}

	slog.Debug("creating conversion output directory", "dir", outputPath)
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return fmt.Errorf("clickpack: create output dir: %w", err)
	}

	for _, name := range GroupNames {
		group := c.Group(name)
		if !group.HasClicks() {
			continue
		}
		groupPath := filepath.Join(outputPath, name)
		if err := os.MkdirAll(groupPath, 0o755); err != nil {
			return fmt.Errorf("clickpack: create group dir: %w", err)
		}
		if err := convertPlayer(group, groupPath, settings); err != nil {
			return err
		}
	}
	return nil
}

func convertPlayer(player *PlayerClicks, path string, settings ConversionSettings) error {
	for _, entry := range bucketExportOrder {
		clicks := entry.bucket(player)
		if len(clicks) == 0 {
			continue
		}

		bucketPath := filepath.Join(path, entry.dir)
		slog.Debug("creating bucket dir", "dir", bucketPath)
		if err := os.MkdirAll(bucketPath, 0o755); err != nil {
			return fmt.Errorf("clickpack: create bucket dir: %w", err)
		}

		for i, click := range clicks {
			// work on a copy so the loaded clickpack stays untouched
			seg := click.Clone()

			changeVolume := settings.ChangeVolumeFor == ChangeVolumeAll ||
				(settings.ChangeVolumeFor == ChangeVolumeClicks && entry.isClicks) ||
				(settings.ChangeVolumeFor == ChangeVolumeReleases && !entry.isClicks)
			if changeVolume && settings.Volume != 1 {
				seg.SetVolume(settings.Volume)
			}

			if settings.Reverse {
				seg.Reverse()
			}

			if settings.SilenceThreshold != 0 {
				switch settings.RemoveSilence {
				case RemoveSilenceStart:
					seg.RemoveSilenceFromStart(settings.SilenceThreshold)
				case RemoveSilenceEnd:
					seg.RemoveSilenceFromEnd(settings.SilenceThreshold)
				}
			}

			var outName string
			if settings.RenameFiles {
				outName = fmt.Sprintf("%d.wav", i+1)
			} else {
				stem := strings.TrimSuffix(click.Filename, filepath.Ext(click.Filename))
				if stem == "" {
					stem = click.Filename
				}
				outName = stem + ".wav"
			}
			outPath := filepath.Join(bucketPath, outName)

			slog.Debug("exporting converted sample", "file", outPath)
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("clickpack: create %s: %w", outPath, err)
			}
			if err := seg.ExportWAV(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
