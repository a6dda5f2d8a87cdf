// Package clickpack loads click-sample libraries from disk: a root
// directory (or zip archive) with optional per-player subdirectories,
// each holding category directories of audio files. Directory names
// are matched loosely ("softclicks", "soft_clicks", "Soft Clicks" all
// land in the same bucket), and a noise bed file may live at any
// level.
package clickpack

import (
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kyv0/clickbot/internal/audio"
	"github.com/kyv0/clickbot/internal/replay"
)

// AudioFile is a decoded sample plus the name it was loaded from (the
// converter re-exports files under their original stems).
type AudioFile struct {
	*audio.Segment
	Filename string
}

// PlayerClicks holds the eight sample buckets of one player group.
type PlayerClicks struct {
	HardClicks    []AudioFile
	HardReleases  []AudioFile
	Clicks        []AudioFile
	Releases      []AudioFile
	SoftClicks    []AudioFile
	SoftReleases  []AudioFile
	MicroClicks   []AudioFile
	MicroReleases []AudioFile
}

// Bucket returns the sample list for a click type, or nil for NoClick.
func (p *PlayerClicks) Bucket(t replay.ClickType) []AudioFile {
	switch t {
	case replay.HardClick:
		return p.HardClicks
	case replay.HardRelease:
		return p.HardReleases
	case replay.Click:
		return p.Clicks
	case replay.Release:
		return p.Releases
	case replay.SoftClick:
		return p.SoftClicks
	case replay.SoftRelease:
		return p.SoftReleases
	case replay.MicroClick:
		return p.MicroClicks
	case replay.MicroRelease:
		return p.MicroReleases
	}
	return nil
}

func (p *PlayerClicks) buckets() []*[]AudioFile {
	return []*[]AudioFile{
		&p.HardClicks, &p.HardReleases, &p.Clicks, &p.Releases,
		&p.SoftClicks, &p.SoftReleases, &p.MicroClicks, &p.MicroReleases,
	}
}

// HasClicks reports whether any bucket holds at least one sample.
func (p *PlayerClicks) HasClicks() bool {
	for _, b := range p.buckets() {
		if len(*b) > 0 {
			return true
		}
	}
	return false
}

// NumSounds returns the total sample count across all buckets.
func (p *PlayerClicks) NumSounds() int {
	n := 0
	for _, b := range p.buckets() {
		n += len(*b)
	}
	return n
}

// LongestClick returns the longest sample duration in seconds.
func (p *PlayerClicks) LongestClick() float64 {
	var max float64
	for _, b := range p.buckets() {
		for _, f := range *b {
			if d := f.Duration().Seconds(); d > max {
				max = d
			}
		}
	}
	return max
}

// RandomClick picks a random sample for the click type, walking the
// type's preference order until a non-empty bucket is found. Returns
// nil when every bucket along the chain is empty.
func (p *PlayerClicks) RandomClick(t replay.ClickType, rng *rand.Rand) *audio.Segment {
	for _, typ := range t.Preferred() {
		bucket := p.Bucket(typ)
		if len(bucket) == 0 {
			continue
		}
		return bucket[rng.IntN(len(bucket))].Segment
	}
	return nil
}

// bucket name patterns; directory names are normalized to lowercase
// alphabetic characters before matching
var bucketPatterns = []struct {
	names  [2]string
	bucket func(*PlayerClicks) *[]AudioFile
}{
	{[2]string{"hardclick", "hardclicks"}, func(p *PlayerClicks) *[]AudioFile { return &p.HardClicks }},
	{[2]string{"hardrelease", "hardreleases"}, func(p *PlayerClicks) *[]AudioFile { return &p.HardReleases }},
	{[2]string{"click", "clicks"}, func(p *PlayerClicks) *[]AudioFile { return &p.Clicks }},
	{[2]string{"release", "releases"}, func(p *PlayerClicks) *[]AudioFile { return &p.Releases }},
	{[2]string{"softclick", "softclicks"}, func(p *PlayerClicks) *[]AudioFile { return &p.SoftClicks }},
	{[2]string{"softrelease", "softreleases"}, func(p *PlayerClicks) *[]AudioFile { return &p.SoftReleases }},
	{[2]string{"microclick", "microclicks"}, func(p *PlayerClicks) *[]AudioFile { return &p.MicroClicks }},
	{[2]string{"microrelease", "microreleases"}, func(p *PlayerClicks) *[]AudioFile { return &p.MicroReleases }},
}

// normalizeDirName lowercases a directory name and strips everything
// but letters, so "Soft_Clicks 2" matches "softclicks".
func normalizeDirName(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		if c >= 'a' && c <= 'z' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// recognizeDir matches a category directory by its normalized name and
// loads its audio files into the corresponding bucket.
func (p *PlayerClicks) recognizeDir(path string, pitch audio.Pitch, sampleRate uint32) {
	name := normalizeDirName(filepath.Base(path))
	for _, pat := range bucketPatterns {
		if pat.names[0] == name || pat.names[1] == name {
			slog.Debug("directory matched", "dir", path, "bucket", pat.names[1])
			*pat.bucket(p) = append(*pat.bucket(p), readClicksInDirectory(path, pitch, sampleRate)...)
			return
		}
	}
	slog.Warn("directory did not match any click bucket", "dir", path)
}

// FromPath loads one player group from a directory (or zip file). When
// no category subdirectory matches, every audio file in the directory
// itself lands in the regular clicks bucket.
func FromPath(path string, pitch audio.Pitch, sampleRate uint32) *PlayerClicks {
	player := &PlayerClicks{}

	path = fixRootSubdir(path)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		extracted, err := unzipToTempDir(path)
		if err != nil {
			slog.Error("failed to unzip clickpack", "path", path, "error", err)
			return player
		}
		path = fixRootSubdir(extracted)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		slog.Warn("failed to read clickpack directory", "dir", path, "error", err)
		return player
	}

	for _, entry := range entries {
		entryPath := fixRootSubdir(filepath.Join(path, entry.Name()))
		if info, err := os.Stat(entryPath); err == nil && info.IsDir() {
			player.recognizeDir(entryPath, pitch, sampleRate)
		}
	}

	if !player.HasClicks() {
		slog.Warn("no category directories found, loading files directly", "dir", path)
		player.Clicks = append(player.Clicks, readClicksInDirectory(path, pitch, sampleRate)...)
	}

	return player
}

// readClicksInDirectory decodes every audio file in a directory,
// resampled to the target rate with a pitch table. Files decode in
// parallel; undecodable files are skipped with a warning.
func readClicksInDirectory(dir string, pitch audio.Pitch, sampleRate uint32) []AudioFile {
	slog.Debug("loading clicks", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("cannot read directory, skipping", "dir", dir, "error", err)
		return nil
	}

	var mu sync.Mutex
	var files []AudioFile
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			segment, err := audio.DecodeFile(path)
			if err != nil {
				slog.Warn("failed to decode sample, skipping", "file", path, "error", err)
				return nil
			}
			segment.Resample(sampleRate)
			segment.MakePitchTable(pitch)

			mu.Lock()
			files = append(files, AudioFile{Segment: segment, Filename: entry.Name()})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-file failures are skipped, not propagated

	return files
}

// fixRootSubdir unwraps a directory that contains exactly one
// subdirectory (zip archives commonly nest their content this way).
func fixRootSubdir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return dir
	}
	return filepath.Join(dir, entries[0].Name())
}

// ── Clickpack ───────────────────────────────────────────

// GroupNames are the canonical player-group directories, in the order
// LoadClickpack loads them.
var GroupNames = [6]string{"player1", "player2", "left1", "left2", "right1", "right2"}

// Clickpack is the full sample library: regular and platformer
// directional groups for both players.
type Clickpack struct {
	Player1 *PlayerClicks
	Player2 *PlayerClicks
	Left1   *PlayerClicks
	Right1  *PlayerClicks
	Left2   *PlayerClicks
	Right2  *PlayerClicks
}

// NewClickpack creates a clickpack with empty groups.
func NewClickpack() *Clickpack {
	return &Clickpack{
		Player1: &PlayerClicks{}, Player2: &PlayerClicks{},
		Left1: &PlayerClicks{}, Right1: &PlayerClicks{},
		Left2: &PlayerClicks{}, Right2: &PlayerClicks{},
	}
}

// Group returns the player group for a canonical directory name.
func (c *Clickpack) Group(name string) *PlayerClicks {
	switch name {
	case "player1":
		return c.Player1
	case "player2":
		return c.Player2
	case "left1":
		return c.Left1
	case "right1":
		return c.Right1
	case "left2":
		return c.Left2
	case "right2":
		return c.Right2
	}
	return nil
}

// SetGroup replaces the player group for a canonical directory name.
func (c *Clickpack) SetGroup(name string, p *PlayerClicks) {
	switch name {
	case "player1":
		c.Player1 = p
	case "player2":
		c.Player2 = p
	case "left1":
		c.Left1 = p
	case "right1":
		c.Right1 = p
	case "left2":
		c.Left2 = p
	case "right2":
		c.Right2 = p
	}
}

func (c *Clickpack) groups() [6]*PlayerClicks {
	return [6]*PlayerClicks{c.Player1, c.Player2, c.Left1, c.Right1, c.Left2, c.Right2}
}

// HasClicks reports whether any group holds at least one sample. A
// clickpack is usable iff this is true.
func (c *Clickpack) HasClicks() bool {
	for _, g := range c.groups() {
		if g.HasClicks() {
			return true
		}
	}
	return false
}

// NumSounds returns the total sample count across all groups.
func (c *Clickpack) NumSounds() int {
	n := 0
	for _, g := range c.groups() {
		n += g.NumSounds()
	}
	return n
}

// LongestClick returns the longest sample duration across all groups,
// in seconds. The renderer pads the output buffer by this much so the
// final click is never cut off.
func (c *Clickpack) LongestClick() float64 {
	var max float64
	for _, g := range c.groups() {
		if d := g.LongestClick(); d > max {
			max = d
		}
	}
	return max
}

// ── Noise bed discovery ─────────────────────────────────

// noise bed filename prefixes, matched against the lowercased stem
var noisePrefixes = []string{"noise", "whitenoise", "pcnoise", "background"}

// FindNoiseFile returns the first file in dir whose name marks it as a
// noise bed, or "" when none exists.
func FindNoiseFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		lower := strings.ToLower(entry.Name())
		for _, prefix := range noisePrefixes {
			if strings.HasPrefix(lower, prefix) {
				return filepath.Join(dir, entry.Name())
			}
		}
	}
	return ""
}

// DirHasNoise reports whether the clickpack root or any player-group
// directory contains a noise bed file.
func DirHasNoise(dir string) bool {
	if FindNoiseFile(dir) != "" {
		return true
	}
	for _, name := range GroupNames {
		if FindNoiseFile(filepath.Join(dir, name)) != "" {
			return true
		}
	}
	return false
}

// ── Zip extraction ──────────────────────────────────────

var tempDirs struct {
	mu    sync.Mutex
	paths []string
}

// randomTempDirName generates an unzip target with a random 16-char
// suffix to avoid collisions between concurrent invocations.
func randomTempDirName() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	var b strings.Builder
	b.WriteString("clickbot-unzipped-")
	for range 16 {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return b.String()
}

// CleanupTemp removes every temp directory created by zip extraction
// during this process. Callers that care about temp hygiene invoke it
// before exit; nothing is removed automatically.
func CleanupTemp() {
	tempDirs.mu.Lock()
	defer tempDirs.mu.Unlock()
	for _, dir := range tempDirs.paths {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove temp dir", "dir", dir, "error", err)
		}
	}
	tempDirs.paths = nil
}

func rememberTempDir(dir string) {
	tempDirs.mu.Lock()
	tempDirs.paths = append(tempDirs.paths, dir)
	tempDirs.mu.Unlock()
}
