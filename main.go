package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kyv0/clickbot/internal/audio"
	"github.com/kyv0/clickbot/internal/bot"
	"github.com/kyv0/clickbot/internal/clickpack"
	"github.com/kyv0/clickbot/internal/replay"
)

func main() {
	// ── Flags ───────────────────────────────────────────
	replayPath := flag.String("replay", "", "Path to replay file")
	clicksPath := flag.String("clicks", "", "Path to clickpack folder or zip")
	output := flag.String("output", "output.wav", "Path to output file")
	noise := flag.Bool("noise", false, "Overlay the noise.* file in the clickpack directory")
	noiseVolume := flag.Float64("noise-volume", 1.0, "Noise volume multiplier")
	normalize := flag.Bool("normalize", false, "Normalize the output audio")

	pitchEnabled := flag.Bool("pitch-enabled", true, "Whether pitch variation is enabled")
	pitchFrom := flag.Float64("pitch-from", 0.98, "Minimum pitch value")
	pitchTo := flag.Float64("pitch-to", 1.02, "Maximum pitch value")
	pitchStep := flag.Float64("pitch-step", 0.0005, "Pitch table step")

	hardTiming := flag.Float64("hard-timing", 2.0, "Hard click timing")
	regularTiming := flag.Float64("regular-timing", 0.15, "Regular click timing")
	softTiming := flag.Float64("soft-timing", 0.025, "Soft click timing (anything below is microclicks)")

	volEnabled := flag.Bool("vol-enabled", true, "Enable spam volume changes")
	spamTime := flag.Float64("spam-time", 0.3, "Time between actions where clicks are considered spam clicks")
	spamVolOffsetFactor := flag.Float64("spam-vol-offset-factor", 0.9, "The spam volume offset is multiplied by this value")
	maxSpamVolOffset := flag.Float64("max-spam-vol-offset", 0.3, "The spam volume offset is clamped by this value")
	changeReleasesVolume := flag.Bool("change-releases-volume", false, "Enable changing volume of release sounds")
	globalVolume := flag.Float64("global-volume", 1.0, "Global clickbot volume factor")
	volumeVar := flag.Float64("volume-var", 0.2, "Random volume variation (+/-) for each click")

	sampleRate := flag.Uint("sample-rate", 44100, "Audio sample rate")
	sortActions := flag.Bool("sort-actions", true, "Sort actions by time / frame")
	volumeExpr := flag.String("volume-expr", "", "Volume expression")
	exprVariable := flag.String("expr-variable", "none", "The variable that the expression should affect (none, variation, value, time-offset)")
	exprNegative := flag.Bool("expr-negative", true, "Extend the variation range to negative numbers (variation only)")
	cutSounds := flag.Bool("cut-sounds", false, "Cut overlapping sounds, changes the sound significantly in spams")
	overrideFPS := flag.Float64("override-fps", 0, "Override the replay FPS (0 = use the replay's value)")
	discardDeaths := flag.Bool("discard-deaths", false, "Discard actions before the final death, for formats that record deaths")
	swapPlayers := flag.Bool("swap-players", false, "Swap player 1 and player 2 actions")

	convertTo := flag.String("convert-to", "", "Convert the clickpack into this directory instead of rendering")
	convertVolume := flag.Float64("convert-volume", 1.0, "Converter: volume multiplier")
	convertVolumeFor := flag.String("convert-volume-for", "all", "Converter: change volume for (all, clicks, releases)")
	convertReverse := flag.Bool("convert-reverse", false, "Converter: reverse all audio files")
	convertTrim := flag.String("convert-trim-silence", "none", "Converter: remove silence from (none, start, end)")
	convertThreshold := flag.Float64("convert-silence-threshold", 0.05, "Converter: silence threshold")
	convertRename := flag.Bool("convert-rename", false, "Converter: rename files to '1.wav', '2.wav', ...")

	keepTemp := flag.Bool("keep-temp", false, "Keep temp directories created by zip extraction")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// ── Logger ──────────────────────────────────────────
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *clicksPath == "" {
		slog.Error("missing -clicks path")
		os.Exit(2)
	}
	if !*keepTemp {
		defer clickpack.CleanupTemp()
	}

	pitch := audio.NoPitch
	if *pitchEnabled {
		pitch = audio.Pitch{From: float32(*pitchFrom), To: float32(*pitchTo), Step: float32(*pitchStep)}
	}

	// ── Bot + clickpack ─────────────────────────────────
	b := bot.New(uint32(*sampleRate))
	if err := b.LoadClickpack(*clicksPath, pitch); err != nil {
		slog.Error("failed to load clickpack", "error", err)
		os.Exit(1)
	}

	// ── Clickpack conversion mode ───────────────────────
	if *convertTo != "" {
		settings := clickpack.ConversionSettings{
			Volume:           float32(*convertVolume),
			Reverse:          *convertReverse,
			SilenceThreshold: float32(*convertThreshold),
			RenameFiles:      *convertRename,
		}
		switch strings.ToLower(*convertVolumeFor) {
		case "clicks":
			settings.ChangeVolumeFor = clickpack.ChangeVolumeClicks
		case "releases":
			settings.ChangeVolumeFor = clickpack.ChangeVolumeReleases
		}
		switch strings.ToLower(*convertTrim) {
		case "start":
			settings.RemoveSilence = clickpack.RemoveSilenceStart
		case "end":
			settings.RemoveSilence = clickpack.RemoveSilenceEnd
		}
		if err := b.Clickpack.Convert(*convertTo, settings); err != nil {
			slog.Error("clickpack conversion failed", "error", err)
			os.Exit(1)
		}
		slog.Info("clickpack converted", "dir", *convertTo)
		return
	}

	if *replayPath == "" {
		slog.Error("missing -replay path")
		os.Exit(2)
	}

	// ── Replay parsing ──────────────────────────────────
	format, err := replay.GuessFormat(filepath.Base(*replayPath))
	if err != nil {
		slog.Error("failed to guess replay format", "error", err)
		os.Exit(1)
	}

	opts := []replay.Option{
		replay.WithTimings(replay.Timings{Hard: *hardTiming, Regular: *regularTiming, Soft: *softTiming}),
		replay.WithVolSettings(replay.VolumeSettings{
			Enabled:              *volEnabled,
			SpamTime:             *spamTime,
			SpamVolOffsetFactor:  float32(*spamVolOffsetFactor),
			MaxSpamVolOffset:     float32(*maxSpamVolOffset),
			ChangeReleasesVolume: *changeReleasesVolume,
			GlobalVolume:         float32(*globalVolume),
			VolumeVar:            float32(*volumeVar),
		}),
		replay.WithExtended(true),
		replay.WithSortActions(*sortActions),
		replay.WithDiscardDeaths(*discardDeaths),
		replay.WithSwapPlayers(*swapPlayers),
	}
	if *overrideFPS > 0 {
		opts = append(opts, replay.WithOverrideFPS(*overrideFPS))
	}
	parsed := replay.New(opts...)

	f, err := os.Open(*replayPath)
	if err != nil {
		slog.Error("failed to open replay file", "error", err)
		os.Exit(1)
	}
	if err := parsed.Parse(format, f); err != nil {
		f.Close()
		slog.Error("failed to parse replay", "format", format.String(), "error", err)
		os.Exit(1)
	}
	f.Close()

	// ── Expression ──────────────────────────────────────
	exprVar := bot.ExprNone
	if *volumeExpr != "" {
		if err := b.CompileExpression(*volumeExpr); err != nil {
			slog.Error("failed to compile volume expression", "error", err)
			os.Exit(1)
		}
		// evaluate once against a blank action to catch undefined vars
		b.UpdateNamespace(&replay.ExtendedAction{}, 0, parsed.LastFrame(), parsed.FPS)
		if _, err := b.EvalExpression(); err != nil {
			slog.Error("failed to evaluate expression", "error", err)
			os.Exit(1)
		}
		switch strings.ToLower(*exprVariable) {
		case "value":
			exprVar = bot.ExprValue
		case "variation":
			exprVar = bot.ExprVariation
		case "time-offset", "timeoffset":
			exprVar = bot.ExprTimeOffset
		}
	}

	// ── Render + export ─────────────────────────────────
	segment := b.Render(parsed, bot.RenderOptions{
		Noise:        *noise,
		NoiseVolume:  float32(*noiseVolume),
		Normalize:    *normalize,
		ExprVar:      exprVar,
		ExprNegative: *exprNegative,
		EnablePitch:  *pitchEnabled,
		CutSounds:    *cutSounds,
	})

	outPath := *output
	if outPath == "" {
		slog.Warn("output path is empty, defaulting to 'output.wav'")
		outPath = "output.wav"
	} else if !strings.HasSuffix(outPath, ".wav") {
		slog.Warn("output path is not a .wav, however the output format is always .wav")
	}

	out, err := os.Create(outPath)
	if err != nil {
		slog.Error("failed to create output file", "error", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := segment.ExportWAV(out); err != nil {
		slog.Error("failed to export wav", "error", err)
		os.Exit(1)
	}
	slog.Info("done", "output", outPath, "duration", segment.Duration())
}
