package replay

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format identifies a replay wire format.
type Format int

const (
	// FormatTasBot is TASBot .json files.
	FormatTasBot Format = iota
	// FormatMhr is MegaHack Replay .mhr.json files.
	FormatMhr
	// FormatMhrBin is MegaHack Replay binary .mhr files.
	FormatMhrBin
	// FormatZbot is zBot .zbf files.
	FormatZbot
	// FormatObot is OmegaBot 2/3 and ReplayBot .replay files.
	FormatObot
	// FormatYbotf is yBot frame .ybf files.
	FormatYbotf
	// FormatEcho is Echo .echo files (binary, old JSON and new JSON).
	FormatEcho
	// FormatAmethyst is Amethyst .thyst files.
	FormatAmethyst
	// FormatOsuReplay is osu! .osr files.
	FormatOsuReplay
	// FormatGdmo is GDMegaOverlay .macro files.
	FormatGdmo
	// FormatReplayBot is ReplayBot .replaybot files.
	FormatReplayBot
	// FormatRush is Rush .rsh files.
	FormatRush
	// FormatKdbot is KDBot .kd files.
	FormatKdbot
	// FormatTxt is plaintext .txt files.
	FormatTxt
	// FormatReplayEngine is ReplayEngine .re files.
	FormatReplayEngine
	// FormatDdhor is DDHOR .ddhor files.
	FormatDdhor
	// FormatXbot is xBot Frame .xbot files.
	FormatXbot
	// FormatYbot2 is yBot 2 .ybot files.
	FormatYbot2
	// FormatXdBot is xdBot .xd files.
	FormatXdBot
	// FormatGdr is GDReplayFormat .gdr files.
	FormatGdr
	// FormatQbot is qBot .qb files.
	FormatQbot
	// FormatRbot is RBot .rbot files (raw or gzip-compressed).
	FormatRbot
	// FormatZephyrus is Zephyrus (OpenHack) .zr files.
	FormatZephyrus
	// FormatReplayEngine2 is ReplayEngine 2 .re2 files.
	FormatReplayEngine2
	// FormatReplayEngine3 is ReplayEngine 3 .re3 files.
	FormatReplayEngine3
	// FormatSilicate is Silicate .slc files.
	FormatSilicate
	// FormatSilicate2 is Silicate 2 .slc2 files.
	FormatSilicate2
	// FormatGdr2 is GDReplayFormat 2 .gdr2 files.
	FormatGdr2
	// FormatUvBot is uvBot .uv files.
	FormatUvBot
	// FormatTcBot is TCBot .tcm files.
	FormatTcBot
)

var formatNames = map[Format]string{
	FormatTasBot: "tasbot", FormatMhr: "mhr", FormatMhrBin: "mhr-binary",
	FormatZbot: "zbot", FormatObot: "obot", FormatYbotf: "ybotf",
	FormatEcho: "echo", FormatAmethyst: "amethyst", FormatOsuReplay: "osu-replay",
	FormatGdmo: "gdmo", FormatReplayBot: "replaybot", FormatRush: "rush",
	FormatKdbot: "kdbot", FormatTxt: "plaintext", FormatReplayEngine: "replay-engine",
	FormatDdhor: "ddhor", FormatXbot: "xbot", FormatYbot2: "ybot2",
	FormatXdBot: "xdbot", FormatGdr: "gdr", FormatQbot: "qbot",
	FormatRbot: "rbot", FormatZephyrus: "zephyrus", FormatReplayEngine2: "replay-engine-2",
	FormatReplayEngine3: "replay-engine-3", FormatSilicate: "silicate",
	FormatSilicate2: "silicate2", FormatGdr2: "gdr2", FormatUvBot: "uvbot",
	FormatTcBot: "tcbot",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// SupportedExtensions lists every file extension the dispatcher
// accepts, without the leading dot.
var SupportedExtensions = []string{
	"json", "mhr.json", "mhr", "zbf", "replay", "ybf", "echo",
	"echo.json", "thyst", "osr", "macro", "replaybot", "rsh", "kd",
	"txt", "re", "ddhor", "xbot", "ybot", "xd", "gdr", "qb", "rbot",
	"zr", "re2", "re3", "slc", "slc2", "gdr2", "uv", "tcm",
}

// GuessFormat picks the format for a filename by its extension.
// Ambiguous extensions map to a parser that probes the content and
// re-dispatches. Returns ErrUnknownFormat for anything unrecognized.
func GuessFormat(filename string) (Format, error) {
	lower := strings.ToLower(filename)
	dot := strings.LastIndexByte(lower, '.')
	if dot < 0 || dot == len(lower)-1 {
		return 0, fmt.Errorf("%w: %q has no extension", ErrUnknownFormat, filename)
	}
	ext := lower[dot+1:]

	switch ext {
	case "json":
		switch {
		case strings.HasSuffix(lower, ".mhr.json"):
			return FormatMhr, nil
		case strings.HasSuffix(lower, ".echo.json"):
			return FormatEcho, nil
		case strings.HasSuffix(lower, ".gdr.json"):
			return FormatGdr, nil
		default:
			return FormatTasBot, nil
		}
	case "zbf":
		return FormatZbot, nil
	case "replay":
		return FormatObot, nil
	case "ybf":
		return FormatYbotf, nil
	case "mhr":
		return FormatMhrBin, nil
	case "echo":
		return FormatEcho, nil // the parser handles all three variants
	case "thyst":
		return FormatAmethyst, nil
	case "osr":
		return FormatOsuReplay, nil
	case "macro":
		return FormatGdmo, nil
	case "replaybot":
		return FormatReplayBot, nil
	case "rsh":
		return FormatRush, nil
	case "kd":
		return FormatKdbot, nil
	case "txt":
		return FormatTxt, nil
	case "re":
		return FormatReplayEngine, nil
	case "ddhor":
		return FormatDdhor, nil
	case "xbot":
		return FormatXbot, nil
	case "ybot":
		return FormatYbot2, nil
	case "xd":
		return FormatXdBot, nil
	case "gdr":
		return FormatGdr, nil
	case "qb":
		return FormatQbot, nil
	case "rbot":
		return FormatRbot, nil
	case "zr":
		return FormatZephyrus, nil
	case "re2":
		return FormatReplayEngine2, nil
	case "re3":
		return FormatReplayEngine3, nil
	case "slc":
		return FormatSilicate, nil
	case "slc2":
		return FormatSilicate2, nil
	case "gdr2":
		return FormatGdr2, nil
	case "uv":
		return FormatUvBot, nil
	case "tcm":
		return FormatTcBot, nil
	}
	return 0, fmt.Errorf("%w: extension %q", ErrUnknownFormat, ext)
}

// Parse decodes the given format from r into the replay, then applies
// canonicalization: optional stable sort of actions by time, and
// duration = time of the last action.
func (r *Replay) Parse(format Format, reader io.Reader) error {
	slog.Info("parsing replay", "format", format.String())

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("replay: read: %w", err)
	}

	switch format {
	case FormatMhr:
		err = r.parseMhr(data)
	case FormatTasBot:
		err = r.parseTasBot(data)
	case FormatZbot:
		err = r.parseZbf(data)
	case FormatObot:
		err = r.parseObot(data) // obot2, obot3 and replaybot replays
	case FormatYbotf:
		err = r.parseYbotf(data)
	case FormatMhrBin:
		err = r.parseMhrBin(data)
	case FormatEcho:
		err = r.parseEcho(data) // all three echo variants
	case FormatAmethyst:
		err = r.parseAmethyst(data)
	case FormatOsuReplay:
		err = r.parseOsr(data)
	case FormatGdmo:
		err = r.parseGdmo(data)
	case FormatReplayBot:
		err = r.parseReplayBot(data)
	case FormatRush:
		err = r.parseRush(data)
	case FormatKdbot:
		err = r.parseKdbot(data)
	case FormatTxt:
		err = r.parsePlainText(data)
	case FormatReplayEngine:
		err = r.parseRe(data)
	case FormatDdhor:
		err = r.parseDdhor(data)
	case FormatXbot:
		err = r.parseXbot(data)
	case FormatYbot2:
		err = r.parseYbot2(data)
	case FormatXdBot:
		err = r.parseXdBot(data)
	case FormatGdr:
		err = r.parseGdr(data)
	case FormatQbot:
		err = r.parseQbot(data)
	case FormatRbot:
		err = r.parseRbot(data)
	case FormatZephyrus:
		err = r.parseZephyrus(data)
	case FormatReplayEngine2:
		err = r.parseRe2(data)
	case FormatReplayEngine3:
		err = r.parseRe3(data)
	case FormatSilicate:
		err = r.parseSlc(data)
	case FormatSilicate2:
		err = r.parseSlc2(data)
	case FormatGdr2:
		err = r.parseGdr2(data)
	case FormatUvBot:
		err = r.parseUvBot(data)
	case FormatTcBot:
		err = r.parseTcm(data)
	default:
		err = ErrUnknownFormat
	}
	if err != nil {
		return err
	}

	r.finish()
	return nil
}
