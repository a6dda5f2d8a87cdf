package replay

import (
	"log/slog"

	"github.com/kyv0/clickbot/internal/gdr2"
)

// ── GDReplayFormat v1 ───────────────────────────────────

// parseGdr parses .gdr replays, which are MessagePack- or
// JSON-encoded; MessagePack is attempted first.
func (r *Replay) parseGdr(data []byte) error {
	v, err := parseMsgpackValue(data)
	if err != nil {
		slog.Debug("gdr: not messagepack, trying json", "error", err)
		if v, err = parseJSONValue(data); err != nil {
			return invalidData("gdr: neither messagepack nor json")
		}
	}
	return r.parseGdrValue(v)
}

func (r *Replay) parseGdrValue(v jsonValue) error {
	fps := v.f64Field("framerate")
	if fps == 0 {
		fps = 240.0
	}
	r.FPS = r.getFPS(fps)

	inputsVal, ok := v.get("inputs")
	if !ok {
		return invalidData("gdr: missing 'inputs' field")
	}
	inputs, ok := inputsVal.asArray()
	if !ok {
		return invalidData("gdr: 'inputs' is not an array")
	}

	for _, input := range inputs {
		frameVal, ok := input.get("frame")
		if !ok {
			return invalidData("gdr: input missing 'frame' field")
		}
		frame, ok := frameVal.toU64()
		if !ok {
			return invalidData("gdr: input 'frame' is not a number")
		}
		down := false
		if downVal, ok := input.get("down"); ok {
			down, _ = downVal.toBool()
		}
		player2 := false
		if p2Val, ok := input.get("2p"); ok {
			player2, _ = p2Val.toBool()
		}

		// when the input carries a physics correction with a non-zero
		// timestamp, prefer it over the frame-derived time
		time := input.f64Field("correction", "time")
		if time == 0 {
			time = float64(frame) / r.FPS
		}
		x := float32(input.f64Field("correction", "xPos"))
		y := float32(input.f64Field("correction", "yPos"))
		yVel := float32(input.f64Field("correction", "yVel"))
		rot := float32(input.f64Field("correction", "rotation"))

		if player2 {
			r.processActionP2(time, buttonFromDown(down), uint32(frame))
			r.extendedP2(down, uint32(frame), x, y, yVel, rot)
		} else {
			r.processActionP1(time, buttonFromDown(down), uint32(frame))
			r.extendedP1(down, uint32(frame), x, y, yVel, rot)
		}
	}
	return nil
}

// ── GDReplayFormat v2 ───────────────────────────────────

// parseGdr2 decodes .gdr2 containers through the gdr2 package.
func (r *Replay) parseGdr2(data []byte) error {
	replay, err := gdr2.Import(data)
	if err != nil {
		return err
	}

	r.FPS = r.getFPS(replay.Framerate)

	slog.Info("gdr2 replay",
		"author", replay.Author, "description", replay.Description,
		"gameVersion", replay.GameVersion, "duration", replay.Duration,
		"seed", replay.Seed, "bot", replay.BotInfo.Name, "level", replay.LevelInfo.Name)

	// discard-deaths keeps only inputs from the final attempt
	var startFrame uint64
	if r.discardDeaths && len(replay.Deaths) > 0 {
		startFrame = replay.Deaths[len(replay.Deaths)-1]
	}
	slog.Info("gdr2 start frame", "frame", startFrame, "discardDeaths", r.discardDeaths)

	for _, input := range replay.Inputs {
		if input.Frame < startFrame {
			continue
		}
		time := float64(input.Frame) / r.FPS
		button := buttonFromIndex(int32(input.Button), input.Down)
		var p gdr2.Physics
		if input.Physics != nil {
			p = *input.Physics
		}
		if input.Player2 {
			r.processActionP2(time, button, uint32(input.Frame))
			r.extendedP2(input.Down, uint32(input.Frame), p.XPosition, p.YPosition, float32(p.YVelocity), p.Rotation)
		} else {
			r.processActionP1(time, button, uint32(input.Frame))
			r.extendedP1(input.Down, uint32(input.Frame), p.XPosition, p.YPosition, float32(p.YVelocity), p.Rotation)
		}
	}
	return nil
}
