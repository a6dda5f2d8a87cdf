package replay

import (
	"encoding/json"
	"fmt"
)

// jsonValue is a minimal dynamic JSON value used by the JSON-based
// formats. Accessors return ok=false instead of failing so field walks
// read as plain optional chains.
type jsonValue struct {
	v any
}

func parseJSONValue(data []byte) (jsonValue, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return jsonValue{}, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}
	return jsonValue{v: v}, nil
}

func (j jsonValue) get(key string) (jsonValue, bool) {
	m, ok := j.v.(map[string]any)
	if !ok {
		return jsonValue{}, false
	}
	v, ok := m[key]
	return jsonValue{v: v}, ok
}

func (j jsonValue) asArray() ([]jsonValue, bool) {
	a, ok := j.v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]jsonValue, len(a))
	for i, v := range a {
		out[i] = jsonValue{v: v}
	}
	return out, true
}

func (j jsonValue) toF64() (float64, bool) {
	switch v := j.v.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (j jsonValue) toU64() (uint64, bool) {
	f, ok := j.toF64()
	if !ok || f < 0 {
		return 0, false
	}
	return uint64(f), true
}

func (j jsonValue) toI64() (int64, bool) {
	f, ok := j.toF64()
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func (j jsonValue) toBool() (bool, bool) {
	b, ok := j.v.(bool)
	return b, ok
}

// f64Field walks a field path and returns the value, or 0 when any
// step is missing (for fields documented as optional).
func (j jsonValue) f64Field(keys ...string) float64 {
	cur := j
	for _, k := range keys {
		next, ok := cur.get(k)
		if !ok {
			return 0
		}
		cur = next
	}
	f, _ := cur.toF64()
	return f
}

// ── TASBot ──────────────────────────────────────────────

// parseTasBot parses TASBot .json replays. MHR JSON replays renamed to
// plain .json are detected by their meta.fps field and re-dispatched.
func (r *Replay) parseTasBot(data []byte) error {
	v, err := parseJSONValue(data)
	if err != nil {
		return err
	}

	if meta, ok := v.get("meta"); ok {
		if fps, ok := meta.get("fps"); ok {
			if _, isNum := fps.toF64(); isNum {
				return r.parseMhrValue(v)
			}
		}
	}

	fpsVal, ok := v.get("fps")
	if !ok {
		return invalidData("tasbot: missing 'fps' field")
	}
	fps, ok := fpsVal.toF64()
	if !ok {
		return invalidData("tasbot: 'fps' is not a number")
	}
	r.FPS = r.getFPS(fps)

	macroVal, ok := v.get("macro")
	if !ok {
		return invalidData("tasbot: missing 'macro' field")
	}
	events, ok := macroVal.asArray()
	if !ok {
		return invalidData("tasbot: 'macro' is not an array")
	}

	var prevP1, prevP2 int64
	for _, ev := range events {
		frameVal, ok := ev.get("frame")
		if !ok {
			return invalidData("tasbot: missing 'frame' field")
		}
		frame, ok := frameVal.toU64()
		if !ok {
			return invalidData("tasbot: 'frame' is not a number")
		}
		time := float64(frame) / r.FPS

		p1Val, ok := ev.get("player_1")
		if !ok {
			return invalidData("tasbot: missing 'player_1' field")
		}
		p1Click, ok := p1Val.get("click")
		if !ok {
			return invalidData("tasbot: missing p1 'click' field")
		}
		p1, ok := p1Click.toI64()
		if !ok {
			return invalidData("tasbot: p1 'click' is not a number")
		}
		p2Val, ok := ev.get("player_2")
		if !ok {
			return invalidData("tasbot: missing 'player_2' field")
		}
		p2Click, ok := p2Val.get("click")
		if !ok {
			return invalidData("tasbot: missing p2 'click' field")
		}
		p2, ok := p2Click.toI64()
		if !ok {
			return invalidData("tasbot: p2 'click' is not a number")
		}
		x := float32(ev.f64Field("player_1", "x_position"))

		// click values: 0 = no change, 1 = press, 2 = release. A press
		// directly following a press implies a release happened in
		// between; synthesize it at the same timestamp.
		if p1 != 0 {
			if p1 == 1 && prevP1 == 1 {
				r.processActionP1(time, ButtonRelease, uint32(frame))
				r.extendedP1(false, uint32(frame), x, 0, 0, 0)
			}
			r.processActionP1(time, buttonFromDown(p1 == 1), uint32(frame))
			r.extendedP1(p1 == 1, uint32(frame), x, 0, 0, 0)
		}
		if p2 != 0 {
			if p2 == 1 && prevP2 == 1 {
				r.processActionP2(time, ButtonRelease, uint32(frame))
				r.extendedP2(false, uint32(frame), x, 0, 0, 0)
			}
			r.processActionP2(time, buttonFromDown(p2 == 1), uint32(frame))
			r.extendedP2(p2 == 1, uint32(frame), x, 0, 0, 0)
		}

		prevP1, prevP2 = p1, p2
	}
	return nil
}

// ── MegaHack Replay (JSON) ──────────────────────────────

func (r *Replay) parseMhr(data []byte) error {
	v, err := parseJSONValue(data)
	if err != nil {
		return err
	}
	return r.parseMhrValue(v)
}

func (r *Replay) parseMhrValue(v jsonValue) error {
	meta, ok := v.get("meta")
	if !ok {
		return invalidData("mhr: missing 'meta' field")
	}
	fpsVal, ok := meta.get("fps")
	if !ok {
		return invalidData("mhr: missing 'fps' field")
	}
	fps, ok := fpsVal.toF64()
	if !ok {
		return invalidData("mhr: 'fps' is not a number")
	}
	r.FPS = r.getFPS(fps)

	eventsVal, ok := v.get("events")
	if !ok {
		return invalidData("mhr: missing 'events' field")
	}
	events, ok := eventsVal.asArray()
	if !ok {
		return invalidData("mhr: 'events' is not an array")
	}

	for _, ev := range events {
		frameVal, ok := ev.get("frame")
		if !ok {
			return invalidData("mhr: missing 'frame' field")
		}
		frame, ok := frameVal.toU64()
		if !ok {
			return invalidData("mhr: 'frame' is not a number")
		}
		time := float64(frame) / r.FPS

		downVal, ok := ev.get("down")
		if !ok {
			continue // physics-only event
		}
		down, ok := downVal.toBool()
		if !ok {
			return invalidData("mhr: 'down' is not a bool")
		}

		// 'p2' seems to always be true when present, but query anyway
		p2 := false
		if p2Val, ok := ev.get("p2"); ok {
			if p2, ok = p2Val.toBool(); !ok {
				return invalidData("mhr: 'p2' is not a bool")
			}
		}

		yAccel := float32(ev.f64Field("a"))
		x := float32(ev.f64Field("x"))
		y := float32(ev.f64Field("y"))
		rot := float32(ev.f64Field("r"))

		if p2 {
			r.processActionP2(time, buttonFromDown(down), uint32(frame))
			r.extendedP2(down, uint32(frame), x, y, yAccel, rot)
		} else {
			r.processActionP1(time, buttonFromDown(down), uint32(frame))
			r.extendedP1(down, uint32(frame), x, y, yAccel, rot)
		}
	}
	return nil
}

// ── Echo ────────────────────────────────────────────────

// parseEcho parses .echo files: the new binary format, the old JSON
// format, or the new JSON format, probed in that order.
func (r *Replay) parseEcho(data []byte) error {
	v, err := parseJSONValue(data)
	if err != nil {
		return r.parseEchoBin(data) // not JSON → binary
	}

	// attempt the old schema first; on mismatch reset and try new
	if err := r.parseEchoOld(v); err == nil {
		return nil
	}
	r.Actions = r.Actions[:0]
	r.Extended = r.Extended[:0]
	r.prevAction = [2]*ClickType{}
	r.prevTime = [2]float64{}

	return r.parseEchoNew(v)
}

// parseEchoOld parses the old Echo JSON schema.
func (r *Replay) parseEchoOld(v jsonValue) error {
	fpsVal, ok := v.get("FPS")
	if !ok {
		return fmt.Errorf("%w: echo-old: no 'FPS' field", ErrSchemaMismatch)
	}
	fps, ok := fpsVal.toF64()
	if !ok {
		return fmt.Errorf("%w: echo-old: 'FPS' is not a number", ErrSchemaMismatch)
	}
	r.FPS = r.getFPS(fps)

	var startingFrame uint64
	if sf, ok := v.get("Starting Frame"); ok {
		startingFrame, _ = sf.toU64()
	}

	replayVal, ok := v.get("Echo Replay")
	if !ok {
		return fmt.Errorf("%w: echo-old: no 'Echo Replay' field", ErrSchemaMismatch)
	}
	actions, ok := replayVal.asArray()
	if !ok {
		return fmt.Errorf("%w: echo-old: 'Echo Replay' is not an array", ErrSchemaMismatch)
	}

	for _, action := range actions {
		frameVal, ok := action.get("Frame")
		if !ok {
			return invalidData("echo-old: missing 'Frame' field")
		}
		frame, ok := frameVal.toU64()
		if !ok {
			return invalidData("echo-old: 'Frame' is not a number")
		}
		frame += startingFrame
		time := float64(frame) / r.FPS

		p2Val, ok := action.get("Player 2")
		if !ok {
			return invalidData("echo-old: missing 'Player 2' field")
		}
		p2, ok := p2Val.toBool()
		if !ok {
			return invalidData("echo-old: 'Player 2' is not a bool")
		}
		downVal, ok := action.get("Hold")
		if !ok {
			return invalidData("echo-old: missing 'Hold' field")
		}
		down, ok := downVal.toBool()
		if !ok {
			return invalidData("echo-old: 'Hold' is not a bool")
		}

		x := float32(action.f64Field("X Position"))
		y := float32(action.f64Field("Y Position"))
		yAccel := float32(action.f64Field("Y Acceleration"))
		rot := float32(action.f64Field("Rotation"))

		if p2 {
			r.processActionP2(time, buttonFromDown(down), uint32(frame))
			r.extendedP2(down, uint32(frame), x, y, yAccel, rot)
		} else {
			r.processActionP1(time, buttonFromDown(down), uint32(frame))
			r.extendedP1(down, uint32(frame), x, y, yAccel, rot)
		}
	}
	return nil
}

// parseEchoNew parses the new Echo JSON schema.
func (r *Replay) parseEchoNew(v jsonValue) error {
	fpsVal, ok := v.get("fps")
	if !ok {
		return invalidData("echo: no 'fps' field")
	}
	fps, ok := fpsVal.toF64()
	if !ok {
		return invalidData("echo: 'fps' is not a number")
	}
	r.FPS = r.getFPS(fps)

	inputsVal, ok := v.get("inputs")
	if !ok {
		return invalidData("echo: no 'inputs' field")
	}
	inputs, ok := inputsVal.asArray()
	if !ok {
		return invalidData("echo: 'inputs' is not an array")
	}

	for _, action := range inputs {
		frameVal, ok := action.get("frame")
		if !ok {
			return invalidData("echo: no 'frame' field")
		}
		frame, ok := frameVal.toU64()
		if !ok {
			return invalidData("echo: 'frame' is not a number")
		}
		time := float64(frame) / r.FPS

		downVal, ok := action.get("holding")
		if !ok {
			return invalidData("echo: no 'holding' field")
		}
		down, ok := downVal.toBool()
		if !ok {
			return invalidData("echo: 'holding' is not a bool")
		}
		p2 := false
		if p2Val, ok := action.get("player_2"); ok {
			p2, _ = p2Val.toBool()
		}

		x := float32(action.f64Field("x_position"))
		yAccel := float32(action.f64Field("y_vel"))
		rot := float32(action.f64Field("rotation"))

		if p2 {
			r.processActionP2(time, buttonFromDown(down), uint32(frame))
			r.extendedP2(down, uint32(frame), x, 0, yAccel, rot)
		} else {
			r.processActionP1(time, buttonFromDown(down), uint32(frame))
			r.extendedP1(down, uint32(frame), x, 0, yAccel, rot)
		}
	}
	return nil
}
