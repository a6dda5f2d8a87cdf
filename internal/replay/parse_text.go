package replay

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Line-oriented plaintext formats.

// parseAmethyst parses .thyst files: four count-prefixed blocks of raw
// action times (p1 clicks, p1 releases, p2 clicks, p2 releases),
// concatenated and replayed in time order.
func (r *Replay) parseAmethyst(data []byte) error {
	lines := strings.Split(string(data), "\n")
	pos := 0
	next := func() (string, error) {
		if pos >= len(lines) {
			return "", ErrUnexpectedEOF
		}
		line := lines[pos]
		pos++
		return line, nil
	}

	type amethystAction struct {
		player  Player
		isClick bool
		time    float64
	}
	var actions []amethystAction

	readBlock := func(player Player, isClick bool) error {
		countLine, err := next()
		if err != nil {
			return err
		}
		count, err := strconv.Atoi(strings.TrimSpace(countLine))
		if err != nil {
			return invalidData("amethyst: bad action count: %v", err)
		}
		for i := 0; i < count; i++ {
			timeLine, err := next()
			if err != nil {
				return err
			}
			time, err := strconv.ParseFloat(strings.TrimSpace(timeLine), 64)
			if err != nil {
				return invalidData("amethyst: bad action time: %v", err)
			}
			actions = append(actions, amethystAction{player: player, isClick: isClick, time: time})
		}
		return nil
	}

	if err := readBlock(PlayerOne, true); err != nil {
		return err
	}
	if err := readBlock(PlayerOne, false); err != nil {
		return err
	}
	if err := readBlock(PlayerTwo, true); err != nil {
		return err
	}
	if err := readBlock(PlayerTwo, false); err != nil {
		return err
	}

	sort.Slice(actions, func(i, j int) bool { return actions[i].time < actions[j].time })

	for _, a := range actions {
		frame := uint32(a.time * r.FPS)
		if a.player == PlayerOne {
			r.processActionP1(a.time, buttonFromDown(a.isClick), frame)
			r.extendedP1(a.isClick, frame, 0, 0, 0, 0)
		} else {
			r.processActionP2(a.time, buttonFromDown(a.isClick), frame)
			r.extendedP2(a.isClick, frame, 0, 0, 0, 0)
		}
	}
	return nil
}

// parsePlainText parses converter-generated .txt replays: the first
// line is the FPS, each following line is "frame down button player".
func (r *Replay) parsePlainText(data []byte) error {
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 {
		return ErrUnexpectedEOF
	}
	fps, err := strconv.ParseFloat(strings.TrimSpace(lines[0]), 64)
	if err != nil {
		return invalidData("plaintext: bad fps line: %v", err)
	}
	r.FPS = r.getFPS(fps)

	for i, line := range lines[1:] {
		fields := strings.Split(strings.TrimSpace(line), " ")
		if len(fields) < 4 {
			slog.Warn("plaintext: short line, skipping", "line", i)
			continue
		}
		frame, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return invalidData("plaintext: bad frame: %v", err)
		}
		down, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			return invalidData("plaintext: bad down flag: %v", err)
		}
		button, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			return invalidData("plaintext: bad button: %v", err)
		}
		p1Flag, err := strconv.ParseUint(fields[3], 10, 8)
		if err != nil {
			return invalidData("plaintext: bad player flag: %v", err)
		}

		time := frame / r.FPS
		b := buttonFromIndex(int32(button), down == 1)
		p2 := p1Flag == 0
		if p2 {
			r.processActionP2(time, b, uint32(frame))
			r.extendedP2(down == 1, uint32(frame), 0, 0, 0, 0)
		} else {
			r.processActionP1(time, b, uint32(frame))
			r.extendedP1(down == 1, uint32(frame), 0, 0, 0, 0)
		}
	}
	return nil
}

// parseXbot parses xBot Frame replays: first line FPS, second line the
// literal "frames", then "state frame" per line where state is
// 0/1 = p1 release/down and 2/3 = p2 release/down.
func (r *Replay) parseXbot(data []byte) error {
	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 {
		return ErrUnexpectedEOF
	}
	fps, err := strconv.ParseUint(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return invalidData("xbot: bad fps line: %v", err)
	}
	r.FPS = r.getFPS(float64(fps))

	if strings.TrimSpace(lines[1]) != "frames" {
		return invalidData("xbot: only frame replays are supported")
	}

	for i, line := range lines[2:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(strings.TrimSpace(line), " ")
		if len(fields) < 2 {
			return invalidData("xbot: short line %d", i+1)
		}
		state, err := strconv.ParseUint(fields[0], 10, 8)
		if err != nil {
			return invalidData("xbot: bad state at line %d: %v", i+1, err)
		}
		frame, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return invalidData("xbot: bad frame at line %d: %v", i+1, err)
		}

		player2 := state > 1
		down := state%2 == 1
		time := float64(frame) / r.FPS

		if player2 {
			r.processActionP2(time, buttonFromDown(down), uint32(frame))
			r.extendedP2(down, uint32(frame), 0, 0, 0, 0)
		} else {
			r.processActionP1(time, buttonFromDown(down), uint32(frame))
			r.extendedP1(down, uint32(frame), 0, 0, 0, 0)
		}
	}
	return nil
}

// parseXdBot parses xdBot .xd replays: pipe-delimited lines of
// frame|holding|button|player1|pos_only|… with an optional leading
// FPS-only line.
func (r *Replay) parseXdBot(data []byte) error {
	r.FPS = r.getFPS(240.0)

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")

		// a lone value is the fps
		if len(fields) == 1 {
			fps, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return invalidData("xdbot: bad fps: %v", err)
			}
			r.FPS = r.getFPS(fps)
			continue
		}
		if len(fields) < 4 {
			return invalidData("xdbot: short line")
		}

		frame, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return invalidData("xdbot: bad frame: %v", err)
		}
		pushFlag, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			return invalidData("xdbot: bad holding flag: %v", err)
		}
		button, err := strconv.ParseUint(fields[2], 10, 8)
		if err != nil {
			return invalidData("xdbot: bad button: %v", err)
		}
		p1Flag, err := strconv.ParseUint(fields[3], 10, 8)
		if err != nil {
			return invalidData("xdbot: bad player flag: %v", err)
		}

		var x, y float32
		if len(fields) > 5 {
			if v, err := strconv.ParseFloat(fields[5], 32); err == nil {
				x = float32(v)
			}
		}
		if len(fields) > 6 {
			if v, err := strconv.ParseFloat(fields[6], 32); err == nil {
				y = float32(v)
			}
		}

		push := pushFlag == 1
		b := buttonFromIndex(int32(button), push)
		time := float64(frame) / r.FPS
		if p1Flag == 1 {
			r.processActionP1(time, b, uint32(frame))
			r.extendedP1(push, uint32(frame), x, y, 0, 0)
		} else {
			r.processActionP2(time, b, uint32(frame))
			r.extendedP2(push, uint32(frame), x, y, 0, 0)
		}
	}
	return nil
}
