package replay

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"

	"github.com/kyv0/clickbot/internal/gdr2"
)

// testWriter builds synthetic replay files for the binary parsers.
type testWriter struct {
	buf bytes.Buffer
}

func (w *testWriter) raw(b ...byte) *testWriter { w.buf.Write(b); return w }
func (w *testWriter) str(s string) *testWriter  { w.buf.WriteString(s); return w }
func (w *testWriter) u8(v uint8) *testWriter    { w.buf.WriteByte(v); return w }
func (w *testWriter) u16(v uint16) *testWriter {
	binary.Write(&w.buf, binary.LittleEndian, v)
	return w
}
func (w *testWriter) u32(v uint32) *testWriter {
	binary.Write(&w.buf, binary.LittleEndian, v)
	return w
}
func (w *testWriter) u32be(v uint32) *testWriter {
	binary.Write(&w.buf, binary.BigEndian, v)
	return w
}
func (w *testWriter) u64(v uint64) *testWriter {
	binary.Write(&w.buf, binary.LittleEndian, v)
	return w
}
func (w *testWriter) f32(v float32) *testWriter {
	binary.Write(&w.buf, binary.LittleEndian, v)
	return w
}
func (w *testWriter) f64(v float64) *testWriter {
	binary.Write(&w.buf, binary.LittleEndian, v)
	return w
}
func (w *testWriter) varint(v uint64) *testWriter {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return w
		}
	}
}
func (w *testWriter) pad(n int) *testWriter {
	w.buf.Write(make([]byte, n))
	return w
}
func (w *testWriter) data() []byte { return w.buf.Bytes() }

func newTestReplay(opts ...Option) *Replay {
	base := []Option{
		WithRand(testRand()),
		WithSortActions(true),
		WithExtended(true),
	}
	return New(append(base, opts...)...)
}

func parseData(t *testing.T, format Format, data []byte, opts ...Option) *Replay {
	t.Helper()
	r := newTestReplay(opts...)
	require.NoError(t, r.Parse(format, bytes.NewReader(data)))
	return r
}

// press/release pair assertions shared by the flat binary formats
func assertPressRelease(t *testing.T, r *Replay, fps float64, pressFrame, releaseFrame uint32) {
	t.Helper()
	require.Len(t, r.Actions, 2)
	assert.InDelta(t, fps, r.FPS, 1e-9)
	assert.Equal(t, pressFrame, r.Actions[0].Frame)
	assert.True(t, r.Actions[0].Click.IsClick())
	assert.InDelta(t, float64(pressFrame)/fps, r.Actions[0].Time, 1e-9)
	assert.Equal(t, releaseFrame, r.Actions[1].Frame)
	assert.True(t, r.Actions[1].Click.IsRelease())
	assert.InDelta(t, float64(releaseFrame)/fps, r.Duration, 1e-9)
}

// ── Dispatcher ──────────────────────────────────────────

func TestGuessFormat(t *testing.T) {
	cases := map[string]Format{
		"a.json":      FormatTasBot,
		"a.mhr.json":  FormatMhr,
		"a.echo.json": FormatEcho,
		"a.gdr.json":  FormatGdr,
		"a.mhr":       FormatMhrBin,
		"a.zbf":       FormatZbot,
		"a.replay":    FormatObot,
		"a.ybf":       FormatYbotf,
		"a.echo":      FormatEcho,
		"a.thyst":     FormatAmethyst,
		"a.osr":       FormatOsuReplay,
		"a.macro":     FormatGdmo,
		"a.replaybot": FormatReplayBot,
		"a.rsh":       FormatRush,
		"a.kd":        FormatKdbot,
		"a.txt":       FormatTxt,
		"a.re":        FormatReplayEngine,
		"a.ddhor":     FormatDdhor,
		"a.xbot":      FormatXbot,
		"a.ybot":      FormatYbot2,
		"a.xd":        FormatXdBot,
		"a.gdr":       FormatGdr,
		"a.qb":        FormatQbot,
		"a.rbot":      FormatRbot,
		"a.zr":        FormatZephyrus,
		"a.re2":       FormatReplayEngine2,
		"a.re3":       FormatReplayEngine3,
		"a.slc":       FormatSilicate,
		"a.slc2":      FormatSilicate2,
		"a.gdr2":      FormatGdr2,
		"a.uv":        FormatUvBot,
		"a.tcm":       FormatTcBot,
	}
	for name, want := range cases {
		got, err := GuessFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := GuessFormat("whatever.xyz")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = GuessFormat("noextension")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

// ── Canonicalization ────────────────────────────────────

func TestDuplicateTransitionsFiltered(t *testing.T) {
	// two presses in a row for the same player collapse to one
	w := (&testWriter{}).f32(60).u32(3)
	w.u32(10).u32(0b10) // p1 press
	w.u32(20).u32(0b10) // p1 press again (dropped)
	w.u32(30).u32(0b00) // p1 release
	r := parseData(t, FormatYbotf, w.data())

	require.Len(t, r.Actions, 2)
	assert.Equal(t, uint32(10), r.Actions[0].Frame)
	assert.Equal(t, uint32(30), r.Actions[1].Frame)
}

func TestLeadingReleaseDiscarded(t *testing.T) {
	w := (&testWriter{}).f32(60).u32(2)
	w.u32(10).u32(0b00) // release before any press
	w.u32(20).u32(0b10) // press
	r := parseData(t, FormatYbotf, w.data())

	require.Len(t, r.Actions, 1)
	assert.True(t, r.Actions[0].Click.IsClick())
}

func TestSwapPlayers(t *testing.T) {
	w := (&testWriter{}).f32(60).u32(1)
	w.u32(10).u32(0b10) // p1 press
	r := parseData(t, FormatYbotf, w.data(), WithSwapPlayers(true))

	require.Len(t, r.Actions, 1)
	assert.Equal(t, PlayerTwo, r.Actions[0].Player)
}

func TestOverrideFPS(t *testing.T) {
	w := (&testWriter{}).f32(60).u32(1)
	w.u32(120).u32(0b10)
	r := parseData(t, FormatYbotf, w.data(), WithOverrideFPS(240))

	assert.Equal(t, 240.0, r.FPS)
	assert.InDelta(t, 0.5, r.Actions[0].Time, 1e-9)
}

func TestSortAndDuration(t *testing.T) {
	// unordered rows sort by time, duration = last action time
	w := (&testWriter{}).f32(100).u32(2)
	w.u32(50).u32(0b10)
	w.u32(10).u32(0b11) // p2 press, earlier
	r := parseData(t, FormatYbotf, w.data())

	require.Len(t, r.Actions, 2)
	assert.True(t, r.Actions[0].Time <= r.Actions[1].Time)
	assert.Equal(t, r.Actions[len(r.Actions)-1].Time, r.Duration)
}

func TestEmptyReplayDuration(t *testing.T) {
	w := (&testWriter{}).f32(60).u32(0)
	r := parseData(t, FormatYbotf, w.data())
	assert.Empty(t, r.Actions)
	assert.Zero(t, r.Duration)
}

func TestPlayer2ExtendedCarriesX(t *testing.T) {
	// p2 extended actions with x=0 inherit the last p1 x position
	r := newTestReplay()
	r.FPS = 60
	r.processActionP1(0.1, ButtonPush, 6)
	r.extendedP1(true, 6, 42.5, 0, 0, 0)
	r.processActionP2(0.2, ButtonPush, 12)
	r.extendedP2(true, 12, 0, 0, 0, 0)

	require.Len(t, r.Extended, 2)
	assert.Equal(t, float32(42.5), r.Extended[1].X)
}

// ── Flat binary formats ─────────────────────────────────

func TestParseYbotf(t *testing.T) {
	w := (&testWriter{}).f32(240).u32(2)
	w.u32(120).u32(0b10) // p1 press
	w.u32(240).u32(0b00) // p1 release
	assertPressRelease(t, parseData(t, FormatYbotf, w.data()), 240, 120, 240)
}

func TestParseZbf(t *testing.T) {
	w := (&testWriter{}).f32(1.0 / 240.0).f32(1.0)
	w.u32(120).u8(0x31).u8(0x31) // p1 press
	w.u32(240).u8(0x30).u8(0x31) // p1 release
	assertPressRelease(t, parseData(t, FormatZbot, w.data()), 240, 120, 240)
}

func TestParseZbfZeroSpeedhack(t *testing.T) {
	w := (&testWriter{}).f32(1.0 / 240.0).f32(0)
	w.u32(120).u8(0x31).u8(0x31)
	r := parseData(t, FormatZbot, w.data())
	assert.InDelta(t, 240, r.FPS, 1e-6) // speedhack 0 falls back to 1
}

func TestParseMhrBin(t *testing.T) {
	w := (&testWriter{}).u32be(mhrBinMagic).pad(8) // offset 12
	w.u32(240).pad(12)                             // fps at 12, pad to 28
	w.u32(2)                                       // count at 28
	w.pad(2).u8(1).u8(0).u32(120).pad(24)          // p1 press
	w.pad(2).u8(0).u8(0).u32(240).pad(24)          // p1 release
	assertPressRelease(t, parseData(t, FormatMhrBin, w.data()), 240, 120, 240)
}

func TestParseMhrBinBadMagic(t *testing.T) {
	r := newTestReplay()
	err := r.Parse(FormatMhrBin, bytes.NewReader([]byte("nope nope nope nope")))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestParseEchoBin(t *testing.T) {
	w := (&testWriter{}).u32be(echoBinMagic).u32be(0) // non-debug
	w.pad(16)                                         // to offset 24
	w.f32(240).pad(20)                                // fps at 24, to offset 48
	w.u32(120).u8(1).u8(0)                            // p1 press
	w.u32(240).u8(0).u8(0)                            // p1 release
	assertPressRelease(t, parseData(t, FormatEcho, w.data()), 240, 120, 240)
}

func TestParseRush(t *testing.T) {
	w := (&testWriter{}).u16(240)
	w.u32(120).u8(0b01) // p1 press
	w.u32(240).u8(0b00) // p1 release
	assertPressRelease(t, parseData(t, FormatRush, w.data()), 240, 120, 240)
}

func TestParseKdbot(t *testing.T) {
	w := (&testWriter{}).f32(240)
	w.u32(120).u8(1).u8(0)
	w.u32(240).u8(0).u8(0)
	assertPressRelease(t, parseData(t, FormatKdbot, w.data()), 240, 120, 240)
}

func TestParseReplayBot(t *testing.T) {
	w := (&testWriter{}).str("RPLY").u8(2).u8(1).f32(240)
	w.u32(120).u8(0b01) // p1 press
	w.u32(240).u8(0b00) // p1 release
	assertPressRelease(t, parseData(t, FormatReplayBot, w.data()), 240, 120, 240)
}

func TestParseReplayBotBadVersion(t *testing.T) {
	w := (&testWriter{}).str("RPLY").u8(1).u8(1).f32(240)
	r := newTestReplay()
	err := r.Parse(FormatReplayBot, bytes.NewReader(w.data()))
	var verr *UnsupportedVersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Version)
}

func TestParseDdhor(t *testing.T) {
	w := (&testWriter{}).str("DDHR").u16(240).u32(2).u32(0)
	w.f32(120).u8(0) // p1 press (0 = down)
	w.f32(240).u8(1) // p1 release
	assertPressRelease(t, parseData(t, FormatDdhor, w.data()), 240, 120, 240)
}

func TestParseRbot(t *testing.T) {
	w := (&testWriter{}).u32(240).u32(2)
	w.u32(120).u8(1).u8(1) // p1 press (third byte is the p1 flag)
	w.u32(240).u8(0).u8(1) // p1 release
	assertPressRelease(t, parseData(t, FormatRbot, w.data()), 240, 120, 240)
}

func TestParseRbotGz(t *testing.T) {
	inner := (&testWriter{}).u32(240).u32(2)
	inner.u32(120).u8(1).u8(0) // p1 press (third byte is the p2 flag)
	inner.u32(240).u8(0).u8(0) // p1 release
	inner.u32(1)               // one position row
	inner.u32(120).u8(0).f32(1.5).f32(2.5).f32(90)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(inner.data())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r := parseData(t, FormatRbot, gz.Bytes())
	assertPressRelease(t, r, 240, 120, 240)
	require.Len(t, r.Extended, 1)
	assert.Equal(t, float32(1.5), r.Extended[0].X)
	assert.True(t, r.Extended[0].Down) // hold state comes from the press
}

func TestParseZephyrus(t *testing.T) {
	w := (&testWriter{}).u16(zephyrusMagic).u8(2).u32(240).u32(2).u32(1)
	w.u32(120).u8(0b01010000) // p1 push, jump button
	w.u32(240).u8(0b00010000) // p1 release
	// one frame fix with p2 data present
	w.u32(120).f32(1).f32(2).f64(3).f32(4).u8(1).f32(5).f32(6).f64(7).f32(8)

	r := parseData(t, FormatZephyrus, w.data())
	assertPressRelease(t, r, 240, 120, 240)
	require.Len(t, r.Extended, 2)
	assert.False(t, r.Extended[0].Player2)
	assert.True(t, r.Extended[1].Player2)
}

func TestParseZephyrusBadVersion(t *testing.T) {
	w := (&testWriter{}).u16(zephyrusMagic).u8(3).u32(240).u32(0).u32(0)
	r := newTestReplay()
	err := r.Parse(FormatZephyrus, bytes.NewReader(w.data()))
	var verr *UnsupportedVersionError
	assert.ErrorAs(t, err, &verr)
}

func TestParseSlc(t *testing.T) {
	w := (&testWriter{}).f64(240).u32(2)
	w.u32(120<<4 | 0b0001) // p1 jump press
	w.u32(240 << 4)        // p1 jump release
	w.u64(12345)           // seed
	assertPressRelease(t, parseData(t, FormatSilicate, w.data()), 240, 120, 240)
}

func TestParseSlcPlatformerButtons(t *testing.T) {
	w := (&testWriter{}).f64(240).u32(2)
	w.u32(120<<4 | 0b0101) // left press (button 2)
	w.u32(240<<4 | 0b0100) // left release
	r := parseData(t, FormatSilicate, w.data())
	require.Len(t, r.Actions, 2)
	assert.Equal(t, DirLeft, r.Actions[0].Click.Dir)
}

func TestParseRe2(t *testing.T) {
	w := (&testWriter{}).str("RE2").u32(2)
	w.u32(120).u8(1).pad(3).u32(1).u8(0).pad(3) // p1 jump press
	w.u32(240).u8(0).pad(3).u32(1).u8(0).pad(3) // p1 jump release
	assertPressRelease(t, parseData(t, FormatReplayEngine2, w.data()), 240, 120, 240)
}

func TestParseReOldLayout(t *testing.T) {
	w := (&testWriter{}).f32(240).u32(2).u32(2)
	// physics records
	w.u32(120).f32(1).f32(2).f32(3).f64(4).u8(0).pad(7)
	w.u32(240).f32(5).f32(6).f32(7).f64(8).u8(0).pad(7)
	// 8-byte action records
	w.u32(120).u8(1).u8(0).pad(2)
	w.u32(240).u8(0).u8(0).pad(2)
	r := parseData(t, FormatReplayEngine, w.data())
	assertPressRelease(t, r, 240, 120, 240)
	require.Len(t, r.Extended, 2)
	assert.Equal(t, float32(1), r.Extended[0].X)
}

func TestParseReNewLayout(t *testing.T) {
	w := (&testWriter{}).f32(240).u32(2).u32(2)
	w.u32(120).f32(1).f32(2).f32(3).f64(4).u8(0).pad(7)
	w.u32(240).f32(5).f32(6).f32(7).f64(8).u8(0).pad(7)
	// 16-byte action records with a button field
	w.u32(120).u8(1).pad(3).u32(2).u8(0).pad(3) // left press
	w.u32(240).u8(0).pad(3).u32(2).u8(0).pad(3)
	r := parseData(t, FormatReplayEngine, w.data())
	require.Len(t, r.Actions, 2)
	assert.Equal(t, DirLeft, r.Actions[0].Click.Dir)
}

func TestParseRe3(t *testing.T) {
	w := (&testWriter{}).f32(240)
	w.u32(1).u32(0).u32(2).u32(0) // p1 physics, p1 actions only
	w.u32(120).f32(1).f32(2).f32(3).f64(4).u8(0).pad(7)
	w.u32(120).u8(1).pad(3).u32(1).u8(1).pad(3)
	w.u32(240).u8(0).pad(3).u32(1).u8(1).pad(3)
	r := parseData(t, FormatReplayEngine3, w.data())
	assertPressRelease(t, r, 240, 120, 240)
	require.Len(t, r.Extended, 1)
	assert.Equal(t, float32(1), r.Extended[0].X)
}

func TestParseGdmo(t *testing.T) {
	w := (&testWriter{}).f32(240).u32(2).u32(0)
	w.u8(1).u8(0).pad(2).u32(120).f64(9.5).f32(1).f32(2) // p1 press
	w.u8(0).u8(0).pad(2).u32(240).f64(0).f32(3).f32(4)   // p1 release
	r := parseData(t, FormatGdmo, w.data())
	assertPressRelease(t, r, 240, 120, 240)
	require.Len(t, r.Extended, 2)
	assert.Equal(t, float32(9.5), r.Extended[0].YAccel)
}

func TestParseGdmo22(t *testing.T) {
	w := (&testWriter{}).u32(2)
	w.f64(0.5).u32(32).u8(1).u8(1).pad(2) // p1 press at 0.5s
	w.f64(1.0).u32(32).u8(0).u8(1).pad(2) // p1 release at 1.0s
	// one 56-byte correction block
	w.u32(1)
	w.f64(0.5).u8(1).pad(7)           // time + player1
	w.f64(3).f64(0)                   // y velocity, x velocity
	w.f32(10).f32(20).f32(0).f32(0)   // position + node position
	w.f32(45).pad(4)                  // rotation + trailing pad
	r := parseData(t, FormatGdmo, w.data())

	require.Len(t, r.Actions, 2)
	assert.Equal(t, 240.0, r.FPS)
	assert.InDelta(t, 0.5, r.Actions[0].Time, 1e-9)
	require.Len(t, r.Extended, 1)
	assert.Equal(t, float32(10), r.Extended[0].X)
	assert.Equal(t, float32(45), r.Extended[0].Rot)
}

func TestParseUvBot(t *testing.T) {
	w := (&testWriter{}).str("UVBOT").u8(2).f32(240)
	w.u32(2).u32(1).u32(0)
	w.u64(120).u8(1) // p1 jump press
	w.u64(240).u8(0) // p1 jump release
	w.u64(120).f32(1).f32(2).f32(3).f64(4)
	w.str("TOBVU")
	r := parseData(t, FormatUvBot, w.data())
	assertPressRelease(t, r, 240, 120, 240)
	require.Len(t, r.Extended, 1)
	assert.Equal(t, float32(1), r.Extended[0].X)
}

func TestParseUvBotBadTrailing(t *testing.T) {
	w := (&testWriter{}).str("UVBOT").u8(2).f32(240)
	w.u32(0).u32(0).u32(0)
	w.str("WRONG")
	r := newTestReplay()
	err := r.Parse(FormatUvBot, bytes.NewReader(w.data()))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

// ── Serialized-object formats ───────────────────────────

func TestParseObot2(t *testing.T) {
	w := (&testWriter{}).f32(240).f32(240).u32(1).u64(0).u64(3)
	w.u32(1).u32(120).u32(obot2Player1Down)
	w.u32(1).u32(240).u32(obot2Player1Up)
	w.u32(1).u32(300).u32(obot2None)
	assertPressRelease(t, parseData(t, FormatObot, w.data()), 240, 120, 240)
}

func TestParseObot2FpsChange(t *testing.T) {
	w := (&testWriter{}).f32(240).f32(240).u32(1).u64(0).u64(3)
	w.u32(1).u32(120).u32(obot2Player1Down)
	w.u32(1).u32(0).u32(obot2FpsChange).f32(480)
	w.u32(1).u32(480).u32(obot2Player1Up)
	r := parseData(t, FormatObot, w.data())
	require.Len(t, r.Actions, 2)
	assert.Equal(t, 480.0, r.FPS)
	require.NotEmpty(t, r.Extended)
	require.NotNil(t, r.Extended[0].FPSChange)
	assert.Equal(t, 480.0, *r.Extended[0].FPSChange)
}

func TestParseObot3(t *testing.T) {
	// not valid obot2, so the dispatcher falls through to obot3
	w := (&testWriter{}).f32(240).f32(240)
	w.varint(2)
	w.varint(120).varint(obot3Player1Down)
	w.varint(240).varint(obot3Player1Up)
	assertPressRelease(t, parseData(t, FormatObot, w.data()), 240, 120, 240)
}

func TestParseQbot(t *testing.T) {
	w := (&testWriter{}).f32(240).f32(240).varint(0).varint(2)
	// press with physics
	w.varint(120).f64(0.5).varint(qbotActionButton).u8(0).u8(1).varint(0)
	w.f64(0).f64(3.5).u8(1).f32(10).f32(20).f32(45)
	// release without physics
	w.varint(240).f64(1.0).varint(qbotActionButton).u8(0).u8(0).varint(0)
	w.f64(0).f64(0).u8(0)
	r := parseData(t, FormatQbot, w.data())

	require.Len(t, r.Actions, 2)
	assert.Equal(t, 240.0, r.FPS)
	// the stored time wins over the frame-derived one
	assert.InDelta(t, 0.5, r.Actions[0].Time, 1e-9)
	require.Len(t, r.Extended, 2)
	assert.Equal(t, float32(10), r.Extended[0].X)
	assert.Equal(t, float32(3.5), r.Extended[0].YAccel)
}

// ── Event-stream formats ────────────────────────────────

func TestParseYbot2(t *testing.T) {
	w := (&testWriter{}).str("ybot").u32(1).u32(36).u32(0)
	w.u64(1700000000) // date
	w.u64(1)          // presses
	w.u64(241)        // frames
	w.f32(240)        // fps
	w.u64(1)          // total presses
	// actions: p1 jump press at frame 120, release at 240
	w.varint(120<<4 | 0b0111)
	w.varint(120<<4 | 0b0101)
	assertPressRelease(t, parseData(t, FormatYbot2, w.data()), 240, 120, 240)
}

func TestParseYbot2FpsChange(t *testing.T) {
	w := (&testWriter{}).str("ybot").u32(1).u32(36).u32(0)
	w.u64(0).u64(0).u64(0).f32(240).u64(0)
	w.varint(120<<4 | 0b0111)        // p1 press
	w.varint(ybot2FlagFPS).f32(360)  // fps change at same frame
	w.varint(120<<4 | 0b0101)        // p1 release at frame 240
	r := parseData(t, FormatYbot2, w.data())
	require.Len(t, r.Actions, 2)
	assert.Equal(t, 360.0, r.FPS)
	require.NotEmpty(t, r.Extended)
	require.NotNil(t, r.Extended[0].FPSChange)
}

func TestParseSlc2(t *testing.T) {
	w := (&testWriter{}).str("SILL").f64(240)
	w.u64(777).pad(slc2MetaSize - 8)
	w.u64(2)
	w.u64(120).u8(slc2InputPlayer).u8(0b1001) // p1 left press (button 2)
	w.u64(240).u8(slc2InputPlayer).u8(0b1000) // p1 left release
	r := parseData(t, FormatSilicate2, w.data())
	require.Len(t, r.Actions, 2)
	assert.Equal(t, 240.0, r.FPS)
	assert.Equal(t, DirLeft, r.Actions[0].Click.Dir)
}

func TestParseSlc2ViaSlcExtension(t *testing.T) {
	// a v2 file with the .slc extension dispatches by magic
	w := (&testWriter{}).str("SILL").f64(240)
	w.u64(0).pad(slc2MetaSize - 8)
	w.u64(1)
	w.u64(120).u8(slc2InputPlayer).u8(0b0001)
	r := parseData(t, FormatSilicate, w.data())
	require.Len(t, r.Actions, 1)
}

func TestParseTcm(t *testing.T) {
	w := (&testWriter{}).str("TCM").varint(1).f64(240).varint(3)
	w.varint(120).varint(tcmInputVanilla).u8(0b0001) // p1 press
	w.varint(180).varint(tcmInputTPS).f64(480)       // tps change
	w.varint(240).varint(tcmInputVanilla).u8(0b0000) // p1 release
	r := parseData(t, FormatTcBot, w.data())
	require.Len(t, r.Actions, 2)
	assert.Equal(t, 480.0, r.FPS)
}

// ── Plaintext formats ───────────────────────────────────

func TestParsePlainText(t *testing.T) {
	data := []byte("240\n120 1 1 1\n240 0 1 1\n")
	assertPressRelease(t, parseData(t, FormatTxt, data), 240, 120, 240)
}

func TestParseXbot(t *testing.T) {
	data := []byte("240\nframes\n1 120\n0 240\n")
	assertPressRelease(t, parseData(t, FormatXbot, data), 240, 120, 240)
}

func TestParseXbotNotFrames(t *testing.T) {
	r := newTestReplay()
	err := r.Parse(FormatXbot, bytes.NewReader([]byte("240\npositions\n")))
	var derr *InvalidDataError
	assert.ErrorAs(t, err, &derr)
}

func TestParseXdBot(t *testing.T) {
	data := []byte("240\n120|1|1|1|0|1.5|2.5\n240|0|1|1|0|3.5|4.5\n")
	r := parseData(t, FormatXdBot, data)
	assertPressRelease(t, r, 240, 120, 240)
	require.Len(t, r.Extended, 2)
	assert.Equal(t, float32(1.5), r.Extended[0].X)
}

func TestParseAmethyst(t *testing.T) {
	data := []byte("2\n0.5\n1.5\n2\n1.0\n2.0\n0\n0\n")
	r := parseData(t, FormatAmethyst, data)

	require.Len(t, r.Actions, 4)
	assert.InDelta(t, 0.5, r.Actions[0].Time, 1e-9)
	assert.True(t, r.Actions[0].Click.IsClick())
	assert.True(t, r.Actions[1].Click.IsRelease())
	assert.InDelta(t, 2.0, r.Duration, 1e-9)
}

// ── JSON formats ────────────────────────────────────────

func TestParseTasBot(t *testing.T) {
	data := []byte(`{
		"fps": 240,
		"macro": [
			{"frame": 120, "player_1": {"click": 1, "x_position": 1.5}, "player_2": {"click": 0}},
			{"frame": 240, "player_1": {"click": 2}, "player_2": {"click": 0}}
		]
	}`)
	assertPressRelease(t, parseData(t, FormatTasBot, data), 240, 120, 240)
}

func TestParseTasBotSynthesizedRelease(t *testing.T) {
	// press after press synthesizes a release at the same timestamp
	data := []byte(`{
		"fps": 240,
		"macro": [
			{"frame": 120, "player_1": {"click": 1}, "player_2": {"click": 0}},
			{"frame": 240, "player_1": {"click": 1}, "player_2": {"click": 0}}
		]
	}`)
	r := parseData(t, FormatTasBot, data)
	require.Len(t, r.Actions, 3)
	assert.True(t, r.Actions[0].Click.IsClick())
	assert.True(t, r.Actions[1].Click.IsRelease())
	assert.Equal(t, uint32(240), r.Actions[1].Frame)
	assert.True(t, r.Actions[2].Click.IsClick())
}

func TestParseMhrJSON(t *testing.T) {
	data := []byte(`{
		"meta": {"fps": 240},
		"events": [
			{"frame": 120, "down": true, "a": 1.5, "x": 2.5, "y": 3.5, "r": 45},
			{"frame": 200},
			{"frame": 240, "down": false}
		]
	}`)
	r := parseData(t, FormatMhr, data)
	assertPressRelease(t, r, 240, 120, 240)
	require.Len(t, r.Extended, 2)
	assert.Equal(t, float32(1.5), r.Extended[0].YAccel)
	assert.Equal(t, float32(45), r.Extended[0].Rot)
}

func TestParseTasBotDetectsMhr(t *testing.T) {
	// a renamed .mhr.json parses through the tasbot entry point
	data := []byte(`{"meta": {"fps": 240}, "events": [{"frame": 120, "down": true}]}`)
	r := parseData(t, FormatTasBot, data)
	require.Len(t, r.Actions, 1)
	assert.Equal(t, 240.0, r.FPS)
}

func TestParseEchoOldJSON(t *testing.T) {
	data := []byte(`{
		"FPS": 240,
		"Starting Frame": 0,
		"Echo Replay": [
			{"Frame": 120, "Hold": true, "Player 2": false, "X Position": 1.5},
			{"Frame": 240, "Hold": false, "Player 2": false}
		]
	}`)
	assertPressRelease(t, parseData(t, FormatEcho, data), 240, 120, 240)
}

func TestParseEchoNewJSON(t *testing.T) {
	data := []byte(`{
		"fps": 240,
		"inputs": [
			{"frame": 120, "holding": true, "x_position": 1.5, "y_vel": 2.5},
			{"frame": 240, "holding": false}
		]
	}`)
	r := parseData(t, FormatEcho, data)
	assertPressRelease(t, r, 240, 120, 240)
	require.Len(t, r.Extended, 2)
	assert.Equal(t, float32(2.5), r.Extended[0].YAccel)
}

// ── GDR ─────────────────────────────────────────────────

func TestParseGdrJSON(t *testing.T) {
	data := []byte(`{
		"framerate": 240,
		"inputs": [
			{"frame": 120, "down": true, "2p": false, "btn": 1},
			{"frame": 240, "down": false, "2p": false, "btn": 1}
		]
	}`)
	assertPressRelease(t, parseData(t, FormatGdr, data), 240, 120, 240)
}

func TestParseGdrMsgpack(t *testing.T) {
	// {"framerate": 240.0, "inputs": [{"frame": 120, "down": true},
	//                                 {"frame": 240, "down": false}]}
	var w testWriter
	w.u8(0x82) // map with 2 entries
	w.u8(0xa9).str("framerate")
	w.u8(0xcb)
	binary.Write(&w.buf, binary.BigEndian, 240.0)
	w.u8(0xa6).str("inputs")
	w.u8(0x92) // array with 2 entries
	w.u8(0x82).u8(0xa5).str("frame").u8(0x78).u8(0xa4).str("down").u8(0xc3)
	w.u8(0x82).u8(0xa5).str("frame").u8(0xcc).u8(240).u8(0xa4).str("down").u8(0xc2)

	assertPressRelease(t, parseData(t, FormatGdr, w.data()), 240, 120, 240)
}

func TestParseGdr2(t *testing.T) {
	replay := gdr2.New()
	replay.Framerate = 240
	replay.Platformer = true
	replay.Inputs = append(replay.Inputs,
		gdr2.NewInput(120, 1, false, true),
		gdr2.NewInput(240, 1, false, false))
	data, err := replay.Export()
	require.NoError(t, err)

	assertPressRelease(t, parseData(t, FormatGdr2, data), 240, 120, 240)
}

func TestParseGdr2DiscardDeaths(t *testing.T) {
	replay := gdr2.New()
	replay.Framerate = 240
	replay.Deaths = []uint64{200}
	replay.Inputs = append(replay.Inputs,
		gdr2.NewInput(120, 1, false, true),
		gdr2.NewInput(150, 1, false, false),
		gdr2.NewInput(240, 1, false, true),
		gdr2.NewInput(300, 1, false, false))
	data, err := replay.Export()
	require.NoError(t, err)

	r := parseData(t, FormatGdr2, data, WithDiscardDeaths(true))
	require.Len(t, r.Actions, 2)
	assert.Equal(t, uint32(240), r.Actions[0].Frame)
}

// ── osu!replay ──────────────────────────────────────────

func TestParseOsr(t *testing.T) {
	body := "12|0|0|1,500|0|0|0,"
	var compressed bytes.Buffer
	zw, err := lzma.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = zw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	w := (&testWriter{}).pad(5) // mode + version
	w.u8(0).u8(0).u8(0)         // absent hash/name/hash strings
	w.pad(19)                   // hit counts, score, combo, fc
	w.u32(0)                    // mods
	w.u8(0)                     // absent life graph
	w.pad(8)                    // timestamp
	w.u32(uint32(compressed.Len()))
	w.raw(compressed.Bytes()...)

	r := parseData(t, FormatOsuReplay, w.data())
	assert.Equal(t, 1000.0, r.FPS)
	// p1 press at 12ms, synthetic p2 release, p1 release at 512ms
	require.NotEmpty(t, r.Actions)
	assert.InDelta(t, 0.012, r.Actions[0].Time, 1e-9)
	assert.True(t, r.Actions[0].Click.IsClick())
	last := r.Actions[len(r.Actions)-1]
	assert.InDelta(t, 0.512, last.Time, 1e-9)
}

func TestParseOsrDoubleTime(t *testing.T) {
	body := "300|0|0|1,"
	var compressed bytes.Buffer
	zw, err := lzma.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = zw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	w := (&testWriter{}).pad(5)
	w.u8(0).u8(0).u8(0)
	w.pad(19)
	w.u32(1 << 6) // double time
	w.u8(0)
	w.pad(8)
	w.u32(uint32(compressed.Len()))
	w.raw(compressed.Bytes()...)

	r := parseData(t, FormatOsuReplay, w.data())
	require.NotEmpty(t, r.Actions)
	assert.InDelta(t, 0.3/1.5, r.Actions[0].Time, 1e-9)
}
