package gdr2

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyReplay(t *testing.T) {
	replay := New()
	data, err := replay.Export()
	require.NoError(t, err)

	imported, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, 240.0, imported.Framerate)
	assert.Equal(t, "", imported.Author)
	assert.Equal(t, "", imported.Description)
	assert.Empty(t, imported.Inputs)
	assert.Empty(t, imported.Deaths)
}

func TestBasicMetadata(t *testing.T) {
	replay := New()
	replay.Author = "andarian"
	replay.Description = "Test replay"
	replay.Duration = 12.5
	replay.GameVersion = 22074
	replay.Framerate = 360.0
	replay.Seed = 42
	replay.Coins = 3
	replay.LDM = true
	replay.Platformer = true

	data, err := replay.Export()
	require.NoError(t, err)
	imported, err := Import(data)
	require.NoError(t, err)

	assert.Equal(t, "andarian", imported.Author)
	assert.Equal(t, "Test replay", imported.Description)
	assert.Equal(t, float32(12.5), imported.Duration)
	assert.Equal(t, int32(22074), imported.GameVersion)
	assert.Equal(t, 360.0, imported.Framerate)
	assert.Equal(t, int32(42), imported.Seed)
	assert.Equal(t, int32(3), imported.Coins)
	assert.True(t, imported.LDM)
	assert.True(t, imported.Platformer)
}

func TestBotInfo(t *testing.T) {
	replay := New()
	replay.BotInfo = Bot{Name: "ReplayBot", Version: 2}

	data, err := replay.Export()
	require.NoError(t, err)
	imported, err := Import(data)
	require.NoError(t, err)

	assert.Equal(t, "ReplayBot", imported.BotInfo.Name)
	assert.Equal(t, int32(2), imported.BotInfo.Version)
}

func TestLevelInfo(t *testing.T) {
	replay := New()
	replay.LevelInfo = Level{ID: 128, Name: "Stereo Madness"}

	data, err := replay.Export()
	require.NoError(t, err)
	imported, err := Import(data)
	require.NoError(t, err)

	assert.Equal(t, uint32(128), imported.LevelInfo.ID)
	assert.Equal(t, "Stereo Madness", imported.LevelInfo.Name)
}

func TestInputsPlatformer(t *testing.T) {
	replay := New()
	replay.Platformer = true // exercise the button bits

	replay.Inputs = append(replay.Inputs,
		NewInput(60, 1, false, true),  // jump press at frame 60
		NewInput(90, 1, false, false), // jump release at frame 90
		NewInput(75, 2, true, true),   // left press at frame 75
		NewInput(120, 2, true, false)) // left release at frame 120

	data, err := replay.Export()
	require.NoError(t, err)
	imported, err := Import(data)
	require.NoError(t, err)

	require.Len(t, imported.Inputs, 4)

	// inputs come back sorted by frame
	assert.Equal(t, uint64(60), imported.Inputs[0].Frame)
	assert.Equal(t, uint64(75), imported.Inputs[1].Frame)
	assert.Equal(t, uint64(90), imported.Inputs[2].Frame)
	assert.Equal(t, uint64(120), imported.Inputs[3].Frame)

	var p1, p2 []Input
	for _, in := range imported.Inputs {
		if in.Player2 {
			p2 = append(p2, in)
		} else {
			p1 = append(p1, in)
		}
	}
	require.Len(t, p1, 2)
	assert.Equal(t, uint8(1), p1[0].Button)
	assert.True(t, p1[0].Down)
	assert.Equal(t, uint8(1), p1[1].Button)
	assert.False(t, p1[1].Down)

	require.Len(t, p2, 2)
	assert.Equal(t, uint8(2), p2[0].Button)
	assert.True(t, p2[0].Down)
	assert.Equal(t, uint8(2), p2[1].Button)
	assert.False(t, p2[1].Down)
}

func TestInputsNonPlatformer(t *testing.T) {
	replay := New()
	replay.Platformer = false

	// button identity is lost without platformer mode; everything
	// decodes as the jump button
	replay.Inputs = append(replay.Inputs,
		NewInput(60, 2, false, true),
		NewInput(90, 3, true, true))

	data, err := replay.Export()
	require.NoError(t, err)
	imported, err := Import(data)
	require.NoError(t, err)

	require.Len(t, imported.Inputs, 2)
	assert.Equal(t, uint8(1), imported.Inputs[0].Button)
	assert.Equal(t, uint8(1), imported.Inputs[1].Button)
}

func TestDeaths(t *testing.T) {
	replay := New()
	replay.Deaths = []uint64{100, 250, 500, 750}

	data, err := replay.Export()
	require.NoError(t, err)
	imported, err := Import(data)
	require.NoError(t, err)

	assert.Equal(t, []uint64{100, 250, 500, 750}, imported.Deaths)
}

func TestInvalidMagic(t *testing.T) {
	_, err := Import([]byte("XYZ rest of the data"))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestInvalidVersion(t *testing.T) {
	replay := New()
	data, err := replay.Export()
	require.NoError(t, err)
	data[3] = 99 // version varint sits right after the magic

	_, err = Import(data)
	var verr *UnsupportedVersionError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, int32(99), verr.Version)
}

func TestVarintEncoding(t *testing.T) {
	numbers := []int32{0, 1, 127, 128, 16383, 16384, 2097151, 2097152}
	byteLens := []int{1, 1, 1, 2, 2, 3, 3, 4}

	for i, num := range numbers {
		w := NewWriter()
		w.Varint(num)
		assert.Len(t, w.Data(), byteLens[i], "varint(%d)", num)
	}

	w := NewWriter()
	for _, num := range numbers {
		w.Varint(num)
	}
	r := NewReader(w.Data())
	for _, expected := range numbers {
		got, err := r.Varint()
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}

func TestVarintTooLong(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	_, err := r.Varint()
	var derr *InvalidDataError
	assert.True(t, errors.As(err, &derr))
}

func TestStringEncoding(t *testing.T) {
	strs := []string{
		"",
		"Hello",
		"Test 123",
		"Special chars: !@#$%^&*()",
		"Unicode: 🎮🎲🎯",
	}

	w := NewWriter()
	for _, s := range strs {
		w.String(s)
	}
	r := NewReader(w.Data())
	for _, expected := range strs {
		got, err := r.String()
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}

func TestStringInvalidUTF8(t *testing.T) {
	r := NewReader([]byte{2, 0xFF, 0xFE})
	_, err := r.String()
	var derr *InvalidDataError
	assert.True(t, errors.As(err, &derr))
}

func TestFileIO(t *testing.T) {
	replay := New()
	replay.Author = "andarian"
	replay.Description = "File I/O test"
	replay.Inputs = append(replay.Inputs, NewInput(30, 1, false, true))
	replay.Deaths = append(replay.Deaths, 100)

	path := filepath.Join(t.TempDir(), "test_replay.gdr2")
	require.NoError(t, replay.ExportToFile(path))

	imported, err := ImportFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "andarian", imported.Author)
	assert.Equal(t, "File I/O test", imported.Description)
	assert.Len(t, imported.Inputs, 1)
	assert.Len(t, imported.Deaths, 1)
}

func TestPlatformerButtons(t *testing.T) {
	replay := New()
	replay.Platformer = true

	replay.Inputs = append(replay.Inputs,
		NewInput(30, 2, false, true), // left
		NewInput(60, 3, false, true), // right
		NewInput(90, 1, false, true)) // jump

	data, err := replay.Export()
	require.NoError(t, err)
	imported, err := Import(data)
	require.NoError(t, err)

	assert.True(t, imported.Platformer)
	require.Len(t, imported.Inputs, 3)
	assert.Equal(t, uint8(2), imported.Inputs[0].Button)
	assert.Equal(t, uint8(3), imported.Inputs[1].Button)
	assert.Equal(t, uint8(1), imported.Inputs[2].Button)
}
