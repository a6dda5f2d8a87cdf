package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm16WAV(rate uint32, channels uint16, samples []int16) []byte {
	var body bytes.Buffer
	for _, s := range samples {
		binary.Write(&body, binary.LittleEndian, s)
	}
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+body.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, rate)
	binary.Write(&buf, binary.LittleEndian, rate*uint32(channels)*2)
	binary.Write(&buf, binary.LittleEndian, channels*2)
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(body.Len()))
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func TestDecodeStereoWAV(t *testing.T) {
	samples := []int16{16384, -16384, 8192, -8192}
	path := filepath.Join(t.TempDir(), "stereo.wav")
	require.NoError(t, os.WriteFile(path, pcm16WAV(44100, 2, samples), 0o644))

	seg, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), seg.SampleRate)
	require.Len(t, seg.Frames, 2)
	assert.InDelta(t, 0.5, float64(seg.Frames[0].Left), 1e-3)
	assert.InDelta(t, -0.5, float64(seg.Frames[0].Right), 1e-3)
}

func TestDecodeMonoWAVDuplicates(t *testing.T) {
	samples := []int16{16384, -16384}
	path := filepath.Join(t.TempDir(), "mono.wav")
	require.NoError(t, os.WriteFile(path, pcm16WAV(48000, 1, samples), 0o644))

	seg, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), seg.SampleRate)
	require.Len(t, seg.Frames, 2)
	// mono input lands on both channels
	assert.Equal(t, seg.Frames[0].Left, seg.Frames[0].Right)
	assert.InDelta(t, 0.5, float64(seg.Frames[0].Left), 1e-3)
}

func TestDecodeGarbageFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("this is not audio"), 0o644))
	_, err := DecodeFile(path)
	assert.Error(t, err)
}

func TestDecodeMissingFile(t *testing.T) {
	_, err := DecodeFile(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}
