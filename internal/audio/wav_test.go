package audio

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVHeader(t *testing.T) {
	for _, tc := range []struct {
		samples int
		rate    int
	}{
		{0, 16000},
		{1, 24000},
		{480, 44100},
	} {
		pcm := make([]byte, tc.samples*2)
		for i := range pcm {
			pcm[i] = byte(i)
		}
		wav, err := EncodeWAV(pcm, tc.rate)
		require.NoError(t, err)
		require.Len(t, wav, 44+2*tc.samples)

		le := binary.LittleEndian
		assert.Equal(t, "RIFF", string(wav[0:4]))
		assert.Equal(t, uint32(36+2*tc.samples), le.Uint32(wav[4:8]))
		assert.Equal(t, "WAVE", string(wav[8:12]))
		assert.Equal(t, "fmt ", string(wav[12:16]))
		assert.Equal(t, uint32(16), le.Uint32(wav[16:20]))
		assert.Equal(t, uint16(1), le.Uint16(wav[20:22]), "audio format")
		assert.Equal(t, uint16(1), le.Uint16(wav[22:24]), "channels")
		assert.Equal(t, uint32(tc.rate), le.Uint32(wav[24:28]))
		assert.Equal(t, uint32(2*tc.rate), le.Uint32(wav[28:32]), "byte rate")
		assert.Equal(t, uint16(2), le.Uint16(wav[32:34]), "block align")
		assert.Equal(t, uint16(16), le.Uint16(wav[34:36]), "bits per sample")
		assert.Equal(t, "data", string(wav[36:40]))
		assert.Equal(t, uint32(2*tc.samples), le.Uint32(wav[40:44]))
		assert.Equal(t, pcm, wav[44:])
	}
}

func TestEncodeWAVRejectsOddLength(t *testing.T) {
	_, err := EncodeWAV([]byte{1, 2, 3}, 16000)
	assert.ErrorIs(t, err, ErrInvalidPCM)
}

func TestSampleRate(t *testing.T) {
	assert.Equal(t, 24000, SampleRate("audio/L16;codec=pcm;rate=24000"))
	assert.Equal(t, 8000, SampleRate("audio/pcm; rate=8000"))
	assert.Equal(t, DefaultSampleRate, SampleRate("audio/L16"))
	assert.Equal(t, DefaultSampleRate, SampleRate(""))
}

func TestDecode(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f}
	clip, err := Decode(base64.StdEncoding.EncodeToString(pcm), "audio/L16;rate=24000")
	require.NoError(t, err)
	assert.Equal(t, 24000, clip.SampleRate)
	assert.Equal(t, 2, clip.Samples)
	assert.Equal(t, pcm, clip.WAV[44:])

	_, err = Decode("!!not base64!!", "audio/L16")
	assert.ErrorIs(t, err, ErrInvalidPCM)
}
