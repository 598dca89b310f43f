// Package audio turns synthesized PCM into playable WAV clips and owns the
// single active playback.
package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

const (
	DefaultSampleRate = 16000
	wavHeaderSize     = 44
	bytesPerSample    = 2
)

// ErrInvalidPCM means the payload is not a whole number of 16-bit samples.
var ErrInvalidPCM = errors.New("invalid PCM payload")

var sampleRatePattern = regexp.MustCompile(`rate=(\d+)`)

// Clip is a decoded, container-wrapped audio clip.
type Clip struct {
	WAV        []byte
	SampleRate int
	Samples    int
}

// SampleRate parses rate=<digits> out of a MIME descriptor such as
// "audio/L16;codec=pcm;rate=24000". It returns DefaultSampleRate when absent.
func SampleRate(mimeType string) int {
	m := sampleRatePattern.FindStringSubmatch(mimeType)
	if m == nil {
		return DefaultSampleRate
	}
	rate, err := strconv.Atoi(m[1])
	if err != nil || rate <= 0 {
		return DefaultSampleRate
	}
	return rate
}

// Decode base64-decodes signed 16-bit little-endian mono PCM and wraps it
// in a WAV container at the rate declared by mimeType.
func Decode(data, mimeType string) (*Clip, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrInvalidPCM, err)
	}
	rate := SampleRate(mimeType)
	wav, err := EncodeWAV(pcm, rate)
	if err != nil {
		return nil, err
	}
	return &Clip{WAV: wav, SampleRate: rate, Samples: len(pcm) / bytesPerSample}, nil
}

// EncodeWAV writes the canonical 44-byte RIFF/WAVE header for mono 16-bit
// PCM followed by the sample bytes verbatim.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of 16-bit samples", ErrInvalidPCM, len(pcm))
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidPCM, sampleRate)
	}
	dataSize := uint32(len(pcm))

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(buf, le, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, le, uint32(16))                        // fmt chunk size
	_ = binary.Write(buf, le, uint16(1))                         // PCM
	_ = binary.Write(buf, le, uint16(1))                         // mono
	_ = binary.Write(buf, le, uint32(sampleRate))                // sample rate
	_ = binary.Write(buf, le, uint32(sampleRate*bytesPerSample)) // byte rate
	_ = binary.Write(buf, le, uint16(bytesPerSample))            // block align
	_ = binary.Write(buf, le, uint16(16))                        // bits per sample
	buf.WriteString("data")
	_ = binary.Write(buf, le, dataSize)
	buf.Write(pcm)
	return buf.Bytes(), nil
}
