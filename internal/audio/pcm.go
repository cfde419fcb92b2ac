package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

const (
	// SampleRate is the only capture rate the live session accepts.
	SampleRate = 16000

	// MIMEType tags every media payload sent to the live session.
	MIMEType = "audio/pcm;rate=16000"

	// FramesPerBlock is the default host buffer size in samples.
	FramesPerBlock = 4096
)

// Block is one buffer of normalized samples in [-1, 1] delivered by the host
// audio pipeline. Blocks are transient: the pipeline may reuse the backing
// array after the handler returns.
type Block []float32

// Frame quantizes a block to 16-bit signed little-endian PCM. The output is
// always 2*len(b) bytes. Each sample is scaled by 32768 and truncated toward
// zero; values outside [-1, 1] saturate at the int16 limits instead of
// wrapping, and NaN becomes silence.
func Frame(b Block) []byte {
	out := make([]byte, len(b)*2)
	for i, s := range b {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(quantize(s)))
	}
	return out
}

func quantize(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	v := float64(s) * 32768
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Encode renders raw bytes as standard padded base64 for a JSON message body.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}
