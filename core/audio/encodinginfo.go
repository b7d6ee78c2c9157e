// Package audio carries the encoding metadata shared between the
// transcription, synthesis and device clients.
package audio

// DefaultSampleRate is the capture-side sample rate assumed when a client
// does not announce its own encoding.
const DefaultSampleRate = 16000

// GetDefaultEncodingInfo returns the encoding assumed for inbound audio when
// nothing else is configured: 16kHz mono 16-bit PCM.
func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: EncodingLinear16}
}

// EncodingInfo describes a raw audio stream: its sample rate and sample
// format. Mono is assumed throughout.
type EncodingInfo struct {
	SampleRate int
	Format     Encoding
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// SilenceValue returns the byte that encodes silence in this format, used to
// synthesize keep-alive audio.
func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// BytesPerSecond returns the byte rate of the stream, or 0 when the format is
// unknown.
func (e EncodingInfo) BytesPerSecond() int {
	size := e.Format.ByteSize()
	if size <= 0 {
		return 0
	}
	return e.SampleRate * size
}

// Encoding names a sample format the way the speech services spell it in
// their query parameters.
type Encoding string

const (
	EncodingMulaw    Encoding = "mulaw"
	EncodingALaw     Encoding = "alaw"
	EncodingLinear16 Encoding = "linear16"
)

func (e Encoding) Name() string {
	return string(e)
}

// ByteSize returns the size of a single sample in bytes, or -1 for formats
// this package does not know.
func (e Encoding) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}
