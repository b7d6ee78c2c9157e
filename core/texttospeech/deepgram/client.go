package deepgram

import (
	"fmt"
	"slices"

	"github.com/volleyhq/volley-core/core/audio"
	"github.com/volleyhq/volley-core/core/texttospeech"
)

const defaultSampleRate = 24000

type TextToSpeechClient struct {
	voice   deepgramVoice
	options texttospeech.TextToSpeechOptions
}

func NewTextToSpeechClient(voice deepgramVoice, opts ...texttospeech.TextToSpeechOption) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{
		voice: defaultVoice,
		options: texttospeech.TextToSpeechOptions{
			EncodingInfo: audio.EncodingInfo{
				SampleRate: defaultSampleRate,
				Format:     audio.EncodingLinear16,
			},
		},
	}

	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice")
	}
	client.voice = voice

	for _, opt := range opts {
		opt(&client.options)
	}

	return client, nil
}

func (c *TextToSpeechClient) SetVoice(voice deepgramVoice) {
	c.voice = voice
}
