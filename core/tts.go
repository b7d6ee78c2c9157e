package orchestration

import (
	"context"
	"fmt"

	"github.com/volleyhq/volley-core/core/texttospeech"
)

// textToSpeech wraps the configured synthesis client so a turn can run with
// or without one. With no client configured every method is a no-op and the
// response leaves the session as text only.
type textToSpeech struct {
	client    TextToSpeech
	generator texttospeech.SpeechGenerator
}

func newTextToSpeech(client TextToSpeech) *textToSpeech {
	return &textToSpeech{client: client}
}

func (t *textToSpeech) isConfigured() bool {
	return t != nil && t.client != nil
}

// open creates the per-turn speech generator. The passed options carry the
// audio, mark and error callbacks the pipeline feeds from.
func (t *textToSpeech) open(ctx context.Context, opts ...texttospeech.TextToSpeechOption) error {
	if !t.isConfigured() {
		return nil
	}

	generator, err := t.client.NewSpeechGenerator(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to open speech generator: %w", err)
	}

	t.generator = generator
	return nil
}

func (t *textToSpeech) isOpen() bool {
	return t != nil && t.generator != nil
}

func (t *textToSpeech) SendText(text string) error {
	if !t.isOpen() {
		return nil
	}

	return t.generator.SendText(text)
}

func (t *textToSpeech) Mark() error {
	if !t.isOpen() {
		return nil
	}

	return t.generator.Mark()
}

// EndOfText marks the tail of the response before closing the text stream so
// the final partial segment still produces a mark confirmation.
func (t *textToSpeech) EndOfText() error {
	if !t.isOpen() {
		return nil
	}

	if err := t.generator.Mark(); err != nil {
		return err
	}
	return t.generator.EndOfText()
}

func (t *textToSpeech) Cancel() error {
	if !t.isOpen() {
		return nil
	}

	return t.generator.Cancel()
}

func (t *textToSpeech) Close() error {
	if !t.isOpen() {
		return nil
	}

	return t.generator.Close()
}
