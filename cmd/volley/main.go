// Command volley is a terminal client for a volleyd server. It streams the
// microphone up as session audio, plays the assistant's speech back and
// renders the running transcript.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/volleyhq/volley-core/core/audio/miniaudio"
	"github.com/volleyhq/volley-core/core/audio/portaudio"
)

// The synthesis bridge emits 24kHz 16-bit PCM by default; playback opens the
// output device to match.
const playbackSampleRate = 24000

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/api/v1/chat", "websocket address of the session endpoint")
	flag.Parse()

	if err := run(*serverURL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(serverURL string) error {
	capture, err := miniaudio.NewClient()
	if err != nil {
		return err
	}
	defer capture.Close()

	playback, err := portaudio.NewClient(playbackSampleRate)
	if err != nil {
		return err
	}
	defer playback.Close()

	sess, err := dialSession(serverURL)
	if err != nil {
		return err
	}
	defer sess.Close()

	program := tea.NewProgram(newModel(serverURL, sess, capture, playback), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run the client: %w", err)
	}

	return nil
}
