package main

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/volleyhq/volley-core/core/audio/miniaudio"
	"github.com/volleyhq/volley-core/core/audio/portaudio"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	faintStyle     = lipgloss.NewStyle().Faint(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	cutStyle       = lipgloss.NewStyle().Faint(true).Italic(true)
)

type sessionPhase int

const (
	phaseListening sessionPhase = iota
	phaseThinking
	phaseSpeaking
	phaseDisconnected
)

type speaker int

const (
	speakerUser speaker = iota
	speakerAssistant
	speakerSystem
)

type transcriptLine struct {
	speaker speaker
	text    string
	cut     bool
}

// serverMsg wraps a decoded server message for the update loop.
type serverMsg serverMessage

type sessionEndedMsg struct{ err error }

type captureFailedMsg struct{ err error }

type model struct {
	serverURL string
	session   *session
	capture   *miniaudio.Client
	playback  *portaudio.Client

	viewport viewport.Model
	spinner  spinner.Model

	lines []transcriptLine
	// assistantOpen marks that the last line is an assistant response still
	// being streamed, so further segments append to it.
	assistantOpen bool
	phase         sessionPhase
	muted         bool
	ready         bool
}

func newModel(serverURL string, sess *session, capture *miniaudio.Client, playback *portaudio.Client) model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	return model{
		serverURL: serverURL,
		session:   sess,
		capture:   capture,
		playback:  playback,
		spinner:   sp,
		phase:     phaseListening,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, startCapture(m.capture, m.session), listenForServer(m.session))
}

// listenForServer delivers the next server message, or the session's end.
func listenForServer(s *session) tea.Cmd {
	return func() tea.Msg {
		message, ok := <-s.Events()
		if !ok {
			return sessionEndedMsg{err: s.Err()}
		}
		return serverMsg(message)
	}
}

func startCapture(capture *miniaudio.Client, s *session) tea.Cmd {
	return func() tea.Msg {
		if err := capture.Start(micCallback(s)); err != nil {
			return captureFailedMsg{err: err}
		}
		return nil
	}
}

func micCallback(s *session) func(frame []byte) {
	return func(frame []byte) {
		s.SendAudio(frame)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "m":
			m.toggleMute()
			return m, nil
		case "i":
			m.session.SendInterrupt()
			return m, nil
		}

	case tea.WindowSizeMsg:
		// Header, status and help lines plus their separators.
		chrome := 4
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chrome)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chrome
		}
		m.refreshViewport()
		return m, nil

	case serverMsg:
		m.applyServerMessage(serverMessage(msg))
		m.refreshViewport()
		return m, listenForServer(m.session)

	case sessionEndedMsg:
		m.phase = phaseDisconnected
		_ = m.capture.Stop()
		text := "session closed"
		if msg.err != nil {
			text = fmt.Sprintf("connection lost: %v", msg.err)
		}
		m.lines = append(m.lines, transcriptLine{speaker: speakerSystem, text: text})
		m.refreshViewport()
		return m, nil

	case captureFailedMsg:
		m.muted = true
		m.lines = append(m.lines, transcriptLine{
			speaker: speakerSystem,
			text:    fmt.Sprintf("microphone unavailable: %v", msg.err),
		})
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) applyServerMessage(message serverMessage) {
	switch message.Type {
	case messageTypeUserTranscript:
		m.lines = append(m.lines, transcriptLine{speaker: speakerUser, text: message.Content})
		m.assistantOpen = false
		m.phase = phaseThinking

	case messageTypeTextOutput:
		if m.assistantOpen && len(m.lines) > 0 {
			m.lines[len(m.lines)-1].text += message.Content
		} else {
			m.lines = append(m.lines, transcriptLine{speaker: speakerAssistant, text: message.Content})
			m.assistantOpen = true
		}
		m.phase = phaseSpeaking

	case messageTypeAudioOutput:
		if frame, err := base64.StdEncoding.DecodeString(message.Content); err == nil {
			m.playback.Enqueue(frame)
		}
		m.phase = phaseSpeaking

	case messageTypeInterrupt:
		m.playback.Clear()
		if m.assistantOpen && len(m.lines) > 0 {
			m.lines[len(m.lines)-1].cut = true
		}
		m.assistantOpen = false
		m.phase = phaseListening

	case messageTypeError:
		m.lines = append(m.lines, transcriptLine{
			speaker: speakerSystem,
			text:    fmt.Sprintf("%s: %s", message.Error, message.ErrorMessage),
		})
	}
}

func (m *model) toggleMute() {
	if m.phase == phaseDisconnected {
		return
	}

	if m.muted {
		if err := m.capture.Start(micCallback(m.session)); err == nil {
			m.muted = false
		}
		return
	}

	if err := m.capture.Stop(); err == nil {
		m.muted = true
	}
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}

	var content strings.Builder
	for i, line := range m.lines {
		if i > 0 {
			content.WriteString("\n")
		}
		content.WriteString(renderLine(line, m.viewport.Width))
	}
	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

func renderLine(line transcriptLine, width int) string {
	var rendered string
	switch line.speaker {
	case speakerUser:
		rendered = userStyle.Render("you") + "  " + line.text
	case speakerAssistant:
		rendered = assistantStyle.Render("agent") + "  " + line.text
	case speakerSystem:
		rendered = systemStyle.Render(line.text)
	}

	if line.cut {
		rendered += cutStyle.Render(" (interrupted)")
	}

	if width > 0 {
		rendered = wordwrap.String(rendered, width)
	}
	return rendered
}

func (m model) View() string {
	if !m.ready {
		return "connecting..."
	}

	header := titleStyle.Render("volley") + "  " + faintStyle.Render(m.serverURL)
	return header + "\n" + m.viewport.View() + "\n" + m.statusLine() + "\n" + m.helpLine()
}

func (m model) statusLine() string {
	var status string
	switch m.phase {
	case phaseListening:
		status = "listening"
	case phaseThinking:
		status = m.spinner.View() + " thinking"
	case phaseSpeaking:
		status = "speaking"
	case phaseDisconnected:
		status = systemStyle.Render("disconnected")
	}

	if m.muted {
		status += faintStyle.Render("  [mic muted]")
	}
	return status
}

func (m model) helpLine() string {
	return faintStyle.Render("m mute · i interrupt · q quit")
}
