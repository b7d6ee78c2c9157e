package config

import (
	"strings"
	"testing"
	"time"
)

func setCredentials(t *testing.T) {
	t.Helper()

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("DEEPGRAM_API_KEY", "dg-test")
}

func clearOptional(t *testing.T) {
	t.Helper()

	// Empty counts as unset, so this shields the test from whatever the
	// process environment happens to carry.
	for _, key := range []string{
		"LISTEN_ADDR",
		"AZURE_STT_ENDPOINT",
		"STT_MODEL",
		"STT_SERVER_PROMPT",
		"STT_THRESHOLD",
		"STT_PREFIX_PADDING_MS",
		"STT_SILENCE_DURATION_MS",
		"AGENT_MODEL",
		"AGENT_SYSTEM_PROMPT",
		"TTS_VOICE",
		"INTERRUPT_AGENT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	setCredentials(t)
	clearOptional(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected the default listen address, got %q", cfg.ListenAddr)
	}
	if cfg.VADThreshold != 0.5 {
		t.Fatalf("expected the default VAD threshold, got %v", cfg.VADThreshold)
	}
	if cfg.PrefixPadding != 300*time.Millisecond {
		t.Fatalf("expected the default prefix padding, got %v", cfg.PrefixPadding)
	}
	if cfg.SilenceDuration != 300*time.Millisecond {
		t.Fatalf("expected the default silence duration, got %v", cfg.SilenceDuration)
	}
	if cfg.InterruptAgent {
		t.Fatalf("expected interruptions to default to off")
	}
	if cfg.OpenAIAPIKey != "sk-test" || cfg.GroqAPIKey != "gsk-test" {
		t.Fatalf("expected credentials to be read, got %+v", cfg)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	setCredentials(t)
	clearOptional(t)

	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("AZURE_STT_ENDPOINT", "wss://example.openai.azure.com/realtime")
	t.Setenv("STT_MODEL", "gpt-4o-mini-transcribe")
	t.Setenv("STT_SERVER_PROMPT", "Expect product names.")
	t.Setenv("STT_THRESHOLD", "0.7")
	t.Setenv("STT_PREFIX_PADDING_MS", "100")
	t.Setenv("STT_SILENCE_DURATION_MS", "250")
	t.Setenv("AGENT_MODEL", "llama-3.1-8b-instant")
	t.Setenv("AGENT_SYSTEM_PROMPT", "You are terse.")
	t.Setenv("TTS_VOICE", "aura-orion-en")
	t.Setenv("INTERRUPT_AGENT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.ListenAddr != ":9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddr)
	}
	if cfg.AzureTranscriptionEndpoint != "wss://example.openai.azure.com/realtime" {
		t.Fatalf("unexpected azure endpoint %q", cfg.AzureTranscriptionEndpoint)
	}
	if cfg.TranscriptionModel != "gpt-4o-mini-transcribe" || cfg.TranscriptionPrompt != "Expect product names." {
		t.Fatalf("unexpected transcription settings: %+v", cfg)
	}
	if cfg.VADThreshold != 0.7 {
		t.Fatalf("unexpected VAD threshold %v", cfg.VADThreshold)
	}
	if cfg.PrefixPadding != 100*time.Millisecond || cfg.SilenceDuration != 250*time.Millisecond {
		t.Fatalf("unexpected VAD durations: %v / %v", cfg.PrefixPadding, cfg.SilenceDuration)
	}
	if cfg.AgentModel != "llama-3.1-8b-instant" || cfg.SystemPrompt != "You are terse." {
		t.Fatalf("unexpected agent settings: %+v", cfg)
	}
	if cfg.SynthesisVoice != "aura-orion-en" {
		t.Fatalf("unexpected synthesis voice %q", cfg.SynthesisVoice)
	}
	if !cfg.InterruptAgent {
		t.Fatalf("expected interruptions to be enabled")
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	setCredentials(t)
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected a missing OPENAI_API_KEY error, got %v", err)
	}

	setCredentials(t)
	t.Setenv("DEEPGRAM_API_KEY", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DEEPGRAM_API_KEY") {
		t.Fatalf("expected a missing DEEPGRAM_API_KEY error, got %v", err)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	setCredentials(t)
	clearOptional(t)

	t.Setenv("STT_THRESHOLD", "warm")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "STT_THRESHOLD") {
		t.Fatalf("expected a parse error naming STT_THRESHOLD, got %v", err)
	}
	t.Setenv("STT_THRESHOLD", "")

	t.Setenv("STT_SILENCE_DURATION_MS", "soon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "STT_SILENCE_DURATION_MS") {
		t.Fatalf("expected a parse error naming STT_SILENCE_DURATION_MS, got %v", err)
	}
	t.Setenv("STT_SILENCE_DURATION_MS", "")

	t.Setenv("INTERRUPT_AGENT", "definitely")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "INTERRUPT_AGENT") {
		t.Fatalf("expected a parse error naming INTERRUPT_AGENT, got %v", err)
	}
}
