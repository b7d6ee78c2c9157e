// Package config reads the voice server configuration from the environment.
// Empty values count as unset, so a .env file with blank lines behaves the
// same as one without them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultListenAddr = ":8080"

	defaultVADThreshold    = 0.5
	defaultPrefixPadding   = 300 * time.Millisecond
	defaultSilenceDuration = 300 * time.Millisecond
)

// Config carries everything the server binary needs to wire sessions. The
// synthesis credential is not in here: the deepgram client reads
// DEEPGRAM_API_KEY itself, Load only checks that it is present.
type Config struct {
	// ListenAddr is the address the relay listens on.
	ListenAddr string

	// OpenAIAPIKey authenticates the realtime transcription connection.
	OpenAIAPIKey string
	// AzureTranscriptionEndpoint points transcription at an Azure deployment
	// instead of the default endpoint.
	AzureTranscriptionEndpoint string
	// TranscriptionModel overrides the transcription model when set.
	TranscriptionModel string
	// TranscriptionPrompt biases transcription toward expected vocabulary.
	TranscriptionPrompt string

	// GroqAPIKey authenticates the agent client.
	GroqAPIKey string
	// AgentModel overrides the agent model when set.
	AgentModel string
	// SystemPrompt primes the agent for the conversation.
	SystemPrompt string

	// SynthesisVoice picks the synthesis voice model id.
	SynthesisVoice string

	// VADThreshold, PrefixPadding and SilenceDuration tune the server-side
	// voice activity detection on the transcription service.
	VADThreshold    float64
	PrefixPadding   time.Duration
	SilenceDuration time.Duration

	// InterruptAgent lets detected user speech cut the assistant off
	// mid-turn. Explicit interrupt requests work regardless.
	InterruptAgent bool
}

// Load reads the configuration from the environment, applying defaults for
// everything optional. Credentials are required.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:                 envOr("LISTEN_ADDR", defaultListenAddr),
		AzureTranscriptionEndpoint: os.Getenv("AZURE_STT_ENDPOINT"),
		TranscriptionModel:         os.Getenv("STT_MODEL"),
		TranscriptionPrompt:        os.Getenv("STT_SERVER_PROMPT"),
		AgentModel:                 os.Getenv("AGENT_MODEL"),
		SystemPrompt:               os.Getenv("AGENT_SYSTEM_PROMPT"),
		SynthesisVoice:             os.Getenv("TTS_VOICE"),
	}

	var err error
	if cfg.OpenAIAPIKey, err = requiredEnv("OPENAI_API_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.GroqAPIKey, err = requiredEnv("GROQ_API_KEY"); err != nil {
		return Config{}, err
	}
	if _, err = requiredEnv("DEEPGRAM_API_KEY"); err != nil {
		return Config{}, err
	}

	if cfg.VADThreshold, err = envFloat("STT_THRESHOLD", defaultVADThreshold); err != nil {
		return Config{}, err
	}
	if cfg.PrefixPadding, err = envMilliseconds("STT_PREFIX_PADDING_MS", defaultPrefixPadding); err != nil {
		return Config{}, err
	}
	if cfg.SilenceDuration, err = envMilliseconds("STT_SILENCE_DURATION_MS", defaultSilenceDuration); err != nil {
		return Config{}, err
	}
	if cfg.InterruptAgent, err = envBool("INTERRUPT_AGENT", false); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func requiredEnv(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%s is not set", key)
	}
	return value, nil
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func envFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return parsed, nil
}

func envMilliseconds(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return time.Duration(parsed) * time.Millisecond, nil
}

func envBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return parsed, nil
}
