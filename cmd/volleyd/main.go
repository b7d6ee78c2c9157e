// Command volleyd serves voice-to-voice sessions over websockets.
//
// Clients connect to /api/v1/chat, stream base64 audio frames in and receive
// transcripts, response text and synthesized speech back on the same socket.
// Configuration comes from the environment, optionally via a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	orchestration "github.com/volleyhq/volley-core/core"
	"github.com/volleyhq/volley-core/core/llms/groq"
	"github.com/volleyhq/volley-core/core/relay"
	"github.com/volleyhq/volley-core/core/speechtotext/openairealtime"
	"github.com/volleyhq/volley-core/core/texttospeech/deepgram"
	"github.com/volleyhq/volley-core/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownGracePeriod = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "volleyd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine, the environment may carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sessionFactory, err := newSessionFactory(cfg)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/chat", relay.NewServer(sessionFactory))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(mux, "volleyd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
			return
		}
		listenErr <- nil
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-listenErr:
		return err
	case sig := <-signals:
		slog.Info("shutting down", "signal", sig.String())
	}

	// Shutdown stops the listener and waits out plain HTTP requests. Live
	// websocket sessions are hijacked connections and end with the process.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}

	return <-listenErr
}

// newSessionFactory assembles the per-connection orchestrator constructor.
// The agent and synthesis clients are stateless and shared across sessions;
// the transcription client holds a connection, so each session gets its own.
func newSessionFactory(cfg config.Config) (func() *orchestration.Orchestrator, error) {
	synthesizer, err := deepgram.NewTextToSpeechClient(deepgram.Voice(cfg.SynthesisVoice))
	if err != nil {
		return nil, fmt.Errorf("failed to create the synthesis client: %w", err)
	}

	agentOpts := []groq.ClientOption{}
	if cfg.AgentModel != "" {
		agentOpts = append(agentOpts, groq.WithModel(cfg.AgentModel))
	}
	if cfg.SystemPrompt != "" {
		agentOpts = append(agentOpts, groq.WithSystemPrompt(cfg.SystemPrompt))
	}
	agent := groq.NewClient(cfg.GroqAPIKey, agentOpts...)

	transcriptionOpts := []openairealtime.Option{
		openairealtime.WithVADThreshold(cfg.VADThreshold),
		openairealtime.WithPrefixPadding(cfg.PrefixPadding),
		openairealtime.WithSilenceDuration(cfg.SilenceDuration),
	}
	if cfg.AzureTranscriptionEndpoint != "" {
		transcriptionOpts = append(transcriptionOpts, openairealtime.WithAzureEndpoint(cfg.AzureTranscriptionEndpoint))
	}
	if cfg.TranscriptionModel != "" {
		transcriptionOpts = append(transcriptionOpts, openairealtime.WithModel(cfg.TranscriptionModel))
	}
	if cfg.TranscriptionPrompt != "" {
		transcriptionOpts = append(transcriptionOpts, openairealtime.WithServerPrompt(cfg.TranscriptionPrompt))
	}

	return func() *orchestration.Orchestrator {
		sessionOpts := []orchestration.OrchestratorOption{
			orchestration.WithSpeechToTextClient(openairealtime.NewTranscriptionClient(cfg.OpenAIAPIKey, transcriptionOpts...)),
			orchestration.WithStreamingLLM(agent),
			orchestration.WithTextToSpeechClient(synthesizer),
		}
		if !cfg.InterruptAgent {
			sessionOpts = append(sessionOpts, orchestration.WithInterruptionsDisabled())
		}
		return orchestration.NewOrchestrator(sessionOpts...)
	}, nil
}
