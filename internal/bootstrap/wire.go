package bootstrap

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"media-revoicer/internal/domain"
	"media-revoicer/internal/jobs"
	"media-revoicer/internal/media"
	"media-revoicer/internal/pipeline"
	"media-revoicer/internal/speech"
)

// gatewayTimeout bounds one recognize or synthesize call.
const gatewayTimeout = 5 * time.Minute

// buildPipeline assembles media tools and Google gateways into a pipeline.
func buildPipeline(settings domain.Settings, creds speech.Credentials, logger zerolog.Logger) (*pipeline.Pipeline, error) {
	client, err := speech.NewAuthorizedClient(creds, gatewayTimeout, logger.With().Str("component", "speech").Logger())
	if err != nil {
		return nil, fmt.Errorf("build speech client: %w", err)
	}

	tools := media.Tools{
		FFmpegPath:  settings.FFmpegPath,
		FFprobePath: settings.FFprobePath,
		Runner:      media.ExecRunner{},
		Logger:      logger.With().Str("component", "media").Logger(),
	}

	return pipeline.New(pipeline.Deps{
		Opener:      tools,
		Extractor:   media.NewExtractor(tools),
		Remuxer:     media.NewRemuxer(tools),
		Recognizer:  speech.NewGoogleRecognizer(client, settings.SpeechEndpoint),
		Synthesizer: speech.NewGoogleSynthesizer(client, settings.TextToSpeechEndpoint),
		Logger:      logger.With().Str("component", "pipeline").Logger(),
	}, pipeline.Config{
		Language:   settings.Language,
		VoiceName:  settings.VoiceName,
		SampleRate: settings.SampleRate,
	}), nil
}

// buildManager wraps the pipeline in a job manager sized from settings.
func buildManager(settings domain.Settings, creds speech.Credentials, logger zerolog.Logger) (*jobs.Manager, error) {
	p, err := buildPipeline(settings, creds, logger)
	if err != nil {
		return nil, err
	}
	return jobs.NewManager(p, jobs.NewEventBus(1000), settings.MaxParallelRuns, logger.With().Str("component", "jobs").Logger()), nil
}
