package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/receptionist/internal/brain"
	"github.com/ent0n29/receptionist/internal/call"
	"github.com/ent0n29/receptionist/internal/config"
	"github.com/ent0n29/receptionist/internal/conversations"
	"github.com/ent0n29/receptionist/internal/directory"
	"github.com/ent0n29/receptionist/internal/httpapi"
	"github.com/ent0n29/receptionist/internal/observability"
	"github.com/ent0n29/receptionist/internal/session"
	"github.com/ent0n29/receptionist/internal/staging"
)

type VoiceInfo struct {
	Provider       string
	Detail         string
	DefaultVoiceID string
	DefaultModelID string
}

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Store
	Handler   *call.Handler
	Finalizer *call.Finalizer
	Reaper    *session.Reaper
	Metrics   *observability.Metrics
	Brain     string
	Voice     VoiceInfo

	// Cleanup should be called on shutdown to release external resources (DB pools, staged audio).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := session.ParseStalenessPolicy(cfg.SessionStalenessPolicy)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	var closers []func() error
	closeAll := func() error {
		var errs []string
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return errors.New(strings.Join(errs, "; "))
		}
		return nil
	}
	fail := func(err error) (*BuildResult, error) {
		_ = closeAll()
		return nil, err
	}

	records, err := conversations.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("conversation store init failed: %w", err)
	}
	closers = append(closers, records.Close)
	recordStore := "in-memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		recordStore = "postgres"
	}

	users, err := directory.NewDirectory(ctx, directory.Options{
		DatabaseURL: cfg.DatabaseURL,
		SeedFile:    cfg.DirectorySeedFile,
		DevOwnerID:  cfg.DevOwnerID,
	})
	if err != nil {
		return fail(fmt.Errorf("user directory init failed: %w", err))
	}
	closers = append(closers, users.Close)

	provider, err := brain.NewProvider(brain.Config{
		Mode:          cfg.BrainProvider,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		Model:         cfg.OpenAIModel,
		HTTPURL:       cfg.BrainHTTPURL,
	})
	if err != nil {
		return fail(fmt.Errorf("brain provider init failed: %w", err))
	}
	generator := brain.NewGenerator(provider, brain.GeneratorOptions{
		Timeout:     cfg.BrainTimeout,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: float32(cfg.OpenAITemperature),
	})

	voiceSetup, err := resolveVoice(cfg, logger)
	if err != nil {
		return fail(err)
	}
	// Ensure API handlers know which backend is active (e.g. voices list).
	cfg.VoiceProvider = voiceSetup.resolvedProvider

	stager, err := staging.NewStager(cfg.AudioStagingDir, cfg.AudioDeleteAfter, logger)
	if err != nil {
		return fail(fmt.Errorf("audio staging init failed: %w", err))
	}
	closers = append(closers, stager.Close)

	sessions := session.NewStore()
	finalizer := call.NewFinalizer(sessions, records, users, call.FinalizerOptions{
		RedactPII: cfg.RedactTranscripts,
	}, metrics, logger)

	opts := call.DefaultOptions()
	opts.ContextTurns = cfg.SessionContextTurns
	handler := call.NewHandler(call.Deps{
		Sessions:  sessions,
		Configs:   users,
		Generator: generator,
		Voice:     voiceSetup.pipeline,
		Stager:    stager,
		Finalizer: finalizer,
		Metrics:   metrics,
		Logger:    logger,
	}, opts)

	reaper := session.NewReaper(sessions, session.ReaperConfig{
		Interval:   cfg.SessionReapInterval,
		StaleAfter: cfg.SessionStaleAfter,
		Policy:     policy,
	}, finalizer.Expire, logger)

	api := httpapi.New(cfg, httpapi.Deps{
		Turns:         handler,
		Sessions:      sessions,
		Cleaner:       finalizer,
		Records:       records,
		Directory:     users,
		Audio:         stager,
		Voices:        voiceSetup.lister,
		Voice:         voiceSetup.pipeline,
		BrainProvider: generator.ProviderName(),
		RecordStore:   recordStore,
		Metrics:       metrics,
		Logger:        logger,
	})

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Handler:   handler,
		Finalizer: finalizer,
		Reaper:    reaper,
		Metrics:   metrics,
		Brain:     generator.ProviderName(),
		Voice: VoiceInfo{
			Provider:       voiceSetup.resolvedProvider,
			Detail:         voiceSetup.detail,
			DefaultVoiceID: voiceSetup.defaultVoiceID,
			DefaultModelID: voiceSetup.defaultModelID,
		},
		Cleanup: closeAll,
	}, nil
}
