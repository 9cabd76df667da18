package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/fluent-tutor/backend/internal/config"
	"github.com/zhouzirui/fluent-tutor/backend/internal/handler"
	vocabModel "github.com/zhouzirui/fluent-tutor/backend/internal/model/vocabulary"
	"github.com/zhouzirui/fluent-tutor/backend/internal/observability"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/ai"
	chatService "github.com/zhouzirui/fluent-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/conversation"
	speechService "github.com/zhouzirui/fluent-tutor/backend/internal/service/speech"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
	vocabService "github.com/zhouzirui/fluent-tutor/backend/internal/service/vocabulary"
	"github.com/zhouzirui/fluent-tutor/backend/internal/store/transcript"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	archive, err := transcript.Open(ctx, cfg.Archive.Driver, cfg.Archive.DSN)
	if err != nil {
		return fmt.Errorf("open transcript archive: %w", err)
	}
	if archive != nil {
		defer archive.Close()
		log.Info().Str("driver", cfg.Archive.Driver).Msg("transcript archive ready")
	} else {
		log.Info().Msg("transcript archive disabled, ended sessions are discarded")
	}

	vocabulary, err := newVocabulary(cfg.Vocabulary)
	if err != nil {
		return err
	}

	completer := ai.Unconfigured()
	if cfg.AI.Enabled() {
		c, err := ai.NewCompleter(ctx, cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("AI provider init failed, tutor replies will be rejected")
		} else {
			completer = c
			log.Info().Str("provider", cfg.AI.Provider).Msg("AI provider ready")
		}
	} else {
		log.Warn().Msg("no AI provider configured, set OPENAI_API_KEY or ARK_API_KEY")
	}

	controller := tutor.NewController(tutor.Config{
		HistoryWindow: cfg.Tutor.HistoryWindow,
		Instruction:   cfg.Tutor.Instruction,
	}, tutor.WithRecorder(metrics))

	seed := ""
	if cfg.Tutor.SeedSystemTurn {
		seed = controller.Instruction()
	}
	sessions := chatService.NewService(chatService.Options{
		Instruction: seed,
		IdleTimeout: cfg.Tutor.SessionIdleTimeout,
		Archive:     archive,
		Hooks:       metrics,
	})

	speechCfg := cfg.Speech.ClientConfig()
	if !cfg.Speech.Enabled {
		speechCfg = nil
		log.Info().Msg("speech credentials missing, voice features disabled")
	}
	speech := speechService.NewService(speechCfg, speechService.WithRecorder(metrics))

	conv := conversation.NewService(sessions, controller, completer, speech)

	router := handler.NewRouter(handler.Deps{
		Sessions:     sessions,
		Conversation: conv,
		Vocabulary:   vocabulary,
		Speech:       speech,
		Metrics:      metrics.Handler(),
		Logger:       log.With().Str("component", "http").Logger(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("fluent tutor backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sessions.Run(gctx, cfg.Tutor.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newVocabulary(cfg config.VocabularyConfig) (*vocabService.Service, error) {
	catalog := vocabModel.Default()
	if cfg.CatalogPath != "" {
		loaded, err := vocabModel.LoadFile(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load vocabulary catalog: %w", err)
		}
		catalog = loaded
	}
	log.Info().Int("words", len(catalog.Words)).Int("cards", len(catalog.Visual)).Msg("vocabulary catalog loaded")

	return vocabService.NewService(catalog, vocabService.Config{
		DailyCount:  cfg.DailyCount,
		VisualCount: cfg.VisualCount,
		Location:    cfg.Location,
	}), nil
}
