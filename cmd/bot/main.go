package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"kbs-slackbot/internal/bot"
	"kbs-slackbot/internal/config"
	"kbs-slackbot/internal/httpapi"
	"kbs-slackbot/internal/integrations/entraid"
	"kbs-slackbot/internal/integrations/kbs"
	"kbs-slackbot/internal/integrations/paramstore"
	"kbs-slackbot/internal/integrations/slackapi"
	"kbs-slackbot/internal/observability"
	"kbs-slackbot/internal/repository"
	"kbs-slackbot/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger, err := observability.SetupLogging(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	ctx = logger.WithContext(ctx)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// ---- AWS SDK config, only when secrets or transcripts live in AWS ----
	var dynamo *awsdynamodb.Client
	if cfg.NeedsSecrets() || cfg.TranscriptTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load AWS config")
		}
		if cfg.NeedsSecrets() {
			params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to create SSM client")
			}
			if err := cfg.ResolveSecrets(ctx, params); err != nil {
				logger.Fatal().Err(err).Msg("failed to resolve secrets")
			}
		}
		dynamo = awsdynamodb.NewFromConfig(awsCfg)
	}
	if err := cfg.ValidateBot(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// ---- Clients ----
	metrics := observability.NewMetrics("kbs_slackbot", prometheus.DefaultRegisterer)

	tokens, err := entraid.New(cfg.ClientID, cfg.ClientSecret, cfg.TokenEndpoint, cfg.TokenScope(),
		entraid.WithRefreshHook(metrics.TokenRefreshed))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token cache")
	}

	kb, err := kbs.NewClient(cfg.KBSEndpoint,
		kbs.WithAnswerTimeout(cfg.AnswerTimeout),
		kbs.WithLivenessTimeout(cfg.LivenessTimeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create knowledge base client")
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	slackClient, err := slackapi.New(api)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create slack client")
	}

	relayOpts := []usecase.RelayOption{
		usecase.WithMetrics(metrics),
		usecase.WithUpdateInterval(cfg.UpdateRateLimit),
	}
	if dynamo != nil && cfg.TranscriptTable != "" {
		transcripts, err := repository.New(dynamo, cfg.TranscriptTable)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create transcript store")
		}
		relayOpts = append(relayOpts, usecase.WithTranscripts(transcripts))
	}

	// ---- Bot ----
	relay, err := usecase.NewRelay(slackClient, slackClient, tokens, kb, relayOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create relay")
	}
	router, err := bot.NewRouter(cfg.AppID, slackClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create router")
	}
	listener, err := bot.NewListener(socketmode.New(api), router, relay)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create listener")
	}

	opsServer := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           httpapi.New(metrics.Handler(), kb).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("ops server failed")
		}
	}()

	logger.Info().Str("app_id", cfg.AppID).Str("kbs", cfg.KBSEndpoint).Msg("bot starting")
	runErr := listener.Run(ctx)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("socket mode connection ended")
	}

	// ---- Graceful shutdown ----
	logger.Info().Msg("shutting down, waiting for answers in flight")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		listener.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("answers still running at shutdown deadline")
	}

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops server shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown")
	}
	if runErr != nil {
		os.Exit(1)
	}
}
