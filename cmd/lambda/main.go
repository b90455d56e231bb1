package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"kbs-slackbot/handler"
	"kbs-slackbot/internal/config"
	"kbs-slackbot/internal/integrations/entraid"
	"kbs-slackbot/internal/integrations/kbs"
	"kbs-slackbot/internal/integrations/paramstore"
	"kbs-slackbot/internal/observability"
	"kbs-slackbot/internal/usecase"
)

func main() {
	ctx := context.Background()

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
	defer func() { _ = shutdownTracing(context.Background()) }()

	// ---- AWS SDK config ----
	if cfg.NeedsSecrets() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load AWS config")
		}
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create SSM client")
		}
		if err := cfg.ResolveSecrets(ctx, params); err != nil {
			logger.Fatal().Err(err).Msg("failed to resolve secrets")
		}
	}
	if err := cfg.ValidateAuth(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// ---- Clients ----
	tokens, err := entraid.New(cfg.ClientID, cfg.ClientSecret, cfg.TokenEndpoint, cfg.TokenScope())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token cache")
	}
	kb, err := kbs.NewClient(cfg.KBSEndpoint,
		kbs.WithAnswerTimeout(cfg.AnswerTimeout),
		kbs.WithLivenessTimeout(cfg.LivenessTimeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create knowledge base client")
	}

	// ---- Handler ----
	askService, err := usecase.NewAskService(tokens, kb, nil, cfg.MaxQuestionLength)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create ask service")
	}
	h, err := handler.NewHandler(askService)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create handler")
	}

	lambda.StartWithOptions(h.Handle, lambda.WithContext(ctx))
}
