// Package config loads the runtime settings of the bot and the ask endpoint
// from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"kbs-slackbot/internal/integrations/entraid"
)

const envPrefix = "NKS_SLACKBOB_"

// Config contains all runtime settings. Secrets may be given directly or as
// SSM parameter names (the *Param fields) resolved by ResolveSecrets.
type Config struct {
	BotToken      string
	BotTokenParam string
	AppToken      string
	AppTokenParam string
	AppID         string

	KBSEndpoint     string
	KBSScope        string
	AnswerTimeout   time.Duration
	LivenessTimeout time.Duration
	UpdateRateLimit time.Duration

	ClientID          string
	ClientSecret      string
	ClientSecretParam string
	TokenEndpoint     string
	Environment       string

	OpsAddr           string
	ShutdownTimeout   time.Duration
	TranscriptTable   string
	MaxQuestionLength int

	LogLevel  string
	LogPretty bool

	OTLPEndpoint string
	ServiceName  string
}

type SecretReader interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	cfg := Config{
		BotToken:          envTrimmed(envPrefix + "BOT_TOKEN"),
		BotTokenParam:     envTrimmed(envPrefix + "BOT_TOKEN_PARAM"),
		AppToken:          envTrimmed(envPrefix + "APP_TOKEN"),
		AppTokenParam:     envTrimmed(envPrefix + "APP_TOKEN_PARAM"),
		AppID:             envOrDefault(envPrefix+"ID", "A07JWHE9458"),
		KBSEndpoint:       envOrDefault(envPrefix+"KBS_ENDPOINT", "http://nks-kbs"),
		KBSScope:          envOrDefault(envPrefix+"KBS_SCOPE", "nks-aiautomatisering.nks-kbs"),
		AnswerTimeout:     60 * time.Second,
		LivenessTimeout:   5 * time.Second,
		UpdateRateLimit:   time.Second,
		ClientID:          envTrimmed("AZURE_APP_CLIENT_ID"),
		ClientSecret:      envTrimmed("AZURE_APP_CLIENT_SECRET"),
		ClientSecretParam: envTrimmed(envPrefix + "CLIENT_SECRET_PARAM"),
		TokenEndpoint:     envOrDefault("AZURE_OPENID_CONFIG_TOKEN_ENDPOINT", "http://localhost:8888/token"),
		Environment:       envOrDefault("NAIS_CLUSTER_NAME", "dev-gcp"),
		OpsAddr:           envOrDefault(envPrefix+"OPS_ADDR", ":8080"),
		ShutdownTimeout:   70 * time.Second,
		TranscriptTable:   envTrimmed(envPrefix + "TRANSCRIPT_TABLE"),
		MaxQuestionLength: 2000,
		LogLevel:          envOrDefault(envPrefix+"LOG_LEVEL", "info"),
		OTLPEndpoint:      envTrimmed("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:       envOrDefault("OTEL_SERVICE_NAME", "nks-slackbob"),
	}

	var err error
	cfg.AnswerTimeout, err = durationFromEnv(envPrefix+"ANSWER_TIMEOUT", cfg.AnswerTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LivenessTimeout, err = durationFromEnv(envPrefix+"LIVENESS_TIMEOUT", cfg.LivenessTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UpdateRateLimit, err = durationFromEnv(envPrefix+"UPDATE_RATE_LIMIT", cfg.UpdateRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv(envPrefix+"SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxQuestionLength, err = intFromEnv(envPrefix+"MAX_QUESTION_LENGTH", cfg.MaxQuestionLength)
	if err != nil {
		return Config{}, err
	}
	cfg.LogPretty, err = boolFromEnv(envPrefix+"LOG_PRETTY", false)
	if err != nil {
		return Config{}, err
	}

	if cfg.AnswerTimeout <= 0 {
		return Config{}, fmt.Errorf("%sANSWER_TIMEOUT must be positive", envPrefix)
	}
	if cfg.LivenessTimeout <= 0 {
		return Config{}, fmt.Errorf("%sLIVENESS_TIMEOUT must be positive", envPrefix)
	}
	if cfg.UpdateRateLimit <= 0 {
		return Config{}, fmt.Errorf("%sUPDATE_RATE_LIMIT must be positive", envPrefix)
	}
	if cfg.MaxQuestionLength <= 0 {
		return Config{}, fmt.Errorf("%sMAX_QUESTION_LENGTH must be positive", envPrefix)
	}
	return cfg, nil
}

// TokenScope is the OAuth2 scope requested for the knowledge base.
func (c Config) TokenScope() string {
	return entraid.Scope(c.Environment, c.KBSScope)
}

// NeedsSecrets reports whether any secret must be read from SSM.
func (c Config) NeedsSecrets() bool {
	return len(c.pendingSecrets()) > 0
}

// ResolveSecrets fills every secret that is only given as a parameter name.
// Values set directly in the environment win.
func (c *Config) ResolveSecrets(ctx context.Context, r SecretReader) error {
	pending := c.pendingSecrets()
	if len(pending) == 0 {
		return nil
	}
	if r == nil {
		return errors.New("config: secret parameters configured without a secret reader")
	}

	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	values, err := r.GetParameters(ctx, names...)
	if err != nil {
		return fmt.Errorf("config: resolve secrets: %w", err)
	}
	for name, targets := range pending {
		for _, target := range targets {
			*target = values[name]
		}
	}
	return nil
}

func (c *Config) pendingSecrets() map[string][]*string {
	pending := map[string][]*string{}
	add := func(value *string, param string) {
		if *value == "" && param != "" {
			pending[param] = append(pending[param], value)
		}
	}
	add(&c.BotToken, c.BotTokenParam)
	add(&c.AppToken, c.AppTokenParam)
	add(&c.ClientSecret, c.ClientSecretParam)
	return pending
}

// ValidateAuth checks the settings every entrypoint needs to call the
// knowledge base.
func (c Config) ValidateAuth() error {
	if c.ClientID == "" {
		return errors.New("AZURE_APP_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("AZURE_APP_CLIENT_SECRET or %sCLIENT_SECRET_PARAM is required", envPrefix)
	}
	return nil
}

// ValidateBot checks the settings the Slack bot needs on top of ValidateAuth.
func (c Config) ValidateBot() error {
	if err := c.ValidateAuth(); err != nil {
		return err
	}
	if c.BotToken == "" {
		return fmt.Errorf("%[1]sBOT_TOKEN or %[1]sBOT_TOKEN_PARAM is required", envPrefix)
	}
	if !strings.HasPrefix(c.AppToken, "xapp-") {
		return fmt.Errorf("%[1]sAPP_TOKEN or %[1]sAPP_TOKEN_PARAM must hold an app-level token (xapp-)", envPrefix)
	}
	if c.AppID == "" {
		return fmt.Errorf("%sID is required", envPrefix)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := envTrimmed(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// durationFromEnv accepts Go durations ("1500ms") and plain seconds ("60.0").
func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err == nil {
		return d, nil
	}
	secs, ferr := strconv.ParseFloat(v, 64)
	if ferr != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
