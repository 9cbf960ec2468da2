package logging

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bivex/renewal-retry/internal/infrastructure/config"
)

// New builds the application logger. Error-level entries are forwarded to
// Sentry when a DSN is configured.
func New(cfg *config.SentryConfig) (*zap.Logger, error) {
	var zapConfig zap.Config

	environment := "production"
	if cfg != nil && cfg.Environment != "" {
		environment = cfg.Environment
	}

	if environment == "development" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	if cfg != nil && cfg.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.DSN,
			Environment: cfg.Environment,
			Release:     cfg.Release,
		})
		if err != nil {
			return nil, err
		}
		logger = logger.WithOptions(zap.Hooks(func(entry zapcore.Entry) error {
			if entry.Level >= zapcore.ErrorLevel {
				sentry.CaptureMessage(entry.Message)
			}
			return nil
		}))
	}

	return logger, nil
}

// Sync flushes buffered log entries and pending Sentry events.
func Sync(logger *zap.Logger) {
	if logger != nil {
		_ = logger.Sync()
	}
	sentry.Flush(2 * time.Second)
}

// WithComponent creates a child logger with a component field
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}
