package logger

import (
	"go.uber.org/zap"
)

// New builds a production zap logger at the given verbosity. An empty
// encoding keeps zap's default JSON encoder.
func New(verbosity, encoding string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	if encoding != "" {
		config.Encoding = encoding
	}
	if encoding == "console" {
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return config.Build()
}
