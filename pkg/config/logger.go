package config

import "go.uber.org/zap"

// NewLogger builds the process logger. Production config for "prod",
// human-readable development config for everything else.
func NewLogger(app AppConfig) (*zap.Logger, error) {
	if app.Env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
