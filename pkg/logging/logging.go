package logging

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
)

// New builds the application logger on a zap core. PrettyLogs switches to
// the human-readable development encoder.
func New(pretty bool) (ectologger.Logger, error) {
	var zapLogger *zap.Logger
	var err error
	if pretty {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}
