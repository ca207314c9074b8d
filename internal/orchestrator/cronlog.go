package orchestrator

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger routes cron's internal logging into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
