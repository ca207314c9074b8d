package runlog

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// Recorder collects the ordered log stream of one execution. It is owned by
// the execution's goroutine and is not safe for concurrent use.
type Recorder struct {
	profileID string
	jobID     string
	events    []domain.LogEvent
	sink      func(domain.LogEvent)
	log       zerolog.Logger
	now       func() time.Time
}

// NewRecorder creates a recorder. sink may be nil; when set it receives a
// copy of every event (typically Buffer.Publish).
func NewRecorder(profileID, jobID string, sink func(domain.LogEvent), log zerolog.Logger) *Recorder {
	return &Recorder{
		profileID: profileID,
		jobID:     jobID,
		sink:      sink,
		log:       log.With().Str("profile_id", profileID).Str("job_id", jobID).Logger(),
		now:       time.Now,
	}
}

// Info records an informational event.
func (r *Recorder) Info(format string, args ...interface{}) {
	r.record(domain.LevelInfo, fmt.Sprintf(format, args...))
}

// Success records a success event.
func (r *Recorder) Success(format string, args ...interface{}) {
	r.record(domain.LevelSuccess, fmt.Sprintf(format, args...))
}

// Warn records a warning. The stream has no warning level, so it is kept as
// an info event with a "Warning:" prefix.
func (r *Recorder) Warn(format string, args ...interface{}) {
	msg := "Warning: " + fmt.Sprintf(format, args...)
	r.log.Warn().Msg(msg)
	r.append(domain.LevelInfo, msg)
}

// Error records an error event.
func (r *Recorder) Error(format string, args ...interface{}) {
	r.record(domain.LevelError, fmt.Sprintf(format, args...))
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []domain.LogEvent {
	return append([]domain.LogEvent(nil), r.events...)
}

// Logger returns the structured logger bound to this execution.
func (r *Recorder) Logger() zerolog.Logger {
	return r.log
}

func (r *Recorder) record(level domain.LogLevel, msg string) {
	switch level {
	case domain.LevelError:
		r.log.Error().Msg(msg)
	default:
		r.log.Info().Str("level_tag", string(level)).Msg(msg)
	}
	r.append(level, msg)
}

func (r *Recorder) append(level domain.LogLevel, msg string) {
	e := domain.LogEvent{
		Timestamp: r.now().UTC(),
		Message:   msg,
		Level:     level,
		ProfileID: r.profileID,
		JobID:     r.jobID,
	}
	r.events = append(r.events, e)
	if r.sink != nil {
		r.sink(e)
	}
}
