package log

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StepLogger logs the stages of a pipeline run with per-step timings
type StepLogger struct {
	name      string
	steps     []string
	current   int
	startTime time.Time
	stepStart time.Time
	stepTimes []time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewStepLogger creates a step logger using the global logger
func NewStepLogger(name string, steps []string) *StepLogger {
	return NewStepLoggerWith(log.Logger, name, steps)
}

// NewStepLoggerWith uses a caller-supplied logger
func NewStepLoggerWith(logger zerolog.Logger, name string, steps []string) *StepLogger {
	now := time.Now()
	return &StepLogger{
		name:      name,
		steps:     steps,
		current:   -1,
		startTime: now,
		stepStart: now,
		stepTimes: make([]time.Duration, len(steps)),
		logger:    logger,
		now:       time.Now,
	}
}

// StartStep closes the running step, if any, and begins stepName
func (sl *StepLogger) StartStep(stepName string) {
	index := -1
	for i, step := range sl.steps {
		if step == stepName {
			index = i
			break
		}
	}
	if index == -1 {
		sl.logger.Warn().Str("pipeline", sl.name).Str("step", stepName).Msg("Unknown pipeline step")
		return
	}

	sl.CompleteStep()
	sl.current = index
	sl.stepStart = sl.now()

	sl.logger.Info().
		Str("pipeline", sl.name).
		Str("step", stepName).
		Int("step_number", index+1).
		Int("total_steps", len(sl.steps)).
		Msg("Starting pipeline step")
}

// CompleteStep records the duration of the running step
func (sl *StepLogger) CompleteStep() {
	if sl.current < 0 || sl.stepTimes[sl.current] > 0 {
		return
	}
	d := sl.now().Sub(sl.stepStart)
	if d <= 0 {
		d = time.Nanosecond
	}
	sl.stepTimes[sl.current] = d

	sl.logger.Debug().
		Str("pipeline", sl.name).
		Str("step", sl.steps[sl.current]).
		Dur("duration", d).
		Msg("Pipeline step completed")
}

// Finish logs the timing summary
func (sl *StepLogger) Finish() {
	sl.CompleteStep()
	total := sl.now().Sub(sl.startTime)

	ev := sl.logger.Info().Str("pipeline", sl.name).Dur("total_duration", total)
	for i, step := range sl.steps {
		ev = ev.Dur(step, sl.stepTimes[i])
	}
	ev.Msg("Pipeline completed")
}

// Fail logs the step that was running when the pipeline failed
func (sl *StepLogger) Fail(err error) {
	step := "none"
	if sl.current >= 0 {
		step = sl.steps[sl.current]
	}
	sl.logger.Error().
		Err(err).
		Str("pipeline", sl.name).
		Str("failed_step", step).
		Int("completed_steps", sl.current).
		Int("total_steps", len(sl.steps)).
		Msg("Pipeline failed")
}

// Durations returns the recorded step timings, in step order
func (sl *StepLogger) Durations() []time.Duration {
	return append([]time.Duration(nil), sl.stepTimes...)
}
