package trigger

import (
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"pixelpath/internal/logging"
)

// RetrySchedule releases failed items on a cron schedule so the next scan
// picks them up again.
type RetrySchedule struct {
	spec     string
	releaser Releaser
	target   Target
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// NewRetrySchedule parses spec (standard five-field cron syntax).
func NewRetrySchedule(spec string, releaser Releaser, target Target, logger *slog.Logger) (*RetrySchedule, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, err
	}
	return &RetrySchedule{
		spec:     spec,
		releaser: releaser,
		target:   target,
		logger:   logging.NewComponentLogger(logger, "retry-schedule"),
	}, nil
}

// Start schedules the release job.
func (s *RetrySchedule) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithLogger(cronLogger{logger: s.logger}))
	id, err := c.AddFunc(s.spec, func() { s.RunNow() })
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.entryID = id
	s.logger.Info("retry schedule started",
		logging.String("schedule", s.spec),
		logging.Time("next_run", c.Entry(id).Next),
		logging.Event("retry_schedule_started"),
	)
	return nil
}

// Stop cancels the schedule and waits for a running release to finish.
func (s *RetrySchedule) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// RunNow releases failed items immediately and requests a scan when anything
// was released.
func (s *RetrySchedule) RunNow() int {
	released := s.releaser.ReleaseFailed()
	if released > 0 {
		s.logger.Info("failed items released for retry",
			logging.Int("released", released),
			logging.Event("retry_released"),
		)
		if s.target != nil {
			s.target.Trigger()
		}
	}
	return released
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err)}, keysAndValues...)
	l.logger.Warn(msg, args...)
}
