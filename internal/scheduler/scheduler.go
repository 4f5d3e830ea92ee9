package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// parser accepts standard five-field specs, an optional leading seconds field
// and descriptors such as @hourly or @every 30s
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSpec reports whether spec is a schedule the runner accepts
func ValidateSpec(spec string) error {
	if spec == "" {
		return fmt.Errorf("empty schedule")
	}
	if _, err := parser.Parse(spec); err != nil {
		return err
	}
	return nil
}

// Runner runs named jobs on cron schedules. A job still running when its next
// tick fires is skipped, and a panicking job is logged and recovered.
type Runner struct {
	cron    *cron.Cron
	log     *logrus.Logger
	baseCtx context.Context
}

// New creates a runner whose jobs receive ctx
func New(ctx context.Context, log *logrus.Logger) *Runner {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cronLogger{log: log}
	return &Runner{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		log:     log,
		baseCtx: ctx,
	}
}

// Add registers a job under a name used in logs
func (r *Runner) Add(name, spec string, job func(context.Context)) error {
	_, err := r.cron.AddFunc(spec, func() {
		if r.baseCtx.Err() != nil {
			return
		}
		job(r.baseCtx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}

	r.log.WithFields(logrus.Fields{
		"job":      name,
		"schedule": spec,
	}).Info("Scheduled job")
	return nil
}

// Jobs returns the number of registered jobs
func (r *Runner) Jobs() int {
	return len(r.cron.Entries())
}

// Start begins running jobs in the background
func (r *Runner) Start() {
	r.log.Info("Scheduler started")
	r.cron.Start()
}

// Stop prevents new runs and waits for running jobs to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("Scheduler stopped")
}

// cronLogger adapts logrus to the cron.Logger interface
type cronLogger struct {
	log *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}
