package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"

	"catalogwatch/pkg/logx"
)

// Config configures a Runner.
type Config struct {
	Spec       string
	Timezone   string // IANA name; empty means local time
	RunOnStart bool
}

// Job is one scheduled run. ctx is canceled when the runner stops.
type Job func(ctx context.Context)

// Runner fires a Job on a schedule.
type Runner struct {
	spec  Spec
	sched cron.Schedule
	loc   *time.Location
	cfg   Config
	job   Job
	log   logx.Logger
}

func NewRunner(cfg Config, job Job, log logx.Logger) (*Runner, error) {
	if job == nil {
		return nil, errors.New("schedule: nil job")
	}
	spec, err := ParseSchedule(cfg.Spec)
	if err != nil {
		return nil, err
	}
	sched, err := spec.Schedule()
	if err != nil {
		return nil, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, errors.Wrapf(err, "schedule: timezone %q", tz)
		}
	}
	return &Runner{
		spec:  spec,
		sched: sched,
		loc:   loc,
		cfg:   cfg,
		job:   job,
		log:   log.With(logx.String("comp", "schedule")),
	}, nil
}

func (r *Runner) Spec() Spec { return r.spec }

// NextAfter returns the first trigger strictly after t, in the runner's
// timezone.
func (r *Runner) NextAfter(t time.Time) time.Time {
	return r.sched.Next(t.In(r.loc))
}

// Run triggers the job until ctx is done, then waits for an in-flight run
// to return.
func (r *Runner) Run(ctx context.Context) error {
	lg := cronLogger{log: r.log}
	c := cron.New(cron.WithLocation(r.loc), cron.WithLogger(lg))

	// SkipIfStillRunning also covers the run_on_start trigger below.
	wrapped := cron.NewChain(cron.Recover(lg), cron.SkipIfStillRunning(lg)).
		Then(cron.FuncJob(func() {
			if ctx.Err() != nil {
				return
			}
			r.job(ctx)
		}))
	c.Schedule(r.sched, wrapped)
	c.Start()

	r.log.Info("scheduler started",
		logx.String("schedule", r.spec.String()),
		logx.String("tz", r.loc.String()),
		logx.String("next", r.NextAfter(time.Now()).Format(time.RFC3339)),
		logx.Bool("run_on_start", r.cfg.RunOnStart),
	)
	// cron only tracks the runs it starts itself.
	var first sync.WaitGroup
	if r.cfg.RunOnStart {
		first.Add(1)
		go func() {
			defer first.Done()
			wrapped.Run()
		}()
	}

	<-ctx.Done()
	start := time.Now()
	<-c.Stop().Done()
	first.Wait()
	r.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	return nil
}

// cronLogger adapts logx to cron.Logger. cron's info output (every
// wake-up) is logged at debug.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
