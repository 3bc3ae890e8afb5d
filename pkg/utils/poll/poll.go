package poll

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
	"github.com/chiliseed/chiliseed-cli/pkg/domain/types"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/console"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 30 * time.Minute
)

// StatusFunc fetches the current status of a job
type StatusFunc func(ctx context.Context) (model.JobStatus, error)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

type config struct {
	interval time.Duration
	timeout  time.Duration
	sleep    SleepFunc
	console  *console.Console
	label    string
}

// Option configures Await
type Option func(*config)

// WithInterval sets the wait between two status checks
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		c.interval = d
	}
}

// WithTimeout sets the total time to wait before giving up
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithSleep replaces the sleep function, mainly for tests
func WithSleep(fn SleepFunc) Option {
	return func(c *config) {
		c.sleep = fn
	}
}

// WithConsole sets where progress messages are printed
func WithConsole(con *console.Console) Option {
	return func(c *config) {
		c.console = con
	}
}

// WithLabel names the job in progress messages
func WithLabel(label string) Option {
	return func(c *config) {
		c.label = label
	}
}

// Sleep is the default SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Await calls fetch until it reports a definite result or the timeout elapses.
// It returns true on success. On failure, timeout or a fetch error it returns false
// with an error tagged ErrTagPollFailure or ErrTagPollTimeout. Elapsed time is the
// sum of the intervals slept.
func Await(ctx context.Context, fetch StatusFunc, opts ...Option) (bool, error) {
	cfg := &config{
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		sleep:    Sleep,
		console:  console.Discard(),
		label:    "job",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := logging.From(ctx)
	var waited time.Duration
	fetches := 0

	for {
		if waited >= cfg.timeout {
			cfg.console.Error("Timed out after %s waiting for %s. Please contact support for help", cfg.timeout, cfg.label)
			return false, goerr.New("timed out waiting for job",
				goerr.T(types.ErrTagPollTimeout),
				goerr.V("label", cfg.label),
				goerr.V("timeout", cfg.timeout.String()),
				goerr.V("fetches", fetches),
			)
		}

		cfg.console.Info("Checking %s status", cfg.label)
		status, err := fetch(ctx)
		fetches++
		if err != nil {
			cfg.console.Error("Error checking %s status", cfg.label)
			return false, goerr.Wrap(err, "failed to fetch job status",
				goerr.T(types.ErrTagPollFailure),
				goerr.V("label", cfg.label),
			)
		}

		logger.Debug("Polled job status",
			"label", cfg.label,
			"status", status.String(),
			"waited", waited.String(),
		)

		switch status {
		case model.JobSucceeded:
			cfg.console.Success("%s succeeded after %s", cfg.label, waited)
			return true, nil
		case model.JobFailed:
			cfg.console.Error("%s failed after %s", cfg.label, waited)
			return false, goerr.New("job failed",
				goerr.T(types.ErrTagPollFailure),
				goerr.V("label", cfg.label),
				goerr.V("waited", waited.String()),
			)
		}

		cfg.console.Info("Still waiting for %s [%s]", cfg.label, waited)
		if err := cfg.sleep(ctx, cfg.interval); err != nil {
			return false, goerr.Wrap(err, "interrupted while waiting for job",
				goerr.T(types.ErrTagPollFailure),
				goerr.V("label", cfg.label),
			)
		}
		waited += cfg.interval
	}
}

// ExecutionLogFunc adapts an execution log getter to a StatusFunc
func ExecutionLogFunc(slug string, get func(ctx context.Context, slug string) (*model.ExecutionLog, error)) StatusFunc {
	return func(ctx context.Context) (model.JobStatus, error) {
		log, err := get(ctx, slug)
		if err != nil {
			return model.JobPending, err
		}
		return log.Status(), nil
	}
}
