package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/chiliseed/chiliseed-cli/pkg/utils/poll"
)

// Wait holds configuration of the wait command
type Wait struct {
	Run          string
	PollInterval time.Duration
	Timeout      time.Duration
}

func (c *Wait) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "run",
			Aliases:     []string{"r"},
			Usage:       "Slug of the execution log to wait for",
			Required:    true,
			Destination: &c.Run,
		},
		&cli.DurationFlag{
			Name:        "poll-interval",
			Usage:       "Interval between status checks",
			Value:       poll.DefaultInterval,
			Destination: &c.PollInterval,
			Sources:     cli.EnvVars("CHILISEED_POLL_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Time to wait before giving up",
			Value:       poll.DefaultTimeout,
			Destination: &c.Timeout,
			Sources:     cli.EnvVars("CHILISEED_WAIT_TIMEOUT"),
		},
	}
}

func (c *Wait) Validate() error {
	if c.PollInterval <= 0 || c.Timeout <= 0 {
		return goerr.New("poll interval and timeout must be positive",
			goerr.V("interval", c.PollInterval.String()),
			goerr.V("timeout", c.Timeout.String()),
		)
	}
	return nil
}
