package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/chiliseed/chiliseed-cli/pkg/usecase"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/poll"
)

// Deploy holds configuration of the deploy command
type Deploy struct {
	Service       string
	ServiceName   string
	BuildArgs     []string
	WorkDir       string
	BuildUser     string
	SSHPort       int
	PollInterval  time.Duration
	WorkerTimeout time.Duration
	DeployTimeout time.Duration
	DryRun        bool
}

// Flags returns CLI flags for deploy configuration
func (c *Deploy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "service",
			Aliases:     []string{"s"},
			Usage:       "Slug of the service to deploy",
			Destination: &c.Service,
			Sources:     cli.EnvVars("CHILISEED_SERVICE"),
		},
		&cli.StringFlag{
			Name:        "service-name",
			Usage:       "Display name of the service",
			Destination: &c.ServiceName,
			Sources:     cli.EnvVars("CHILISEED_SERVICE_NAME"),
		},
		&cli.StringSliceFlag{
			Name:        "build-arg",
			Usage:       "Build argument passed to the remote build (repeatable)",
			Destination: &c.BuildArgs,
			Sources:     cli.EnvVars("CHILISEED_BUILD_ARGS"),
		},
		&cli.StringFlag{
			Name:        "work-dir",
			Usage:       "Build context directory",
			Value:       ".",
			Destination: &c.WorkDir,
			Sources:     cli.EnvVars("CHILISEED_WORK_DIR"),
		},
		&cli.StringFlag{
			Name:        "build-user",
			Usage:       "User on the build worker",
			Value:       usecase.DefaultBuildUser,
			Destination: &c.BuildUser,
			Sources:     cli.EnvVars("CHILISEED_BUILD_USER"),
		},
		&cli.IntFlag{
			Name:        "ssh-port",
			Usage:       "SSH port of the build worker",
			Value:       usecase.DefaultSSHPort,
			Destination: &c.SSHPort,
			Sources:     cli.EnvVars("CHILISEED_SSH_PORT"),
		},
		&cli.DurationFlag{
			Name:        "poll-interval",
			Usage:       "Interval between status checks",
			Value:       poll.DefaultInterval,
			Destination: &c.PollInterval,
			Sources:     cli.EnvVars("CHILISEED_POLL_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:        "worker-timeout",
			Usage:       "Time to wait for the build worker to be ready",
			Value:       usecase.DefaultWorkerTimeout,
			Destination: &c.WorkerTimeout,
			Sources:     cli.EnvVars("CHILISEED_WORKER_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:        "deploy-timeout",
			Usage:       "Time to wait for the deployment to finish",
			Value:       usecase.DefaultDeployTimeout,
			Destination: &c.DeployTimeout,
			Sources:     cli.EnvVars("CHILISEED_DEPLOY_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Pack the build context and show what would be uploaded and run, without contacting the API",
			Destination: &c.DryRun,
			Sources:     cli.EnvVars("CHILISEED_DRY_RUN"),
		},
	}
}

// Validate checks values that may come from the config file as well as flags
func (c *Deploy) Validate() error {
	if c.Service == "" {
		return goerr.New("service is required (--service or [deploy] service)")
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		return goerr.New("invalid ssh port", goerr.V("port", c.SSHPort))
	}
	if c.PollInterval <= 0 {
		return goerr.New("poll interval must be positive", goerr.V("interval", c.PollInterval.String()))
	}
	if c.WorkerTimeout <= 0 || c.DeployTimeout <= 0 {
		return goerr.New("timeouts must be positive",
			goerr.V("worker_timeout", c.WorkerTimeout.String()),
			goerr.V("deploy_timeout", c.DeployTimeout.String()),
		)
	}
	return nil
}

// Options converts the configuration into deploy pipeline options
func (c *Deploy) Options() []usecase.DeployOption {
	return []usecase.DeployOption{
		usecase.WithWorkDir(c.WorkDir),
		usecase.WithBuildUser(c.BuildUser),
		usecase.WithSSHPort(c.SSHPort),
		usecase.WithPollInterval(c.PollInterval),
		usecase.WithWorkerTimeout(c.WorkerTimeout),
		usecase.WithDeployTimeout(c.DeployTimeout),
	}
}
