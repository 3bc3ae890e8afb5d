package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// File is the optional TOML configuration file. Values apply to flags that were
// not set on the command line or through the environment.
type File struct {
	Path string `toml:"-"`

	API    FileAPI    `toml:"api"`
	Deploy FileDeploy `toml:"deploy"`
}

type FileAPI struct {
	Host  string `toml:"host"`
	Token string `toml:"token" masq:"secret"`
	Email string `toml:"email"`
}

type FileDeploy struct {
	Service         string   `toml:"service"`
	ServiceName     string   `toml:"service_name"`
	BuildArgs       []string `toml:"build_args"`
	WorkDir         string   `toml:"work_dir"`
	BuildUser       string   `toml:"build_user"`
	SSHPort         int      `toml:"ssh_port"`
	PollInterval    string   `toml:"poll_interval"`
	WorkerTimeout   string   `toml:"worker_timeout"`
	DeployTimeout   string   `toml:"deploy_timeout"`
	SlackWebhookURL string   `toml:"slack_webhook_url" masq:"secret"`
}

func (c *File) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to TOML configuration file",
			Destination: &c.Path,
			Sources:     cli.EnvVars("CHILISEED_CONFIG"),
		},
	}
}

// Load reads the file at Path. An empty Path leaves the configuration empty.
func (c *File) Load() error {
	if c.Path == "" {
		return nil
	}

	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", c.Path))
	}
	if err := toml.Unmarshal(raw, c); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", c.Path))
	}
	return nil
}

// ApplyAPI fills API settings not given by flag or environment
func (c *File) ApplyAPI(cmd *cli.Command, dst *API) {
	setString(cmd, "api-host", c.API.Host, &dst.Host)
	setString(cmd, "api-token", c.API.Token, &dst.Token)
	setString(cmd, "email", c.API.Email, &dst.Email)
}

// ApplyDeploy fills deploy and notification settings not given by flag or environment
func (c *File) ApplyDeploy(cmd *cli.Command, dst *Deploy, notify *Notify) error {
	d := c.Deploy
	setString(cmd, "service", d.Service, &dst.Service)
	setString(cmd, "service-name", d.ServiceName, &dst.ServiceName)
	setString(cmd, "work-dir", d.WorkDir, &dst.WorkDir)
	setString(cmd, "build-user", d.BuildUser, &dst.BuildUser)
	setString(cmd, "slack-webhook-url", d.SlackWebhookURL, &notify.SlackWebhookURL)

	if len(d.BuildArgs) > 0 && !cmd.IsSet("build-arg") {
		dst.BuildArgs = append([]string{}, d.BuildArgs...)
	}
	if d.SSHPort != 0 && !cmd.IsSet("ssh-port") {
		dst.SSHPort = d.SSHPort
	}

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"poll-interval", d.PollInterval, &dst.PollInterval},
		{"worker-timeout", d.WorkerTimeout, &dst.WorkerTimeout},
		{"deploy-timeout", d.DeployTimeout, &dst.DeployTimeout},
	}
	for _, dur := range durations {
		if dur.value == "" || cmd.IsSet(dur.flag) {
			continue
		}
		v, err := time.ParseDuration(dur.value)
		if err != nil {
			return goerr.Wrap(err, "invalid duration in config file",
				goerr.V("path", c.Path),
				goerr.V("key", dur.flag),
				goerr.V("value", dur.value),
			)
		}
		*dur.dst = v
	}

	return nil
}

func setString(cmd *cli.Command, flag, value string, dst *string) {
	if value != "" && !cmd.IsSet(flag) {
		*dst = value
	}
}
