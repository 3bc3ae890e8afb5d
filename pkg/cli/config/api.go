package config

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/chiliseed/chiliseed-cli/pkg/infra/api"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
)

// API holds configuration of the chiliseed REST API
type API struct {
	Host     string
	Token    string `masq:"secret"`
	Email    string
	Password string `masq:"secret"`
}

// Flags returns CLI flags for API configuration
func (c *API) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "api-host",
			Usage:       "Chiliseed API base URL",
			Value:       api.DefaultHost,
			Destination: &c.Host,
			Sources:     cli.EnvVars("CHILISEED_API_HOST"),
		},
		&cli.StringFlag{
			Name:        "api-token",
			Usage:       "Chiliseed API token",
			Destination: &c.Token,
			Sources:     cli.EnvVars("CHILISEED_API_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "email",
			Usage:       "Account email, used to log in when no token is given",
			Destination: &c.Email,
			Sources:     cli.EnvVars("CHILISEED_EMAIL"),
		},
		&cli.StringFlag{
			Name:        "password",
			Usage:       "Account password",
			Destination: &c.Password,
			Sources:     cli.EnvVars("CHILISEED_PASSWORD"),
		},
	}
}

// NewClient creates an authenticated API client. Without a token it logs in with
// email and password.
func (c *API) NewClient(ctx context.Context, opts ...api.Option) (*api.Client, error) {
	if c.Token != "" {
		return api.NewClient(c.Host, append(opts, api.WithToken(c.Token))...), nil
	}

	if c.Email == "" || c.Password == "" {
		return nil, goerr.New("API token or email and password are required")
	}

	client := api.NewClient(c.Host, opts...)
	if _, err := client.Login(ctx, c.Email, c.Password); err != nil {
		return nil, err
	}
	logging.From(ctx).Debug("Logged in to API", "host", c.Host, "email", c.Email)
	return client, nil
}
