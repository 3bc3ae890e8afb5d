package config

import (
	"github.com/urfave/cli/v3"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/interfaces"
	"github.com/chiliseed/chiliseed-cli/pkg/infra/slack"
)

// Notify holds configuration of deploy notifications
type Notify struct {
	SlackWebhookURL string `masq:"secret"`
}

func (c *Notify) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-webhook-url",
			Usage:       "Slack incoming webhook URL to report deploy results",
			Destination: &c.SlackWebhookURL,
			Sources:     cli.EnvVars("CHILISEED_SLACK_WEBHOOK_URL"),
		},
	}
}

// Notifier returns the configured notifier, or nil when notifications are disabled
func (c *Notify) Notifier() interfaces.Notifier {
	if c.SlackWebhookURL == "" {
		return nil
	}
	return slack.NewNotifier(c.SlackWebhookURL)
}
