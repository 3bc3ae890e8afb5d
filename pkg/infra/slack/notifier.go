package slack

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
)

const (
	colorSucceeded = "good"
	colorFailed    = "danger"
)

// Notifier posts deploy results to a Slack incoming webhook.
// It satisfies interfaces.Notifier.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

type Option func(*Notifier)

// WithHTTPClient replaces the HTTP client used for the webhook call
func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) {
		n.httpClient = hc
	}
}

func NewNotifier(webhookURL string, opts ...Option) *Notifier {
	n := &Notifier{
		webhookURL: webhookURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyDeploy sends a summary of result
func (n *Notifier) NotifyDeploy(ctx context.Context, result *model.DeployResult) error {
	msg := BuildMessage(result)
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg); err != nil {
		return goerr.Wrap(err, "failed to post slack message",
			goerr.V("service", result.Service.Slug),
		)
	}
	return nil
}

// BuildMessage renders result as a webhook message
func BuildMessage(result *model.DeployResult) *slack.WebhookMessage {
	name := result.Service.DisplayName()

	text := fmt.Sprintf("Deploy of *%s* (%s) succeeded", name, result.Version)
	color := colorSucceeded
	if !result.Succeeded() {
		text = fmt.Sprintf("Deploy of *%s* (%s) failed at %s", name, result.Version, result.Stage)
		color = colorFailed
	}

	fields := []slack.AttachmentField{
		{Title: "Service", Value: result.Service.Slug, Short: true},
		{Title: "Version", Value: result.Version, Short: true},
		{Title: "Duration", Value: result.Duration.Round(time.Second).String(), Short: true},
	}
	if result.WorkerSlug != "" {
		fields = append(fields, slack.AttachmentField{Title: "Build worker", Value: result.WorkerSlug, Short: true})
	}
	if result.RunSlug != "" {
		fields = append(fields, slack.AttachmentField{Title: "Deploy log", Value: result.RunSlug, Short: true})
	}
	if result.Err != nil {
		fields = append(fields, slack.AttachmentField{Title: "Error", Value: result.Err.Error()})
	}

	return &slack.WebhookMessage{
		Text: text,
		Attachments: []slack.Attachment{
			{
				Color:  color,
				Fields: fields,
			},
		},
	}
}
