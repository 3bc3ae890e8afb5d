package interfaces

import (
	"context"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
)

// Notifier reports the outcome of a deploy run
type Notifier interface {
	NotifyDeploy(ctx context.Context, result *model.DeployResult) error
}
