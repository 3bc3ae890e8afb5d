package interfaces

import (
	"context"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
)

// DeployUseCase defines the deploy pipeline
type DeployUseCase interface {
	// Deploy builds the working tree on a remote worker and deploys the resulting version.
	// The result is always non-nil; the error is set when the run failed.
	Deploy(ctx context.Context, req *model.DeployRequest) (*model.DeployResult, error)

	// Plan packs the working tree as Deploy would and reports the package contents and
	// the remote build command. Local artifacts are removed before it returns.
	Plan(ctx context.Context, req *model.DeployRequest) (*model.DeployPlan, error)
}
