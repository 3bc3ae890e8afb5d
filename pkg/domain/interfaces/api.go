package interfaces

import (
	"context"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
)

// APIClient defines the operations of the infrastructure service used by the deploy pipeline
type APIClient interface {
	// LaunchWorker requests a build worker for the service at the given version
	LaunchWorker(ctx context.Context, serviceSlug, version string) (*model.LaunchWorkerResponse, error)

	// GetWorker returns details of a build worker
	GetWorker(ctx context.Context, workerSlug string) (*model.Worker, error)

	// DeployService triggers deploy of the service at the given version
	DeployService(ctx context.Context, serviceSlug, version string) (*model.DeployResponse, error)

	// GetExecutionLog returns the current state of an execution job
	GetExecutionLog(ctx context.Context, slug string) (*model.ExecutionLog, error)
}
