package model

import "time"

// Service identifies the service to deploy
type Service struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// DisplayName returns the service name, falling back to its slug
func (s *Service) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Slug
}

// DeployResponse is returned when a service deploy is triggered
type DeployResponse struct {
	Deployment string `json:"deployment"`
	Log        string `json:"log"`
}

// DeployRequest holds the input of a deploy run
type DeployRequest struct {
	Service   Service
	BuildArgs []string // Passed as --build-arg to the remote build
}

// DeployStage is a step of the deploy pipeline
type DeployStage string

const (
	StageResolveVersion DeployStage = "resolve_version"
	StageCompileIgnore  DeployStage = "compile_ignore"
	StageLaunchWorker   DeployStage = "launch_worker"
	StageAwaitWorker    DeployStage = "await_worker"
	StageFetchWorker    DeployStage = "fetch_worker"
	StageSSHKey         DeployStage = "ssh_key"
	StageArchive        DeployStage = "archive"
	StageConnect        DeployStage = "connect"
	StageUpload         DeployStage = "upload"
	StageRemoteBuild    DeployStage = "remote_build"
	StageTriggerDeploy  DeployStage = "trigger_deploy"
	StageAwaitDeploy    DeployStage = "await_deploy"
	StageDone           DeployStage = "done"
)

// DeployStatus is the overall outcome of a deploy run
type DeployStatus string

const (
	DeployStatusSucceeded DeployStatus = "succeeded"
	DeployStatusFailed    DeployStatus = "failed"
)

// DeployResult represents the outcome of a deploy run. Stage is the last stage
// entered, so on failure it names the step that failed.
type DeployResult struct {
	Service    Service
	Status     DeployStatus
	Stage      DeployStage
	Version    string
	WorkerSlug string
	Package    string
	RunSlug    string
	Duration   time.Duration
	Err        error
}

// Succeeded reports whether the deploy finished successfully
func (r *DeployResult) Succeeded() bool {
	return r.Status == DeployStatusSucceeded
}

// DeployPlan describes what a deploy would upload and run, without contacting any worker
type DeployPlan struct {
	Service      Service
	Version      string
	Package      string
	PackageSize  int64
	Files        []string // Entries of the build package
	BuildCommand string
}
