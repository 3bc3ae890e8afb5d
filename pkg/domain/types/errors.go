package types

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures of the deploy pipeline. Every error returned by the
// pipeline carries exactly one of them; check with goerr.HasTag.
var (
	ErrTagVersionResolution = goerr.NewTag("version_resolution")
	ErrTagProvisioning      = goerr.NewTag("provisioning")
	ErrTagPollTimeout       = goerr.NewTag("poll_timeout")
	ErrTagPollFailure       = goerr.NewTag("poll_failure")
	ErrTagFilesystem        = goerr.NewTag("filesystem")
	ErrTagPatternCompile    = goerr.NewTag("pattern_compile")
	ErrTagNetwork           = goerr.NewTag("network")
	ErrTagRemoteExecution   = goerr.NewTag("remote_execution")
	ErrTagUpload            = goerr.NewTag("upload")
	ErrTagTriggerDeploy     = goerr.NewTag("trigger_deploy")
)
