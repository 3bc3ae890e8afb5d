package usecase

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/interfaces"
	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
	"github.com/chiliseed/chiliseed-cli/pkg/domain/types"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/archive"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/console"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/ignore"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/poll"
)

const (
	DefaultBuildUser     = "ubuntu"
	DefaultSSHPort       = 22
	DefaultRemoteTmpDir  = "/tmp"
	DefaultWorkerTimeout = 30 * time.Minute
	DefaultDeployTimeout = 30 * time.Minute

	buildWorkerBinary = "chiliseed-build-worker"
	remoteDeployDir   = "deployment"
	packageMode       = 0644
	keyFileMode       = 0400
)

type deployUseCase struct {
	api      interfaces.APIClient
	versions interfaces.VersionResolver
	dialer   interfaces.RemoteDialer
	notifier interfaces.Notifier

	workDir       string
	stagingDir    string
	buildUser     string
	sshPort       int
	remoteTmpDir  string
	pollInterval  time.Duration
	workerTimeout time.Duration
	deployTimeout time.Duration
	sleep         poll.SleepFunc
	console       *console.Console
}

type DeployOption func(*deployUseCase)

// WithWorkDir sets the build context directory. Default is the current directory.
func WithWorkDir(dir string) DeployOption {
	return func(uc *deployUseCase) {
		uc.workDir = dir
	}
}

// WithStagingDir sets the name of the staging directory created in the work dir
func WithStagingDir(name string) DeployOption {
	return func(uc *deployUseCase) {
		uc.stagingDir = name
	}
}

func WithBuildUser(user string) DeployOption {
	return func(uc *deployUseCase) {
		uc.buildUser = user
	}
}

func WithSSHPort(port int) DeployOption {
	return func(uc *deployUseCase) {
		uc.sshPort = port
	}
}

// WithRemoteTmpDir sets where the build package is uploaded on the worker
func WithRemoteTmpDir(dir string) DeployOption {
	return func(uc *deployUseCase) {
		uc.remoteTmpDir = dir
	}
}

func WithPollInterval(d time.Duration) DeployOption {
	return func(uc *deployUseCase) {
		uc.pollInterval = d
	}
}

// WithWorkerTimeout bounds the wait for a build worker to become ready
func WithWorkerTimeout(d time.Duration) DeployOption {
	return func(uc *deployUseCase) {
		uc.workerTimeout = d
	}
}

// WithDeployTimeout bounds the wait for the deployment to finish
func WithDeployTimeout(d time.Duration) DeployOption {
	return func(uc *deployUseCase) {
		uc.deployTimeout = d
	}
}

// WithSleep replaces the sleep between status checks, mainly for tests
func WithSleep(fn poll.SleepFunc) DeployOption {
	return func(uc *deployUseCase) {
		uc.sleep = fn
	}
}

func WithConsole(c *console.Console) DeployOption {
	return func(uc *deployUseCase) {
		uc.console = c
	}
}

// WithNotifier reports every deploy result to n
func WithNotifier(n interfaces.Notifier) DeployOption {
	return func(uc *deployUseCase) {
		uc.notifier = n
	}
}

// NewDeploy creates the deploy pipeline
func NewDeploy(api interfaces.APIClient, versions interfaces.VersionResolver, dialer interfaces.RemoteDialer, opts ...DeployOption) interfaces.DeployUseCase {
	uc := &deployUseCase{
		api:           api,
		versions:      versions,
		dialer:        dialer,
		workDir:       ".",
		stagingDir:    ignore.DefaultStagingDir,
		buildUser:     DefaultBuildUser,
		sshPort:       DefaultSSHPort,
		remoteTmpDir:  DefaultRemoteTmpDir,
		pollInterval:  poll.DefaultInterval,
		workerTimeout: DefaultWorkerTimeout,
		deployTimeout: DefaultDeployTimeout,
		sleep:         poll.Sleep,
		console:       console.Discard(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Deploy builds the working tree on a remote worker and deploys the resulting version
func (uc *deployUseCase) Deploy(ctx context.Context, req *model.DeployRequest) (*model.DeployResult, error) {
	logger := logging.From(ctx).With("service", req.Service.Slug)
	ctx = logging.With(ctx, logger)

	started := time.Now()
	result := &model.DeployResult{
		Service: req.Service,
		Status:  model.DeployStatusFailed,
	}

	err := uc.run(ctx, req, result)
	result.Duration = time.Since(started)
	if err != nil {
		result.Err = err
		logger.Error("Deploy failed",
			"stage", result.Stage,
			"version", result.Version,
			"error", err,
		)
	} else {
		result.Status = model.DeployStatusSucceeded
		result.Stage = model.StageDone
		logger.Info("Deploy succeeded",
			"version", result.Version,
			"duration", result.Duration.String(),
		)
	}

	if uc.notifier != nil {
		if nerr := uc.notifier.NotifyDeploy(ctx, result); nerr != nil {
			logger.Warn("Failed to send deploy notification", "error", nerr)
		}
	}

	return result, err
}

func (uc *deployUseCase) run(ctx context.Context, req *model.DeployRequest, result *model.DeployResult) error {
	logger := logging.From(ctx)
	name := req.Service.DisplayName()

	result.Stage = model.StageResolveVersion
	version, err := uc.resolveVersion(ctx)
	if err != nil {
		return err
	}
	result.Version = version
	uc.console.Info("Deploying %s at version %s", name, version)

	result.Stage = model.StageCompileIgnore
	matcher, err := ignore.Load(uc.workDir, ignore.WithStagingDir(uc.stagingDir))
	if err != nil {
		return err
	}
	logger.Debug("Compiled exclusion rules", "rules", matcher.Rules())

	result.Stage = model.StageLaunchWorker
	uc.console.Info("Launching build worker")
	launched, err := uc.api.LaunchWorker(ctx, req.Service.Slug, version)
	if err != nil {
		return goerr.Wrap(err, "failed to launch build worker",
			goerr.T(types.ErrTagProvisioning),
			goerr.V("version", version),
		)
	}
	result.WorkerSlug = launched.Build

	if logSlug := launched.LogSlug(); logSlug != "" {
		result.Stage = model.StageAwaitWorker
		uc.console.Info("Waiting for build worker to be ready")
		if _, err := poll.Await(ctx, poll.ExecutionLogFunc(logSlug, uc.api.GetExecutionLog),
			uc.pollOptions(uc.workerTimeout, "build worker")...,
		); err != nil {
			return err
		}
	}

	result.Stage = model.StageFetchWorker
	worker, err := uc.api.GetWorker(ctx, launched.Build)
	if err != nil {
		return goerr.Wrap(err, "failed to get build worker",
			goerr.T(types.ErrTagProvisioning),
			goerr.V("worker", launched.Build),
		)
	}
	if worker.PublicIP == "" || worker.SSHKeyName == "" {
		return goerr.New("build worker has no address or key",
			goerr.T(types.ErrTagProvisioning),
			goerr.V("worker", launched.Build),
		)
	}

	result.Stage = model.StageSSHKey
	keyPath, err := uc.writeKey(ctx, worker)
	if err != nil {
		return err
	}

	result.Stage = model.StageArchive
	uc.console.Info("Packing build context")
	stagingPath := filepath.Join(uc.workDir, uc.stagingDir)
	defer uc.removeLocal(ctx, stagingPath)

	manifest, err := archive.Stage(ctx, uc.workDir, stagingPath, matcher)
	if err != nil {
		return err
	}
	pkg, err := archive.Pack(manifest.Dir, uc.workDir)
	if err != nil {
		return err
	}
	defer uc.removeLocal(ctx, pkg.Path)
	result.Package = pkg.Name
	logger.Info("Packed build context", "package", pkg.Name, "size", pkg.Size, "file_count", len(manifest.Files))

	result.Stage = model.StageConnect
	addr := net.JoinHostPort(worker.PublicIP, strconv.Itoa(uc.sshPort))
	uc.console.Info("Connecting to build worker at %s", addr)
	sess, err := uc.dialer.Dial(ctx, addr, uc.buildUser, keyPath)
	if err != nil {
		return goerr.Wrap(err, "failed to connect to build worker",
			goerr.T(types.ErrTagNetwork),
			goerr.V("addr", addr),
		)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("Failed to close ssh session", "error", err)
		}
	}()

	result.Stage = model.StageUpload
	remotePkg := path.Join(uc.remoteTmpDir, pkg.Name)
	uc.console.Info("Uploading %s", pkg.Name)
	if err := sess.Upload(ctx, pkg.Path, remotePkg, packageMode); err != nil {
		return goerr.Wrap(err, "failed to upload build package",
			goerr.T(types.ErrTagUpload),
			goerr.V("remote", remotePkg),
		)
	}

	result.Stage = model.StageRemoteBuild
	home := path.Join("/home", uc.buildUser)
	deployDir := path.Join(home, remoteDeployDir)
	if err := uc.remote(ctx, sess, "mkdir -p "+deployDir); err != nil {
		return err
	}
	if err := uc.remote(ctx, sess, fmt.Sprintf("tar -xzvf %s -C %s", remotePkg, deployDir)); err != nil {
		return err
	}
	uc.removeLocal(ctx, pkg.Path, stagingPath)

	if err := uc.remote(ctx, sess, BuildCommand(uc.buildWorkerPath(), version, req.BuildArgs)); err != nil {
		return err
	}

	result.Stage = model.StageTriggerDeploy
	uc.console.Info("Deploying version %s", version)
	deployed, err := uc.api.DeployService(ctx, req.Service.Slug, version)
	if err != nil {
		return goerr.Wrap(err, "failed to trigger deploy",
			goerr.T(types.ErrTagTriggerDeploy),
			goerr.V("version", version),
		)
	}
	if deployed.Log == "" {
		return goerr.New("deploy response has no execution log",
			goerr.T(types.ErrTagTriggerDeploy),
			goerr.V("deployment", deployed.Deployment),
			goerr.V("version", version),
		)
	}
	result.RunSlug = deployed.Log

	result.Stage = model.StageAwaitDeploy
	if _, err := poll.Await(ctx, poll.ExecutionLogFunc(deployed.Log, uc.api.GetExecutionLog),
		uc.pollOptions(uc.deployTimeout, "deployment")...,
	); err != nil {
		return err
	}

	uc.console.Success("Deployed %s at version %s", name, version)
	return nil
}

// Plan packs the working tree and checks that the package unpacks, without any API call
func (uc *deployUseCase) Plan(ctx context.Context, req *model.DeployRequest) (*model.DeployPlan, error) {
	version, err := uc.resolveVersion(ctx)
	if err != nil {
		return nil, err
	}
	matcher, err := ignore.Load(uc.workDir, ignore.WithStagingDir(uc.stagingDir))
	if err != nil {
		return nil, err
	}

	stagingPath := filepath.Join(uc.workDir, uc.stagingDir)
	defer uc.removeLocal(ctx, stagingPath)

	manifest, err := archive.Stage(ctx, uc.workDir, stagingPath, matcher)
	if err != nil {
		return nil, err
	}
	pkg, err := archive.Pack(manifest.Dir, uc.workDir)
	if err != nil {
		return nil, err
	}
	defer uc.removeLocal(ctx, pkg.Path)

	extractDir, err := os.MkdirTemp("", "chiliseed-plan-")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create temporary directory", goerr.T(types.ErrTagFilesystem))
	}
	defer uc.removeLocal(ctx, extractDir)

	files, err := archive.Extract(pkg.Path, extractDir)
	if err != nil {
		return nil, err
	}

	return &model.DeployPlan{
		Service:      req.Service,
		Version:      version,
		Package:      pkg.Name,
		PackageSize:  pkg.Size,
		Files:        files,
		BuildCommand: BuildCommand(uc.buildWorkerPath(), version, req.BuildArgs),
	}, nil
}

func (uc *deployUseCase) resolveVersion(ctx context.Context) (string, error) {
	version, err := uc.versions.Resolve(ctx)
	if err != nil {
		uc.console.Error("Failed to resolve version from git")
		return "", goerr.Wrap(err, "failed to resolve version", goerr.T(types.ErrTagVersionResolution))
	}
	return version, nil
}

func (uc *deployUseCase) buildWorkerPath() string {
	return path.Join("/home", uc.buildUser, buildWorkerBinary)
}

func (uc *deployUseCase) pollOptions(timeout time.Duration, label string) []poll.Option {
	return []poll.Option{
		poll.WithInterval(uc.pollInterval),
		poll.WithTimeout(timeout),
		poll.WithSleep(uc.sleep),
		poll.WithConsole(uc.console),
		poll.WithLabel(label),
	}
}

// writeKey stores the worker private key in the work dir. An existing file is kept as is.
func (uc *deployUseCase) writeKey(ctx context.Context, worker *model.Worker) (string, error) {
	keyPath := filepath.Join(uc.workDir, worker.KeyFileName())

	if _, err := os.Stat(keyPath); err == nil {
		logging.From(ctx).Debug("SSH key already exists", "path", keyPath)
		return keyPath, nil
	} else if !os.IsNotExist(err) {
		return "", goerr.Wrap(err, "failed to check ssh key file",
			goerr.T(types.ErrTagFilesystem),
			goerr.V("path", keyPath),
		)
	}

	if err := os.WriteFile(keyPath, []byte(worker.SSHKey), keyFileMode); err != nil {
		return "", goerr.Wrap(err, "failed to write ssh key file",
			goerr.T(types.ErrTagFilesystem),
			goerr.V("path", keyPath),
		)
	}
	logging.From(ctx).Debug("Saved SSH key", "path", keyPath)
	return keyPath, nil
}

// remote runs command on the worker and fails on a non-zero exit status
func (uc *deployUseCase) remote(ctx context.Context, sess interfaces.RemoteSession, command string) error {
	uc.console.Remote(command)

	code, err := sess.Exec(ctx, command)
	if err != nil {
		return goerr.Wrap(err, "failed to run remote command",
			goerr.T(types.ErrTagRemoteExecution),
			goerr.V("command", command),
		)
	}
	if code != 0 {
		uc.console.Error("Remote command exited with status %d", code)
		return goerr.New("remote command failed",
			goerr.T(types.ErrTagRemoteExecution),
			goerr.V("command", command),
			goerr.V("exit_code", code),
		)
	}
	return nil
}

func (uc *deployUseCase) removeLocal(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			logging.From(ctx).Warn("Failed to remove local build artifact", "path", p, "error", err)
		}
	}
}

var plainArg = regexp.MustCompile(`^[A-Za-z0-9_=./:,@+%-]+$`)

// BuildCommand renders the remote build invocation. Arguments with shell
// metacharacters are single-quoted.
func BuildCommand(binary, version string, buildArgs []string) string {
	parts := []string{binary, "-v", quoteArg(version)}
	for _, arg := range buildArgs {
		parts = append(parts, "--build-arg", quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if plainArg.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
