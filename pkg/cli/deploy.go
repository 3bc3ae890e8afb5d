package cli

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/chiliseed/chiliseed-cli/pkg/cli/config"
	"github.com/chiliseed/chiliseed-cli/pkg/domain/interfaces"
	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
	"github.com/chiliseed/chiliseed-cli/pkg/infra/git"
	"github.com/chiliseed/chiliseed-cli/pkg/infra/ssh"
	"github.com/chiliseed/chiliseed-cli/pkg/usecase"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/console"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
)

func cmdDeploy(g *globals) *cli.Command {
	var (
		deployCfg config.Deploy
		notifyCfg config.Notify
	)

	flags := append(deployCfg.Flags(), notifyCfg.Flags()...)

	return &cli.Command{
		Name:                      "deploy",
		Aliases:                   []string{"d"},
		Usage:                     "Build the current directory on a build worker and deploy it",
		Flags:                     flags,
		DisableSliceFlagSeparator: true,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := g.file.ApplyDeploy(c, &deployCfg, &notifyCfg); err != nil {
				return err
			}
			if err := deployCfg.Validate(); err != nil {
				return err
			}

			con := g.console
			req := &model.DeployRequest{
				Service: model.Service{
					Slug: deployCfg.Service,
					Name: deployCfg.ServiceName,
				},
				BuildArgs: deployCfg.BuildArgs,
			}
			opts := append(deployCfg.Options(), usecase.WithConsole(con))
			resolver := git.NewResolver(deployCfg.WorkDir)

			if deployCfg.DryRun {
				return dryRun(ctx, con, usecase.NewDeploy(nil, resolver, nil, opts...), req)
			}

			logger := logging.From(ctx)
			logger.Info("Starting deploy",
				"service", deployCfg.Service,
				"work_dir", deployCfg.WorkDir,
				"api_host", g.api.Host,
			)

			client, err := g.api.NewClient(ctx)
			if err != nil {
				return err
			}

			if n := notifyCfg.Notifier(); n != nil {
				opts = append(opts, usecase.WithNotifier(n))
			}

			uc := usecase.NewDeploy(
				client,
				resolver,
				ssh.NewDialer(ssh.WithOutput(con.Out(), con.Err())),
				opts...,
			)

			result, err := uc.Deploy(ctx, req)
			if err != nil {
				con.Error("Deploy failed at %s", result.Stage)
				return err
			}

			con.Success("Version %s of %s is live (took %s)", result.Version, result.Service.DisplayName(), result.Duration.Round(time.Second))
			return nil
		},
	}
}

func dryRun(ctx context.Context, con *console.Console, uc interfaces.DeployUseCase, req *model.DeployRequest) error {
	plan, err := uc.Plan(ctx, req)
	if err != nil {
		return err
	}

	con.Info("Dry run of %s at version %s", plan.Service.DisplayName(), plan.Version)
	con.Info("Package %s (%d bytes, %d files)", plan.Package, plan.PackageSize, len(plan.Files))
	for _, f := range plan.Files {
		con.Info("  %s", f)
	}
	con.Remote(plan.BuildCommand)
	return nil
}
