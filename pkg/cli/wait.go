package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/chiliseed/chiliseed-cli/pkg/cli/config"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/console"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/poll"
)

func cmdWait(g *globals) *cli.Command {
	var waitCfg config.Wait

	return &cli.Command{
		Name:    "wait",
		Aliases: []string{"w"},
		Usage:   "Wait for an execution job to finish",
		Flags:   waitCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := waitCfg.Validate(); err != nil {
				return err
			}

			client, err := g.api.NewClient(ctx)
			if err != nil {
				return err
			}

			_, err = poll.Await(ctx, poll.ExecutionLogFunc(waitCfg.Run, client.GetExecutionLog),
				poll.WithInterval(waitCfg.PollInterval),
				poll.WithTimeout(waitCfg.Timeout),
				poll.WithConsole(console.Std()),
				poll.WithLabel(waitCfg.Run),
			)
			return err
		},
	}
}
