package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// GetSnapCommand returns the command that sends a single frame
func GetSnapCommand() *cli.Command {
	return &cli.Command{
		Name:  "snap",
		Usage: "Capture one frame, send it and render the overlay",
		Flags: captureFlags(),
		Action: func(c *cli.Context) error {
			cmdCtx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer cmdCtx.Logger.Sync()

			svc, cleanup, err := newStreamService(cmdCtx)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := svc.Snap(ctx)
			if err != nil {
				return exitError(err)
			}

			fmt.Printf("frame #%d processed in %.3fs (round trip %s), overlay written to %s\n",
				result.SequenceNumber, result.ProcessingTime, result.RoundTrip, cmdCtx.Config.Render.Output)
			return nil
		},
	}
}
