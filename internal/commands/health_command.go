package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/satriahrh/segstream/internal/inference"
)

// GetHealthCommand returns the liveness check command
func GetHealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check that the inference service is up and its model is loaded",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Health endpoint (derived from the endpoint when unset)",
				EnvVars: []string{"SEGSTREAM_HEALTH_URL"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
				Usage: "Request timeout",
			},
		},
		Action: func(c *cli.Context) error {
			cmdCtx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer cmdCtx.Logger.Sync()

			url := cmdCtx.Config.HealthURL
			if c.IsSet("url") {
				url = c.String("url")
			}
			if url == "" {
				url, err = inference.HealthURLFor(cmdCtx.Config.Endpoint)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			health, err := inference.NewHealthClient(c.Duration("timeout")).Check(ctx, url)
			if err != nil {
				return cli.Exit(fmt.Sprintf("%s: %v", url, err), 2)
			}

			fmt.Printf("%s: %s (model loaded: %v, connections: %d, frames processed: %d)\n",
				url, health.Status, health.ModelLoaded, health.Connections, health.FramesProcessed)
			return nil
		},
	}
}
