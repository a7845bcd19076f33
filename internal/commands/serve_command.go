package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/satriahrh/segstream/adapters/segmenter"
	"github.com/satriahrh/segstream/internal/inference"
)

// GetServeCommand returns the command running the development inference service
func GetServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the development inference service",
		Description: `Serve the frame protocol on /ws/process-frame with a mock segmenter
that thresholds luminance and tints the foreground. Artificial latency and
jitter make it possible to exercise flow control locally.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port",
			},
			&cli.DurationFlag{
				Name:  "latency",
				Usage: "Artificial processing latency per frame",
			},
			&cli.DurationFlag{
				Name:  "jitter",
				Usage: "Random extra latency, up to this much",
			},
			&cli.IntFlag{
				Name:  "threshold",
				Usage: "Luminance threshold of the mock segmenter (0-255)",
			},
			&cli.StringFlag{
				Name:    "jwt-secret",
				Usage:   "Require HS256 bearer tokens signed with this secret",
				EnvVars: []string{"SEGSTREAM_JWT_SECRET"},
			},
			&cli.DurationFlag{
				Name:  "idle-timeout",
				Usage: "Close clients that send nothing for this long (0 keeps them)",
			},
		},
		Action: func(c *cli.Context) error {
			cmdCtx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer cmdCtx.Logger.Sync()

			cfg := cmdCtx.Config.Server
			if c.IsSet("host") {
				cfg.Host = c.String("host")
			}
			if c.IsSet("port") {
				cfg.Port = c.Int("port")
			}
			if c.IsSet("latency") {
				cfg.Latency = c.Duration("latency")
			}
			if c.IsSet("jitter") {
				cfg.LatencyJitter = c.Duration("jitter")
			}
			if c.IsSet("threshold") {
				cfg.Threshold = c.Int("threshold")
			}
			if c.IsSet("jwt-secret") {
				cfg.JWTSecret = c.String("jwt-secret")
			}
			if c.IsSet("idle-timeout") {
				cfg.IdleTimeout = c.Duration("idle-timeout")
			}
			if cfg.Threshold < 0 || cfg.Threshold > 255 {
				return cli.Exit("threshold must be within 0-255", 1)
			}

			processor := segmenter.NewMockSegmenter(segmenter.Options{
				Threshold: uint8(cfg.Threshold),
				Alpha:     segmenter.DefaultOptions().Alpha,
				Latency:   cfg.Latency,
				Jitter:    cfg.LatencyJitter,
			}, cmdCtx.Logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := inference.NewServer(cfg, processor, cmdCtx.Logger)
			if err := srv.Start(ctx); err != nil {
				cmdCtx.Logger.Error("Inference service failed", zap.Error(err))
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}
