package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/satriahrh/segstream/adapters/render"
	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/internal/websocket"
	"github.com/satriahrh/segstream/usecase"
)

// GetStreamCommand returns the command that streams frames continuously
func GetStreamCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.Int64Flag{
			Name:    "frames",
			Aliases: []string{"n"},
			Usage:   "Stop after this many results (0 streams until interrupted)",
		},
		&cli.DurationFlag{
			Name:    "duration",
			Aliases: []string{"d"},
			Usage:   "Stop after this long (0 streams until interrupted)",
		},
	}

	return &cli.Command{
		Name:  "stream",
		Usage: "Stream frames and render each returned overlay",
		Description: `Connect to the inference service and send one frame at a time,
capturing the next frame only when the previous result has arrived.
Ctrl+C stops streaming; the in-flight result is awaited before exit.`,
		Flags: append(flags, captureFlags()...),
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

			fmt.Println("Streaming to", cmdCtx.Config.Endpoint, "- press Ctrl+C to stop")

			status, err := svc.Stream(ctx, usecase.StreamOptions{
				Frames:   c.Int64("frames"),
				Duration: c.Duration("duration"),
			})
			printSummary(status)
			return exitError(err)
		},
	}
}

// newStreamService wires transport, capture and sink from the config
func newStreamService(cmdCtx *CommandContext) (*usecase.StreamService, func(), error) {
	cfg := cmdCtx.Config
	log := cmdCtx.Logger

	source, err := usecase.NewCaptureSource(cfg.Capture, log)
	if err != nil {
		return nil, nil, err
	}
	sink, err := render.NewFileSink(cfg.Render.Output, cfg.Render.MaskOutput, cfg.Render.KeepAll, log)
	if err != nil {
		source.Close()
		return nil, nil, err
	}

	channel := websocket.NewChannel(log,
		websocket.WithBearerToken(cfg.Token),
		websocket.WithDialTimeout(cfg.DialTimeout))

	cleanup := func() {
		if err := source.Close(); err != nil {
			log.Warn("Failed to close capture source", zap.Error(err))
		}
	}
	return usecase.NewStreamService(cfg, channel, source, sink, log), cleanup, nil
}

func printSummary(status entities.Status) {
	m := status.Metrics
	fmt.Printf("frames sent:        %d\n", m.FramesSent)
	fmt.Printf("results received:   %d (failed %d, malformed %d)\n", m.ResultsReceived, m.FailedResults, m.MalformedResults)
	fmt.Printf("capture failures:   %d\n", m.CaptureFailures)
	fmt.Printf("timeouts:           %d\n", m.Timeouts)
	fmt.Printf("processing (avg):   %s\n", m.AvgProcessingTime.Round(time.Millisecond))
	fmt.Printf("round trip (avg):   %s\n", m.AvgRoundTrip.Round(time.Millisecond))
	fmt.Printf("effective fps:      %.2f\n", m.EffectiveFPS)
	fmt.Printf("max outstanding:    %d\n", m.MaxOutstanding)
	if status.LastError != "" {
		fmt.Printf("last error:         %s\n", status.LastError)
	}
}

// exitError maps connectivity failures to exit code 2, the rest to 1
func exitError(err error) error {
	if err == nil {
		return nil
	}
	if usecase.IsConnectivity(err) {
		return cli.Exit(err.Error(), 2)
	}
	return cli.Exit(err.Error(), 1)
}
