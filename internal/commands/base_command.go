package commands

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/satriahrh/segstream/internal/config"
	"github.com/satriahrh/segstream/internal/logger"
)

// CommandContext holds what every command needs
type CommandContext struct {
	Logger *zap.Logger
	Config *config.Config
}

// GlobalFlags are accepted before any command
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file",
			EnvVars: []string{"SEGSTREAM_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "endpoint",
			Aliases: []string{"e"},
			Usage:   "Duplex endpoint of the inference service",
			EnvVars: []string{"SEGSTREAM_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Bearer token sent on the websocket handshake",
			EnvVars: []string{"SEGSTREAM_TOKEN"},
		},
		&cli.DurationFlag{
			Name:  "request-timeout",
			Usage: "Give up on a frame after this long (0 waits forever)",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level: debug, info, warn, error",
			EnvVars: []string{"SEGSTREAM_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: console or json",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Also write JSON logs to this rotated file",
		},
	}
}

// NewCommandContext loads the config, applies flag overrides and builds the logger
func NewCommandContext(c *cli.Context) (*CommandContext, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}

	if c.IsSet("endpoint") {
		cfg.Endpoint = c.String("endpoint")
	}
	if c.IsSet("token") {
		cfg.Token = c.String("token")
	}
	if c.IsSet("request-timeout") {
		cfg.RequestTimeout = c.Duration("request-timeout")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.IsSet("log-file") {
		cfg.Logging.File = c.String("log-file")
	}
	applyCaptureFlags(c, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}

	return &CommandContext{
		Logger: log,
		Config: cfg,
	}, nil
}

// captureFlags are shared by the commands that send frames
func captureFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "source",
			Usage: "Capture source: synthetic or directory",
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "Image directory for the directory source",
		},
		&cli.StringFlag{
			Name:  "encoding",
			Usage: "Frame encoding: jpeg or png",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Synthetic frame width",
		},
		&cli.IntFlag{
			Name:  "height",
			Usage: "Synthetic frame height",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Where to write the latest overlay",
		},
		&cli.StringFlag{
			Name:  "mask-output",
			Usage: "Where to write the latest segmentation mask",
		},
		&cli.BoolFlag{
			Name:  "keep-all",
			Usage: "Write every overlay as a numbered file instead of replacing one",
		},
	}
}

func applyCaptureFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("source") {
		cfg.Capture.Source = c.String("source")
	}
	if c.IsSet("dir") {
		cfg.Capture.Dir = c.String("dir")
	}
	if c.IsSet("encoding") {
		cfg.Capture.Encoding = c.String("encoding")
	}
	if c.IsSet("width") {
		cfg.Capture.Width = c.Int("width")
	}
	if c.IsSet("height") {
		cfg.Capture.Height = c.Int("height")
	}
	if c.IsSet("output") {
		cfg.Render.Output = c.String("output")
	}
	if c.IsSet("mask-output") {
		cfg.Render.MaskOutput = c.String("mask-output")
	}
	if c.IsSet("keep-all") {
		cfg.Render.KeepAll = c.Bool("keep-all")
	}
}
