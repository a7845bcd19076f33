package commands

import (
	"github.com/urfave/cli/v2"
)

// GetCommands returns all available commands
func GetCommands() []*cli.Command {
	return []*cli.Command{
		GetStreamCommand(),
		GetSnapCommand(),
		GetHealthCommand(),
		GetServeCommand(),
		GetTokenCommand(),
	}
}

// NewApp builds the segstream CLI application
func NewApp() *cli.App {
	return &cli.App{
		Name:     "segstream",
		Usage:    "Stream camera frames to a segmentation service and render the overlays",
		Flags:    GlobalFlags(),
		Commands: GetCommands(),
	}
}
