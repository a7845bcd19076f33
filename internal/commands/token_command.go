package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/satriahrh/segstream/internal/auth"
)

// GetTokenCommand returns the command minting bearer tokens for the dev service
func GetTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a bearer token accepted by `serve --jwt-secret`",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "subject",
				Aliases:  []string{"s"},
				Usage:    "Token subject, e.g. a camera name",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Value: auth.DefaultTokenTTL,
				Usage: "Token lifetime",
			},
			&cli.StringFlag{
				Name:    "jwt-secret",
				Usage:   "Signing secret (defaults to server.jwt_secret)",
				EnvVars: []string{"SEGSTREAM_JWT_SECRET"},
			},
		},
		Action: func(c *cli.Context) error {
			cmdCtx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer cmdCtx.Logger.Sync()

			secret := cmdCtx.Config.Server.JWTSecret
			if c.IsSet("jwt-secret") {
				secret = c.String("jwt-secret")
			}

			token, err := auth.GenerateToken([]byte(secret), c.String("subject"), c.Duration("ttl"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Println(token)
			return nil
		},
	}
}
