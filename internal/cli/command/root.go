package command

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiond/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "sessiond",
		Usage:   "in-memory session lifecycle manager",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ServeCommand(),
			CheckConfigCommand(),
			VersionCommand(),
		},
		Before: loadEnvFile,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to the YAML configuration file",
			EnvVars: []string{"SESSIOND_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "load environment variables from `FILE` before reading configuration",
		},
	}
}

// loadEnvFile applies --env-file. Variables already set in the environment
// win over the file.
func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}
