package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiond/internal/cli/output"
	"github.com/yndnr/sessiond/internal/infra/confloader"
	"github.com/yndnr/sessiond/internal/server/config"
)

// CheckConfigCommand validates the configuration and prints it with
// secrets masked.
func CheckConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-config",
		Usage: "validate the configuration and print the effective values",
		Flags: []cli.Flag{formatFlag()},
		Action: func(c *cli.Context) error {
			format, err := output.ParseFormat(c.String("format"))
			if err != nil {
				return err
			}
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			fields := output.Flatten(config.Sanitize(cfg), "koanf")
			return output.NewFormatter(format, "koanf").Format(c.App.Writer, fields)
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"o"},
		Usage:   "output format: table, json or yaml",
		Value:   string(output.FormatTable),
	}
}

// loadConfig reads defaults, the file at path (if any) and SESSIOND_
// variables, then verifies the result.
func loadConfig(path string) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
