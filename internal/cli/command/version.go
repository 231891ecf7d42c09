package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiond/internal/cli/output"
	"github.com/yndnr/sessiond/internal/infra/buildinfo"
)

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print build information",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"o"},
				Usage:   "output format: table, json or yaml; a single line when unset",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.IsSet("format") {
				fmt.Fprintln(c.App.Writer, "sessiond", buildinfo.String())
				return nil
			}
			format, err := output.ParseFormat(c.String("format"))
			if err != nil {
				return err
			}
			return output.NewFormatter(format, "json").Format(c.App.Writer, buildinfo.Get())
		},
	}
}
