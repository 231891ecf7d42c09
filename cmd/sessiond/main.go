// Command sessiond runs the in-memory session lifecycle manager.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/sessiond/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
