// Command quadlane drives the tick scheduler from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/quadlane/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
