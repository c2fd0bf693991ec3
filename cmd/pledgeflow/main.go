// Command pledgeflow manages a persisted pledge ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pledgeflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
