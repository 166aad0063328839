package main

import (
	"os"

	"github.com/psinet-protocol/psinet/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
