// Command mockfleet runs fleets of mock HTTP services from YAML definitions.
package main

import (
	"os"

	"github.com/getmockd/mockfleet/pkg/cli"
)

// Set via -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cli.Version, cli.Commit, cli.BuildDate = version, commit, buildDate
	os.Exit(cli.Main())
}
