// Causalgraph - cause/effect relationship extraction for historical documents
package main

import (
	"os"

	"github.com/CanopyHQ/causalgraph/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date)
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
