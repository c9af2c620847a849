package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]string{
				"version":   Version,
				"commit":    Commit,
				"built":     Date,
				"goVersion": runtime.Version(),
				"platform":  runtime.GOOS + "/" + runtime.GOARCH,
			})
		}
		fmt.Fprintf(w, "causalgraph %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("json", false, "output as JSON")
}
