package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/limberduck/tsccm/internal/update"
)

// version is set at build time with -ldflags "-X github.com/limberduck/tsccm/cmd.version=...".
var version = "dev"

var versionCheck bool

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and optionally check for a newer release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "tsccm v."+version)
		if !versionCheck {
			return nil
		}
		res, err := update.Check(cmd.Context(), nil, cfg.UpdateURL, version)
		if err != nil {
			log.WithError(err).Debug("release check failed")
			fmt.Fprintf(out, "> Could not check for updates: %v\n", err)
			return nil
		}
		fmt.Fprint(out, res.Message())
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
	rootCmd.AddCommand(versionCmd)
}
