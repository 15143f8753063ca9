package cmd

import (
	"github.com/spf13/cobra"

	"github.com/limberduck/tsccm/internal/resource"
)

// listCommands are the resource kinds that support --list.
var listCommands = []struct {
	kind  resource.Kind
	short string
}{
	{resource.User, "Get Tenable.sc users"},
	{resource.Group, "Get Tenable.sc groups"},
	{resource.Scan, "Get Tenable.sc active scans"},
	{resource.ScanResult, "Get Tenable.sc scan results"},
	{resource.Policy, "Get Tenable.sc scan policies"},
	{resource.Credential, "Get Tenable.sc credentials"},
	{resource.Role, "Get Tenable.sc roles"},
	{resource.AuditFile, "Get Tenable.sc audit files"},
}

func newListCmd(kind resource.Kind, short string) *cobra.Command {
	var list bool
	c := &cobra.Command{
		Use:   kind.String(),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !list {
				return runPipeline(cmd, nil)
			}
			return runPipeline(cmd, &action{kind: kind})
		},
	}
	c.Flags().BoolVar(&list, "list", false, "list all "+kind.String()+" objects")
	return c
}

func init() {
	for _, lc := range listCommands {
		rootCmd.AddCommand(newListCmd(lc.kind, lc.short))
	}
}
