package cmd

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/limberduck/tsccm/internal/projector"
	"github.com/limberduck/tsccm/internal/resource"
)

var (
	serverStatus  bool
	serverIPs     bool
	serverVersion bool
)

// serverCmd represents the server command.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Get Tenable.sc server status, license usage or version",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().BoolVar(&serverStatus, "status", false, "scanner daemon and license status")
	serverCmd.Flags().BoolVar(&serverIPs, "ips", false, "licensed, active and remaining IPs")
	serverCmd.Flags().BoolVar(&serverVersion, "version", false, "server version and build")
	serverCmd.MarkFlagsMutuallyExclusive("status", "ips", "version")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, _ []string) error {
	var act *action
	switch {
	case serverStatus:
		act = &action{kind: resource.Status}
	case serverIPs:
		act = &action{kind: resource.Status, derive: ipUsage}
	case serverVersion:
		act = &action{kind: resource.System}
	}
	return runPipeline(cmd, act)
}

var ipUsageColumns = []string{"licensedIPs", "activeIPs", "leftIPs", "leftIPsPercent"}

// ipUsage turns the status record into licensed, active and remaining IP counts.
func ipUsage(status projector.Table) (projector.Table, error) {
	if len(status.Records) != 1 {
		return projector.Table{}, fmt.Errorf("status: expected one record, got %d", len(status.Records))
	}
	rec := status.Records[0]
	licensedRaw, _ := rec.Get("licensedIPs")
	activeRaw, _ := rec.Get("activeIPs")
	licensed, err := cast.ToInt64E(licensedRaw)
	if err != nil {
		return projector.Table{}, fmt.Errorf("status: licensedIPs %v: %w", licensedRaw, err)
	}
	active, err := cast.ToInt64E(activeRaw)
	if err != nil {
		return projector.Table{}, fmt.Errorf("status: activeIPs %v: %w", activeRaw, err)
	}
	var percent int64
	if licensed > 0 {
		percent = int64(100 - 100*float64(active)/float64(licensed))
	}
	return projector.Table{
		Columns: ipUsageColumns,
		Records: []projector.Record{
			projector.NewRecord(ipUsageColumns, []any{licensed, active, licensed - active, percent}),
		},
	}, nil
}
