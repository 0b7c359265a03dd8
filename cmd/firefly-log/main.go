// Command firefly-log views and analyzes firefly protocol trace files.
//
// Trace files are written by firefly-node when started with -protocol-log
// (or log.protocol in the config file).
//
// Examples:
//
//	# View all events
//	firefly-log view node.flog
//
//	# View only incoming wire records of channel 3
//	firefly-log view --layer wire --direction in --channel 3 node.flog
//
//	# Export to CSV
//	firefly-log export --format csv -o node.csv node.flog
//
//	# Keep the data samples of one connection
//	firefly-log filter --conn-id abc12345-... --record data_sample -o out.flog node.flog
//
//	# Show statistics
//	firefly-log stats node.flog
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-protocol/firefly-go/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "firefly-log",
		Short: "Firefly protocol trace analyzer",
		Long: `firefly-log reads the CBOR protocol traces written by firefly-node.

Traces hold datagrams, decoded records, channel and connection state
changes, and protocol errors.`,
		Version:       version.Current,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		viewCmd(),
		exportCmd(),
		filterCmd(),
		statsCmd(),
	)
	return root
}
