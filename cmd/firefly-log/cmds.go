package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/firefly-protocol/firefly-go/cmd/firefly-log/commands"
)

func viewCmd() *cobra.Command {
	var layer, direction, category, channel, record string

	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "View a trace in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter commands.ViewFilter
			if layer != "" {
				l, err := commands.ParseLayer(layer)
				if err != nil {
					return err
				}
				filter.Layer = &l
			}
			if direction != "" {
				d, err := commands.ParseDirection(direction)
				if err != nil {
					return err
				}
				filter.Direction = &d
			}
			if category != "" {
				c, err := commands.ParseCategory(category)
				if err != nil {
					return err
				}
				filter.Category = &c
			}
			if channel != "" {
				id, err := strconv.ParseInt(channel, 10, 32)
				if err != nil {
					return fmt.Errorf("invalid channel id: %w", err)
				}
				chanID := int32(id)
				filter.ChannelID = &chanID
			}
			if record != "" {
				rt, err := commands.ParseRecordType(record)
				if err != nil {
					return err
				}
				filter.RecordType = &rt
			}
			return commands.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&layer, "layer", "", "Only show events of a layer (transport, wire, protocol)")
	cmd.Flags().StringVar(&direction, "direction", "", "Only show events of a direction (in, out)")
	cmd.Flags().StringVar(&category, "category", "", "Only show events of a category (record, state, error)")
	cmd.Flags().StringVar(&channel, "channel", "", "Only show events of a local channel id")
	cmd.Flags().StringVar(&record, "record", "", "Only show records of a type (e.g. data_sample)")
	return cmd
}

func exportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export a trace to JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return commands.RunExport(args[0], format, w)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", commands.FormatJSONL, "Output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func filterCmd() *cobra.Command {
	var opts commands.FilterOptions

	cmd := &cobra.Command{
		Use:   "filter <file>",
		Short: "Write the matching events of a trace to a new trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunFilter(args[0], opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Output, "output", "o", "", "Output trace file (required)")
	f.StringVar(&opts.ConnID, "conn-id", "", "Connection id")
	f.StringVar(&opts.ChannelID, "channel", "", "Local channel id")
	f.StringVar(&opts.RecordType, "record", "", "Record type")
	f.StringVar(&opts.TimeStart, "time-start", "", "Start time, inclusive (RFC 3339)")
	f.StringVar(&opts.TimeEnd, "time-end", "", "End time, exclusive (RFC 3339)")
	f.StringVar(&opts.Layer, "layer", "", "Layer (transport, wire, protocol)")
	f.StringVar(&opts.Direction, "direction", "", "Direction (in, out)")
	f.StringVar(&opts.Category, "category", "", "Category (record, state, error)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Show statistics about a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}
