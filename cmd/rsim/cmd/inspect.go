package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sarchlab/rsim/datarecording"
	"github.com/sarchlab/rsim/tracing"
)

type inspectOptions struct {
	port  string
	limit int
}

var eventKinds = []string{
	tracing.KindSend,
	tracing.KindCommit,
	tracing.KindRecv,
	tracing.KindAck,
	tracing.KindSupersede,
}

func newInspectCmd() *cobra.Command {
	opts := &inspectOptions{}

	c := &cobra.Command{
		Use:   "inspect [trace.sqlite3]",
		Short: "Summarize a trace file recorded by run --trace.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.inspect(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	c.Flags().StringVar(&opts.port, "port", "",
		"list the events of this port")
	c.Flags().IntVar(&opts.limit, "limit", 20,
		"maximum number of events to list")

	return c
}

func (o *inspectOptions) inspect(
	ctx context.Context,
	w io.Writer,
	file string,
) error {
	if _, err := os.Stat(file); err != nil {
		return errors.Wrap(err, "opening trace")
	}

	reader := datarecording.NewReader(file)
	defer reader.Close()

	reader.MapTable("exec_info", datarecording.ExecInfo{})
	reader.MapTable(tracing.PortEventTable, tracing.PortEventEntry{})

	tables, err := reader.ListTables(ctx)
	if err != nil {
		return err
	}

	if err := printExecInfo(ctx, w, reader); err != nil {
		return err
	}

	if !slices.Contains(tables, tracing.PortEventTable) {
		fmt.Fprintln(w, "no port events recorded")
		return nil
	}

	if err := printKindCounts(ctx, w, reader); err != nil {
		return err
	}

	if o.port == "" {
		return nil
	}

	return o.printPortEvents(ctx, w, reader)
}

func printExecInfo(
	ctx context.Context,
	w io.Writer,
	reader datarecording.DataReader,
) error {
	rows, _, err := reader.Query(ctx, "exec_info", datarecording.QueryParams{})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		info := r.(*datarecording.ExecInfo)
		fmt.Fprintf(tw, "%s\t%s\n", info.Property, info.Value)
	}

	return tw.Flush()
}

func printKindCounts(
	ctx context.Context,
	w io.Writer,
	reader datarecording.DataReader,
) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tEVENTS")

	for _, kind := range eventKinds {
		_, total, err := reader.Query(ctx, tracing.PortEventTable,
			datarecording.QueryParams{
				Where: "Kind = ?",
				Args:  []any{kind},
				Limit: 1,
			})
		if err != nil {
			return err
		}

		fmt.Fprintf(tw, "%s\t%d\n", kind, total)
	}

	return tw.Flush()
}

func (o *inspectOptions) printPortEvents(
	ctx context.Context,
	w io.Writer,
	reader datarecording.DataReader,
) error {
	rows, total, err := reader.Query(ctx, tracing.PortEventTable,
		datarecording.QueryParams{
			Where:   "Port = ?",
			Args:    []any{o.port},
			Limit:   o.limit,
			OrderBy: "Cycle, Pass, Event",
		})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: %d events\n", o.port, total)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tPASS\tEVENT\tKIND\tORIGIN\tVALUE")

	for _, r := range rows {
		e := r.(*tracing.PortEventEntry)
		fmt.Fprintf(tw, "%d\t%d\tE%d\t%s\t%s\t%s\n",
			e.Cycle, e.Pass, e.Event, e.Kind, e.Origin, e.Value)
	}

	return tw.Flush()
}
