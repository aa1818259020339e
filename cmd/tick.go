package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bselee/enviroflow/app"
	"github.com/bselee/enviroflow/core/engine"
	"github.com/bselee/enviroflow/core/model"
)

var (
	tickAt     string
	tickFailOn bool
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single evaluation of every active schedule",
	RunE:  tick,
}

func init() {
	tickCmd.Flags().StringVar(&tickAt, "at", "", "evaluation instant (RFC3339), defaults to now")
	tickCmd.Flags().BoolVar(&tickFailOn, "fail-on-error", false, "exit non-zero when an execution failed")
	rootCmd.AddCommand(tickCmd)
}

func tick(cmd *cobra.Command, args []string) error {
	now, err := parseInstant(tickAt)
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc *app.Service) error {
		svc.StartCollector(ctx)
		rep, err := svc.Tick(ctx, now)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), rep)
		if tickFailOn && rep.ByStatus[model.StatusFailed] > 0 {
			return fmt.Errorf("%d execution(s) failed", rep.ByStatus[model.StatusFailed])
		}
		return nil
	})
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t, nil
}

func printReport(w io.Writer, rep engine.TickReport) {
	results := append([]model.ExecutionResult(nil), rep.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].ScheduleID < results[j].ScheduleID })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEDULE\tCONTROLLER\tSTATUS\tACTION\tVALUE\tATTEMPTS\tERROR")
	for _, r := range results {
		value := "-"
		if r.Value != nil {
			value = fmt.Sprintf("%.1f", *r.Value)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", r.ScheduleID, r.ControllerID, r.Status, r.Action, value, r.Attempts, r.Error)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "evaluated=%d fired=%d panics=%d in %s\n", rep.Evaluated, rep.Fired, rep.Panics, rep.Duration.Round(time.Millisecond))
}
