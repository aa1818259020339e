package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bselee/enviroflow/app"
	"github.com/bselee/enviroflow/core/curve"
	"github.com/bselee/enviroflow/core/engine"
	"github.com/bselee/enviroflow/core/model"
)

var (
	previewAt     string
	previewPoints int
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Dry run every active schedule at an instant and print ramp profiles",
	RunE:  preview,
}

func init() {
	previewCmd.Flags().StringVar(&previewAt, "at", "", "evaluation instant (RFC3339), defaults to now")
	previewCmd.Flags().IntVar(&previewPoints, "points", 5, "samples per ramp profile")
	rootCmd.AddCommand(previewCmd)
}

func preview(cmd *cobra.Command, args []string) error {
	now, err := parseInstant(previewAt)
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc *app.Service) error {
		rep, err := svc.Preview(ctx, now)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printReport(out, rep)

		targets, err := svc.Store.ActiveSchedules(ctx)
		if err != nil {
			return err
		}
		printProfiles(out, targets, previewPoints)
		return nil
	})
}

func printProfiles(w io.Writer, targets []engine.Target, points int) {
	for _, t := range targets {
		sc := t.Schedule.Schedule
		if !t.Schedule.TriggerType.IsSolar() || !sc.HasRamp() {
			continue
		}
		d := time.Duration(*sc.DurationMinutes) * time.Minute
		fmt.Fprintf(w, "\nramp %s (%s, %s curve, %s):\n", t.Schedule.ID, t.Schedule.TriggerType, curveName(sc.Curve), d)
		for _, p := range curve.Profile(*sc.StartIntensity, *sc.TargetIntensity, d, sc.Curve, points) {
			fmt.Fprintf(w, "  +%-8s %5.1f%%\n", p.Offset, p.Level)
		}
	}
}

func curveName(c model.Curve) string {
	if c == "" {
		return "linear"
	}
	return string(c)
}
