package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bselee/enviroflow/app"
	"github.com/bselee/enviroflow/infra/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.yaml>",
	Short: "Load rooms, controllers and schedules from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  seed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func seed(cmd *cobra.Command, args []string) error {
	f, err := store.LoadFixturesFile(args[0])
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc *app.Service) error {
		var enc store.Encrypter
		if svc.Box != nil {
			enc = svc.Box
		}
		rep, err := svc.Store.Seed(ctx, f, enc)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rooms, %d controllers, %d schedules\n", rep.Rooms, rep.Controllers, rep.Schedules)
		return nil
	})
}
