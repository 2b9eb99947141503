package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"finchat/internal/appdb"
	"finchat/process/sanitize"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var (
		dryRun bool
		yes    bool
		reseed bool
		tables string
	)
	cmd := &cobra.Command{
		Use:   "db_sanitize",
		Short: "Empty the application tables (dry-run by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _ := zap.NewDevelopment()
			defer log.Sync()

			valid, invalid := sanitize.ParseTables(tables)
			for _, t := range invalid {
				log.Warn("skipping invalid table name", zap.String("table", t))
			}
			db, err := appdb.FromEnv()
			if err != nil {
				return err
			}
			res, err := sanitize.Run(cmd.Context(), db, sanitize.Options{
				Tables: valid,
				DryRun: dryRun,
				Yes:    yes,
				Reseed: reseed,
			}, log)
			if len(res.Tables) == 0 {
				fmt.Println("no requested tables present in the database; nothing to do")
				return nil
			}
			fmt.Println("Tables considered:")
			for _, t := range res.Tables {
				fmt.Printf(" - %s\n", t)
			}
			switch {
			case errors.Is(err, sanitize.ErrNotConfirmed):
				fmt.Println("Destructive operation. Pass --yes to confirm execution. Aborting.")
				return nil
			case err != nil:
				return err
			case dryRun:
				fmt.Println("dry-run enabled; no changes made. Use --dry-run=false --yes to execute.")
			default:
				fmt.Printf("cleared %d tables (reseeded=%v)\n", len(res.Tables), res.Reseed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "show what would be done without changing anything")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive action")
	cmd.Flags().BoolVar(&reseed, "reseed", false, "reseed roles and the admin user afterwards")
	cmd.Flags().StringVar(&tables, "tables", strings.Join(sanitize.DefaultTables, ","), "comma separated tables to clear")
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
