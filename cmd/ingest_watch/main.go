package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"finchat/internal/appdb"
	"finchat/models"
	"finchat/pkg/access"
	"finchat/pkg/companies"
	"finchat/pkg/factstore"
	"finchat/pkg/ingest"
	"finchat/process/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var (
		dir        string
		uploadBase string
		workers    int
		follow     bool
		dryRun     bool
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "ingest_watch",
		Short: "Ingest balance sheets named <company_id>__<name>.csv|xlsx from a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _ := zap.NewProduction()
			if verbose {
				log, _ = zap.NewDevelopment()
			}
			defer log.Sync()

			db, err := appdb.FromEnv()
			if err != nil {
				return err
			}
			if uploadBase == "" {
				uploadBase = os.Getenv("UPLOAD_BASE")
			}
			facts := factstore.New(db, log)
			svc := ingest.New(companies.New(db, log, nil), facts, nil, ingest.Config{BaseDir: uploadBase}, log)
			w := watch.New(watch.Options{
				Dir:     dir,
				Workers: workers,
				DryRun:  dryRun,
				Template: ingest.Request{
					Principal: access.Principal{Username: "ingest_watch", Role: models.RoleAdmin, AllCompanies: true},
				},
			}, svc, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if follow {
				return w.Watch(ctx)
			}
			stats, err := w.Scan(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("seen=%d ingested=%d failed=%d skipped=%d\n", stats.Seen, stats.Ingested, stats.Failed, stats.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "inbox", "directory to scan for balance sheets")
	cmd.Flags().StringVar(&uploadBase, "upload-base", "", "where raw files are stored (default $UPLOAD_BASE or uploads)")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (default NumCPU)")
	cmd.Flags().BoolVar(&follow, "watch", false, "keep watching the directory for new files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list matching files without ingesting them")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "development logging")
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
