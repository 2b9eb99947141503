package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"finchat/internal/appdb"
	"finchat/process/report"

	"github.com/spf13/cobra"
)

func main() {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "report <company id or name>",
		Short: "Print or export a company's stored financial facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == report.FormatXLSX && out == "" {
				return fmt.Errorf("--out is required for xlsx")
			}
			db, err := appdb.FromEnv()
			if err != nil {
				return err
			}
			r, err := report.Load(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			var w io.Writer = os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return r.Write(w, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", report.FormatTable, "table, csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
