package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"finchat/internal/appdb"
	"finchat/models"
	"finchat/pkg/users"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var (
		role    string
		company string
	)
	cmd := &cobra.Command{
		Use:   "create_user <username> <password>",
		Short: "Create a user directly in the database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := appdb.FromEnv()
			if err != nil {
				return err
			}
			// roles may not exist yet on a fresh database
			if err := appdb.SeedRoles(db); err != nil {
				return err
			}
			var companyID *uint
			if company != "" {
				id, err := strconv.ParseUint(company, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid --company %q: %w", company, err)
				}
				cid := uint(id)
				companyID = &cid
			}
			u, err := users.New(db).Create(cmd.Context(), args[0], args[1], role, companyID)
			if err != nil {
				return err
			}
			log, _ := zap.NewDevelopment()
			defer log.Sync()
			log.Info("user created", zap.String("username", u.Username), zap.Uint("id", u.ID), zap.String("role", role))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", models.RoleAnalyst, "admin, ceo or analyst")
	cmd.Flags().StringVar(&company, "company", "", "company id the user belongs to")
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
