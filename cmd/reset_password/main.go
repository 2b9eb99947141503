package main

import (
	"context"
	"fmt"
	"os"

	"finchat/internal/appdb"
	"finchat/pkg/users"

	"github.com/spf13/cobra"
)

func main() {
	var username, password string
	cmd := &cobra.Command{
		Use:   "reset_password",
		Short: "Set a new password for a user and revoke their refresh tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := appdb.FromEnv()
			if err != nil {
				return err
			}
			if err := users.New(db).ResetPassword(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Printf("Password reset for user %s\n", username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username to reset")
	cmd.Flags().StringVar(&password, "password", "", "new plaintext password (min 6 chars)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
