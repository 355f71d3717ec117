package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rsi-cycle-tracker/app"
	"rsi-cycle-tracker/auth"
	"rsi-cycle-tracker/database"
	"rsi-cycle-tracker/database/users"
)

func createAdminCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "create-admin <email>",
		Short: "Create an administrator or promote an existing user",
		Long: `Create an administrator account. When the email is already registered the
account is promoted and its password is left unchanged.

The password is read from --password or ADMIN_PASSWORD.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := users.NormalizeEmail(args[0])
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}

			_, db, log, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			defer log.Sync()

			if err := app.Migrate(db, log); err != nil {
				return err
			}

			ctx := cmd.Context()
			repo := users.NewRepository(db.DB())
			out := cmd.OutOrStdout()

			existing, err := repo.FindByEmail(ctx, email)
			switch {
			case err == nil:
				if err := repo.SetAdmin(ctx, existing.ID, true); err != nil {
					return err
				}
				log.Info("👑 User promoted to admin", zap.Int64("user_id", existing.ID))
				fmt.Fprintf(out, "✅ %s is now an admin\n", email)
				return nil
			case !database.IsNotFound(err):
				return err
			}

			if len(password) < auth.MinPasswordLength {
				return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			user, err := repo.Create(ctx, email, hash, true)
			if err != nil {
				return err
			}
			log.Info("👑 Admin created", zap.Int64("user_id", user.ID))
			fmt.Fprintf(out, "✅ Created admin %s (id %d)\n", user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password for a new account (default $ADMIN_PASSWORD)")
	return cmd
}
