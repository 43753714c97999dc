package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(userService services.UserServiceInterface, logger *observability.Logger, cfg *config.Config) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the sales training backend.

Available commands:
  list           - List all users
  reset-password - Reset password for a specific user
  seed-admin     - Create the admin account or bring it back in line`,
	}

	userCmd.AddCommand(listCmd(userService, logger, cfg.Database.URL))
	userCmd.AddCommand(resetPasswordCmd(userService, logger))
	userCmd.AddCommand(seedAdminCmd(userService, logger, cfg))

	return userCmd
}

func listCmd(userService services.UserServiceInterface, logger *observability.Logger, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Long:  `List all users in the database with their basic information.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			logger.Info(ctx, "Admin command diagnostics", map[string]interface{}{
				"config_file":  os.Getenv(config.ConfigFileEnv),
				"database_url": MaskDatabaseURL(databaseURL),
			})

			users, err := userService.GetAllUsers(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to get users", err, nil)
				return contextutils.WrapError(err, "failed to get users")
			}

			out := cmd.OutOrStdout()
			if len(users) == 0 {
				fmt.Fprintln(out, "No users found")
				return nil
			}

			fmt.Fprintf(out, "%-5s %-24s %-6s %-10s\n", "ID", "Username", "Admin", "Created")
			fmt.Fprintln(out, strings.Repeat("-", 48))
			for _, user := range users {
				admin := "No"
				if user.IsAdmin {
					admin = "Yes"
				}
				fmt.Fprintf(out, "%-5d %-24s %-6s %-10s\n", user.ID, user.Username, admin, user.CreatedAt.Format("2006-01-02"))
			}

			logger.Info(ctx, "Listed users", map[string]interface{}{"total": len(users)})
			return nil
		},
	}
}

func resetPasswordCmd(userService services.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password [username]",
		Short: "Reset password for a user",
		Long:  `Reset the password for a specific user. If username is not provided, you will be prompted for it.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()

			var username string
			if len(args) > 0 {
				username = args[0]
			} else {
				fmt.Fprint(out, "Enter username: ")
				if _, err := fmt.Fscanln(cmd.InOrStdin(), &username); err != nil {
					return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read username: %v", err)
				}
			}
			if username == "" {
				return contextutils.ErrorWithContextf("username is required")
			}

			user, err := userService.GetUserByUsername(ctx, username)
			if err != nil {
				logger.Error(ctx, "Failed to get user", err, map[string]interface{}{"username": username})
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user '%s': %v", username, err)
			}
			if user == nil {
				return contextutils.ErrorWithContextf("user '%s' not found", username)
			}

			newPassword, err := promptNewPassword(out)
			if err != nil {
				return err
			}

			if err := userService.UpdateUserPassword(ctx, user.ID, newPassword); err != nil {
				logger.Error(ctx, "Failed to update password", err, map[string]interface{}{"username": username, "user_id": user.ID})
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to update password for user '%s': %v", username, err)
			}

			fmt.Fprintf(out, "Password successfully reset for user '%s' (ID: %d)\n", username, user.ID)
			logger.Info(ctx, "Password reset successful", map[string]interface{}{"username": username, "user_id": user.ID})
			return nil
		},
	}
}

func seedAdminCmd(userService services.UserServiceInterface, logger *observability.Logger, cfg *config.Config) *cobra.Command {
	var username string
	var fromConfig bool

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create or repair the admin account",
		Long: `Create the admin account if it is missing. An existing account gets its
password and admin flag reset. The password is prompted for unless
--from-config is given, in which case server.admin_password is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()

			if username == "" {
				return contextutils.ErrorWithContextf("admin username is required")
			}

			password := cfg.Server.AdminPassword
			if !fromConfig {
				var err error
				if password, err = promptNewPassword(out); err != nil {
					return err
				}
			}

			if err := userService.EnsureAdminUserExists(ctx, username, password); err != nil {
				logger.Error(ctx, "Failed to seed admin user", err, map[string]interface{}{"username": username})
				return err
			}

			fmt.Fprintf(out, "Admin user '%s' is ready\n", username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", cfg.Server.AdminUsername, "Admin username")
	cmd.Flags().BoolVar(&fromConfig, "from-config", false, "Use the configured admin password instead of prompting")
	return cmd
}
